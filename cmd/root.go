// File: cmd/root.go
package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/xkilldash9x/puppetd/internal/browser"
	"github.com/xkilldash9x/puppetd/internal/config"
	"github.com/xkilldash9x/puppetd/internal/observability"
	"github.com/xkilldash9x/puppetd/internal/rpc"
	"github.com/xkilldash9x/puppetd/internal/server"
)

var cfgFile string

// rootCmd runs the daemon; there is no separate serve subcommand.
var rootCmd = &cobra.Command{
	Use:     "puppetd",
	Short:   "puppetd is a JSON-RPC browser automation daemon.",
	Version: Version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Runs before any command, setting up config and logging.
		if err := initializeConfig(); err != nil {
			return err
		}

		cfg, err := config.NewConfigFromViper(viper.GetViper())
		if err != nil {
			// Initialize a fallback logger so the failure is still reported
			// through the normal sink.
			observability.InitializeLogger(config.LoggerConfig{
				Level: "info", Format: "console", ServiceName: "puppetd",
			})
			return err
		}

		observability.InitializeLogger(cfg.Logger)
		observability.GetLogger().Info("Starting puppetd", zap.String("version", Version))
		return nil
	},
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.NewConfigFromViper(viper.GetViper())
	if err != nil {
		return err
	}
	logger := observability.GetLogger()

	registry := browser.NewRegistry(cfg.Browser, browser.PlaywrightLauncher(logger), logger)
	defer func() {
		if err := registry.CloseBrowser(); err != nil {
			logger.Warn("Error closing browser during shutdown.", zap.Error(err))
		}
	}()

	ctx := cmd.Context()

	// Launch eagerly so the first request does not pay the startup cost. A
	// launch failure is not fatal: the daemon serves a degraded health state
	// and retries lazily on the next browser-bound request.
	if err := registry.StartBrowser(ctx); err != nil {
		logger.Warn("Initial browser launch failed; continuing degraded.", zap.Error(err))
	}

	dispatcher := rpc.NewDispatcher(logger)
	rpc.NewHandlers(registry, cfg.Browser, logger).Mount(dispatcher)

	srv := server.New(cfg.Server, dispatcher, registry, logger)
	return srv.Run(ctx)
}

// Execute runs the root command with the given context.
func Execute(ctx context.Context) error {
	defer observability.Sync()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		observability.GetLogger().Error("Command execution failed", zap.Error(err))
		return err
	}
	return nil
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default is ./config.yaml)")
	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)
}

// initializeConfig reads in config file and ENV variables if set.
func initializeConfig() error {
	v := viper.GetViper()
	config.SetDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix("PUPPETD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found; proceed with defaults and env vars.
	}
	return nil
}
