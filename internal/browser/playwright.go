// File: internal/browser/playwright.go
package browser

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"
	"go.uber.org/zap"
)

// consoleBufferCap bounds the per-page console log buffer.
const consoleBufferCap = 1000

// PlaywrightLauncher returns a Launcher backed by the Playwright driver.
func PlaywrightLauncher(logger *zap.Logger) Launcher {
	return func(ctx context.Context, opts LaunchOptions) (Driver, error) {
		return launchPlaywright(ctx, opts, logger.Named("playwright"))
	}
}

func launchPlaywright(ctx context.Context, opts LaunchOptions, logger *zap.Logger) (Driver, error) {
	if opts.Install {
		logger.Info("Verifying browser installation.")
		if err := playwright.Install(&playwright.RunOptions{Verbose: false}); err != nil {
			return nil, fmt.Errorf("failed to install playwright browsers: %w", err)
		}
	}

	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("failed to start playwright driver: %w", err)
	}

	browserType := pw.Chromium
	switch opts.Engine {
	case "chromium", "":
	case "firefox":
		browserType = pw.Firefox
	case "webkit":
		browserType = pw.WebKit
	default:
		logger.Warn("Unsupported browser engine, defaulting to chromium.",
			zap.String("engine", opts.Engine))
	}

	launchOptions := playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(opts.Headless),
		Args:     opts.Args,
	}
	if opts.SlowMo > 0 {
		launchOptions.SlowMo = playwright.Float(float64(opts.SlowMo.Milliseconds()))
	}
	if opts.Proxy != "" {
		launchOptions.Proxy = &playwright.Proxy{Server: opts.Proxy}
	}

	b, err := browserType.Launch(launchOptions)
	if err != nil {
		// Stop the driver process so a failed launch leaks nothing.
		if stopErr := pw.Stop(); stopErr != nil {
			logger.Warn("Failed to stop playwright driver after launch failure.", zap.Error(stopErr))
		}
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	logger.Info("Browser launched.", zap.String("engine", opts.Engine))
	return &pwDriver{pw: pw, browser: b, logger: logger}, nil
}

type pwDriver struct {
	pw      *playwright.Playwright
	browser playwright.Browser
	logger  *zap.Logger
}

func (d *pwDriver) Connected() bool {
	return d.browser.IsConnected()
}

func (d *pwDriver) NewContext(opts ContextOptions) (Context, error) {
	contextOptions := playwright.BrowserNewContextOptions{}
	if opts.UserAgent != "" {
		contextOptions.UserAgent = playwright.String(opts.UserAgent)
	}
	if opts.Viewport != nil {
		contextOptions.Viewport = &playwright.Size{
			Width:  opts.Viewport.Width,
			Height: opts.Viewport.Height,
		}
	}
	if opts.Proxy != "" {
		contextOptions.Proxy = &playwright.Proxy{Server: opts.Proxy}
	}

	bc, err := d.browser.NewContext(contextOptions)
	if err != nil {
		return nil, classifyDriverError(err)
	}
	return &pwContext{ctx: bc, logger: d.logger}, nil
}

func (d *pwDriver) Close() error {
	var closeErr error
	if err := d.browser.Close(); err != nil {
		closeErr = fmt.Errorf("failed to close browser: %w", err)
	}
	if err := d.pw.Stop(); err != nil && closeErr == nil {
		closeErr = fmt.Errorf("failed to stop playwright driver: %w", err)
	}
	return closeErr
}

type pwContext struct {
	ctx    playwright.BrowserContext
	logger *zap.Logger
}

func (c *pwContext) NewPage() (Page, error) {
	p, err := c.ctx.NewPage()
	if err != nil {
		return nil, classifyDriverError(err)
	}
	page := &pwPage{page: p}
	// Capture console output into a bounded buffer so get_console_logs can
	// serve a snapshot without holding handles into the driver.
	p.OnConsole(func(msg playwright.ConsoleMessage) {
		page.appendConsole(ConsoleMessage{Type: msg.Type(), Text: msg.Text()})
	})
	return page, nil
}

func (c *pwContext) Close() error {
	if err := c.ctx.Close(); err != nil {
		return classifyDriverError(err)
	}
	return nil
}

type pwPage struct {
	page playwright.Page

	consoleMu  sync.Mutex
	consoleLog []ConsoleMessage
}

func (p *pwPage) appendConsole(msg ConsoleMessage) {
	p.consoleMu.Lock()
	defer p.consoleMu.Unlock()
	if len(p.consoleLog) >= consoleBufferCap {
		// Drop the oldest entry to keep the buffer bounded.
		copy(p.consoleLog, p.consoleLog[1:])
		p.consoleLog = p.consoleLog[:consoleBufferCap-1]
	}
	p.consoleLog = append(p.consoleLog, msg)
}

func (p *pwPage) ConsoleLogs() []ConsoleMessage {
	p.consoleMu.Lock()
	defer p.consoleMu.Unlock()
	out := make([]ConsoleMessage, len(p.consoleLog))
	copy(out, p.consoleLog)
	return out
}

func (p *pwPage) Navigate(_ context.Context, url string, opts NavigateOptions) (NavigationResult, error) {
	gotoOptions := playwright.PageGotoOptions{}
	if opts.Timeout > 0 {
		gotoOptions.Timeout = playwright.Float(float64(opts.Timeout.Milliseconds()))
	}
	if opts.WaitUntil != "" {
		waitUntil := playwright.WaitUntilState(opts.WaitUntil)
		gotoOptions.WaitUntil = &waitUntil
	}

	resp, err := p.page.Goto(url, gotoOptions)
	if err != nil {
		return NavigationResult{}, classifyDriverError(err)
	}

	result := NavigationResult{URL: p.page.URL()}
	if resp != nil {
		result.HTTPStatus = resp.Status()
	}
	return result, nil
}

func (p *pwPage) URL() string {
	return p.page.URL()
}

func (p *pwPage) Title(_ context.Context) (string, error) {
	title, err := p.page.Title()
	if err != nil {
		return "", classifyDriverError(err)
	}
	return title, nil
}

func (p *pwPage) Content(_ context.Context) (string, error) {
	content, err := p.page.Content()
	if err != nil {
		return "", classifyDriverError(err)
	}
	return content, nil
}

func (p *pwPage) Screenshot(_ context.Context, opts ScreenshotOptions) ([]byte, error) {
	screenshotOptions := playwright.PageScreenshotOptions{
		FullPage: playwright.Bool(opts.FullPage),
	}
	switch opts.Format {
	case "jpeg":
		screenshotOptions.Type = playwright.ScreenshotTypeJpeg
		if opts.Quality != nil {
			screenshotOptions.Quality = playwright.Int(*opts.Quality)
		}
	default:
		screenshotOptions.Type = playwright.ScreenshotTypePng
		if opts.OmitBackground {
			screenshotOptions.OmitBackground = playwright.Bool(true)
		}
	}
	if opts.Path != "" {
		screenshotOptions.Path = playwright.String(opts.Path)
	}

	data, err := p.page.Screenshot(screenshotOptions)
	if err != nil {
		return nil, classifyDriverError(err)
	}
	return data, nil
}

func (p *pwPage) Click(_ context.Context, selector string, opts ClickOptions) error {
	clickOptions := playwright.PageClickOptions{}
	if opts.Timeout > 0 {
		clickOptions.Timeout = playwright.Float(float64(opts.Timeout.Milliseconds()))
	}
	if opts.Button != "" {
		button := playwright.MouseButton(opts.Button)
		clickOptions.Button = &button
	}
	if opts.ClickCount > 0 {
		clickOptions.ClickCount = playwright.Int(opts.ClickCount)
	}
	return classifyDriverError(p.page.Click(selector, clickOptions))
}

func (p *pwPage) Fill(_ context.Context, selector, value string, timeout time.Duration) error {
	fillOptions := playwright.PageFillOptions{}
	if timeout > 0 {
		fillOptions.Timeout = playwright.Float(float64(timeout.Milliseconds()))
	}
	return classifyDriverError(p.page.Fill(selector, value, fillOptions))
}

func (p *pwPage) waitForSelector(selector string, timeout time.Duration) (playwright.ElementHandle, error) {
	waitOptions := playwright.PageWaitForSelectorOptions{}
	if timeout > 0 {
		waitOptions.Timeout = playwright.Float(float64(timeout.Milliseconds()))
	}
	element, err := p.page.WaitForSelector(selector, waitOptions)
	if err != nil {
		return nil, classifyDriverError(err)
	}
	if element == nil {
		return nil, fmt.Errorf("%w: no element matched selector %q", ErrTimeout, selector)
	}
	return element, nil
}

func (p *pwPage) Text(_ context.Context, selector string, timeout time.Duration) (string, error) {
	element, err := p.waitForSelector(selector, timeout)
	if err != nil {
		return "", err
	}
	text, err := element.TextContent()
	if err != nil {
		return "", classifyDriverError(err)
	}
	return text, nil
}

func (p *pwPage) Attribute(_ context.Context, selector, name string, timeout time.Duration) (string, error) {
	element, err := p.waitForSelector(selector, timeout)
	if err != nil {
		return "", err
	}
	value, err := element.GetAttribute(name)
	if err != nil {
		return "", classifyDriverError(err)
	}
	return value, nil
}

func (p *pwPage) Evaluate(_ context.Context, script string, arg any) (any, error) {
	var (
		result any
		err    error
	)
	if arg != nil {
		result, err = p.page.Evaluate(script, arg)
	} else {
		result, err = p.page.Evaluate(script)
	}
	if err != nil {
		return nil, classifyDriverError(err)
	}
	return result, nil
}

func (p *pwPage) Close() error {
	if err := p.page.Close(); err != nil {
		return classifyDriverError(err)
	}
	return nil
}

// classifyDriverError maps Playwright failures onto the package sentinels.
// Playwright surfaces most failures as message text only, so this shim keys
// on known substrings. It is best-effort compatibility, not a structural
// guarantee from the engine.
func classifyDriverError(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	lower := strings.ToLower(msg)
	switch {
	case strings.Contains(lower, "timeout"):
		return fmt.Errorf("%w: %s", ErrTimeout, msg)
	case strings.Contains(lower, "target closed"),
		strings.Contains(lower, "has been closed"),
		strings.Contains(lower, "target page, context or browser"):
		return fmt.Errorf("%w: %s", ErrTargetClosed, msg)
	}
	return err
}
