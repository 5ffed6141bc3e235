// File: internal/browser/driver.go
package browser

import (
	"context"
	"errors"
	"time"
)

// Sentinel errors produced by driver implementations. Handlers rely on these
// to classify failures into the wire error taxonomy.
var (
	// ErrTimeout marks a driver operation that expired before completing
	// (navigation deadline, selector wait, script evaluation).
	ErrTimeout = errors.New("driver operation timed out")
	// ErrTargetClosed marks an operation against a page or context that was
	// closed or navigated away mid-action.
	ErrTargetClosed = errors.New("driver target closed")
)

// LaunchOptions configure a browser process launch.
type LaunchOptions struct {
	Engine   string
	Headless bool
	SlowMo   time.Duration
	Proxy    string
	Args     []string
	// Install runs the driver's browser installation step before launching.
	Install bool
}

// Viewport is a page viewport size in CSS pixels.
type Viewport struct {
	Width  int
	Height int
}

// ContextOptions configure an isolated browsing context.
type ContextOptions struct {
	UserAgent string
	Viewport  *Viewport
	Proxy     string
}

// NavigateOptions configure a navigation call.
type NavigateOptions struct {
	Timeout   time.Duration
	WaitUntil string
}

// ClickOptions configure a click action.
type ClickOptions struct {
	Timeout    time.Duration
	Button     string
	ClickCount int
}

// ScreenshotOptions configure a page screenshot.
type ScreenshotOptions struct {
	FullPage       bool
	Format         string
	Quality        *int
	OmitBackground bool
	Path           string
}

// NavigationResult reports the outcome of a completed navigation.
type NavigationResult struct {
	URL        string
	HTTPStatus int
}

// ConsoleMessage is one console event captured on a page.
type ConsoleMessage struct {
	Type string
	Text string
}

// Driver is the automation engine boundary: a single launched browser
// process able to open isolated contexts. Implementations must be safe for
// concurrent use.
type Driver interface {
	// Connected reports whether the underlying browser process is alive.
	Connected() bool
	// NewContext opens an isolated cookie/storage scope.
	NewContext(opts ContextOptions) (Context, error)
	// Close terminates the browser process and releases the driver handle.
	Close() error
}

// Context is one isolated browsing scope owned by a Driver.
type Context interface {
	NewPage() (Page, error)
	Close() error
}

// Page is a single navigable document. Blocking operations take a context
// for cancellation; the per-call timeout is carried in the options because
// the engine enforces deadlines internally.
type Page interface {
	Navigate(ctx context.Context, url string, opts NavigateOptions) (NavigationResult, error)
	URL() string
	Title(ctx context.Context) (string, error)
	Content(ctx context.Context) (string, error)
	Screenshot(ctx context.Context, opts ScreenshotOptions) ([]byte, error)
	Click(ctx context.Context, selector string, opts ClickOptions) error
	Fill(ctx context.Context, selector, value string, timeout time.Duration) error
	Text(ctx context.Context, selector string, timeout time.Duration) (string, error)
	Attribute(ctx context.Context, selector, name string, timeout time.Duration) (string, error)
	Evaluate(ctx context.Context, script string, arg any) (any, error)
	// ConsoleLogs drains a snapshot of the page's captured console messages.
	ConsoleLogs() []ConsoleMessage
	Close() error
}

// Launcher starts a browser process and returns its driver handle.
type Launcher func(ctx context.Context, opts LaunchOptions) (Driver, error)
