// File: internal/rpc/handlers.go
package rpc

import (
	"context"
	"encoding/base64"
	"errors"
	"os"
	"path/filepath"

	homedir "github.com/mitchellh/go-homedir"
	"go.uber.org/zap"

	"github.com/xkilldash9x/puppetd/api/schemas"
	"github.com/xkilldash9x/puppetd/internal/browser"
	"github.com/xkilldash9x/puppetd/internal/config"
)

// SessionRegistry is the registry surface the RPC handlers consume.
type SessionRegistry interface {
	StartBrowser(ctx context.Context) error
	CloseBrowser() error
	CreateContext(ctx context.Context, id string, opts *browser.ContextOptions) (string, error)
	CreatePage(ctx context.Context, contextID, pageID string) (string, error)
	GetActivePage() (browser.Page, string, bool)
	SetActiveContext(id string) error
	SetActivePage(id string) error
	ClosePage(id string) (bool, error)
	CloseContext(id string) (bool, error)
	ActiveIDs() (contextID, pageID string)
	ListContexts() []schemas.ContextInfo
	ListPages() []schemas.PageInfo
}

// Handlers implements every puppeteer.* method against a session registry.
type Handlers struct {
	reg    SessionRegistry
	cfg    config.BrowserConfig
	logger *zap.Logger
}

// NewHandlers wires the method implementations.
func NewHandlers(reg SessionRegistry, cfg config.BrowserConfig, logger *zap.Logger) *Handlers {
	return &Handlers{reg: reg, cfg: cfg, logger: logger.Named("handlers")}
}

// Mount registers every method on the dispatcher, once under its canonical
// "puppeteer." prefixed name and once under the bare action name.
func (h *Handlers) Mount(d *Dispatcher) {
	methods := map[string]HandlerFunc{
		"start_browser":         h.StartBrowser,
		"close_browser":         h.CloseBrowser,
		"create_context":        h.CreateContext,
		"create_page":           h.CreatePage,
		"switch_context":        h.SwitchContext,
		"switch_page":           h.SwitchPage,
		"close_context":         h.CloseContext,
		"close_page":            h.ClosePage,
		"list_contexts":         h.ListContexts,
		"list_pages":            h.ListPages,
		"navigate":              h.Navigate,
		"get_page_title":        h.GetPageTitle,
		"get_current_url":       h.GetCurrentURL,
		"get_page_content":      h.GetPageContent,
		"take_page_screenshot":  h.TakePageScreenshot,
		"click_element":         h.ClickElement,
		"fill_form_field":       h.FillFormField,
		"get_element_text":      h.GetElementText,
		"get_element_attribute": h.GetElementAttribute,
		"execute_javascript":    h.ExecuteJavascript,
		"get_console_logs":      h.GetConsoleLogs,
	}
	for name, fn := range methods {
		d.Register("puppeteer."+name, fn)
		d.Register(name, fn)
	}
}

// activePage resolves the current target page, lazily starting the browser
// when nothing is running yet.
func (h *Handlers) activePage(ctx context.Context) (browser.Page, *Error) {
	if page, _, ok := h.reg.GetActivePage(); ok {
		return page, nil
	}
	if err := h.reg.StartBrowser(ctx); err != nil {
		return nil, ErrBrowserOperation("failed to start browser: %v", err)
	}
	page, _, ok := h.reg.GetActivePage()
	if !ok {
		return nil, ErrPageNotAvailable("no page is available; create a page first")
	}
	return page, nil
}

// classifySelectorError maps driver failures on selector-addressed actions.
// A timeout or a closed target means the element never became actionable, so
// both surface as element-not-found.
func classifySelectorError(err error, selector string) *Error {
	if errors.Is(err, browser.ErrTimeout) || errors.Is(err, browser.ErrTargetClosed) {
		return ErrElementNotFound("element not found or not actionable: %s", selector).
			WithData(err.Error())
	}
	return ErrBrowserOperation("browser operation failed: %v", err)
}

// -- Lifecycle --

func (h *Handlers) StartBrowser(ctx context.Context, _ Params) (any, error) {
	if err := h.reg.StartBrowser(ctx); err != nil {
		return nil, ErrBrowserOperation("failed to start browser: %v", err)
	}
	return schemas.ActionResult{Status: schemas.StatusSuccess}, nil
}

func (h *Handlers) CloseBrowser(_ context.Context, _ Params) (any, error) {
	if err := h.reg.CloseBrowser(); err != nil {
		return nil, ErrBrowserOperation("failed to close browser: %v", err)
	}
	return schemas.ActionResult{Status: schemas.StatusSuccess}, nil
}

// -- Context and page management --

func (h *Handlers) CreateContext(ctx context.Context, p Params) (any, error) {
	id, errp := p.OptionalString("context_id", "")
	if errp != nil {
		return nil, errp
	}
	rawOpts, errp := p.Object("context_options")
	if errp != nil {
		return nil, errp
	}
	opts, errp := parseContextOptions(rawOpts)
	if errp != nil {
		return nil, errp
	}

	cid, err := h.reg.CreateContext(ctx, id, opts)
	if err != nil {
		if errors.Is(err, browser.ErrContextIDInUse) {
			return nil, ErrInvalidParams("context id %q is already in use", id)
		}
		return nil, ErrBrowserOperation("failed to create context: %v", err)
	}
	return schemas.CreateContextResult{Status: schemas.StatusSuccess, ContextID: cid}, nil
}

func (h *Handlers) CreatePage(ctx context.Context, p Params) (any, error) {
	contextID, errp := p.OptionalString("context_id", "")
	if errp != nil {
		return nil, errp
	}
	pageID, errp := p.OptionalString("page_id", "")
	if errp != nil {
		return nil, errp
	}

	pid, err := h.reg.CreatePage(ctx, contextID, pageID)
	if err != nil {
		switch {
		case errors.Is(err, browser.ErrPageIDInUse):
			return nil, ErrInvalidParams("page id %q is already in use", pageID)
		case errors.Is(err, browser.ErrContextNotFound):
			return nil, ErrBrowserOperation("context not found: %s", contextID)
		}
		return nil, ErrBrowserOperation("failed to create page: %v", err)
	}
	activeCtx, _ := h.reg.ActiveIDs()
	ownerCtx := contextID
	if ownerCtx == "" {
		ownerCtx = activeCtx
	}
	return schemas.CreatePageResult{
		Status:    schemas.StatusSuccess,
		PageID:    pid,
		ContextID: ownerCtx,
	}, nil
}

func (h *Handlers) SwitchContext(_ context.Context, p Params) (any, error) {
	id, errp := p.String("context_id")
	if errp != nil {
		return nil, errp
	}
	if err := h.reg.SetActiveContext(id); err != nil {
		return nil, ErrBrowserOperation("context not found: %s", id)
	}
	activeCtx, activePage := h.reg.ActiveIDs()
	return schemas.SwitchResult{
		Status:          schemas.StatusSuccess,
		ActiveContextID: activeCtx,
		ActivePageID:    activePage,
	}, nil
}

func (h *Handlers) SwitchPage(_ context.Context, p Params) (any, error) {
	id, errp := p.String("page_id")
	if errp != nil {
		return nil, errp
	}
	if err := h.reg.SetActivePage(id); err != nil {
		return nil, ErrBrowserOperation("page not found: %s", id)
	}
	activeCtx, activePage := h.reg.ActiveIDs()
	return schemas.SwitchResult{
		Status:          schemas.StatusSuccess,
		ActiveContextID: activeCtx,
		ActivePageID:    activePage,
	}, nil
}

func (h *Handlers) CloseContext(_ context.Context, p Params) (any, error) {
	id, errp := p.String("context_id")
	if errp != nil {
		return nil, errp
	}
	found, err := h.reg.CloseContext(id)
	if err != nil {
		return nil, ErrBrowserOperation("failed to close context: %v", err)
	}
	status := schemas.StatusSuccess
	if !found {
		status = schemas.StatusNotFound
	}
	return schemas.CloseContextResult{Status: status, ContextID: id}, nil
}

func (h *Handlers) ClosePage(_ context.Context, p Params) (any, error) {
	id, errp := p.String("page_id")
	if errp != nil {
		return nil, errp
	}
	found, err := h.reg.ClosePage(id)
	if err != nil {
		return nil, ErrBrowserOperation("failed to close page: %v", err)
	}
	status := schemas.StatusSuccess
	if !found {
		status = schemas.StatusNotFound
	}
	return schemas.ClosePageResult{Status: status, PageID: id}, nil
}

func (h *Handlers) ListContexts(_ context.Context, _ Params) (any, error) {
	return schemas.ListContextsResult{
		Status:   schemas.StatusSuccess,
		Contexts: h.reg.ListContexts(),
	}, nil
}

func (h *Handlers) ListPages(_ context.Context, _ Params) (any, error) {
	return schemas.ListPagesResult{
		Status: schemas.StatusSuccess,
		Pages:  h.reg.ListPages(),
	}, nil
}

// -- Page operations --

func (h *Handlers) Navigate(ctx context.Context, p Params) (any, error) {
	url, errp := p.String("url")
	if errp != nil {
		return nil, errp
	}
	timeout, errp := p.Timeout("timeout", h.cfg.DefaultTimeout)
	if errp != nil {
		return nil, errp
	}
	waitUntil, errp := p.OptionalString("wait_until", "")
	if errp != nil {
		return nil, errp
	}

	page, errp := h.activePage(ctx)
	if errp != nil {
		return nil, errp
	}
	result, err := page.Navigate(ctx, url, browser.NavigateOptions{
		Timeout:   timeout,
		WaitUntil: waitUntil,
	})
	if err != nil {
		return nil, ErrBrowserOperation("navigation to %s failed: %v", url, err)
	}
	h.logger.Info("Navigated.", zap.String("url", result.URL), zap.Int("http_status", result.HTTPStatus))
	return schemas.NavigateResult{
		Status:     schemas.StatusSuccess,
		URL:        result.URL,
		HTTPStatus: result.HTTPStatus,
	}, nil
}

func (h *Handlers) GetPageTitle(ctx context.Context, _ Params) (any, error) {
	page, errp := h.activePage(ctx)
	if errp != nil {
		return nil, errp
	}
	title, err := page.Title(ctx)
	if err != nil {
		return nil, ErrBrowserOperation("failed to get page title: %v", err)
	}
	return schemas.TitleResult{Status: schemas.StatusSuccess, Title: title}, nil
}

func (h *Handlers) GetCurrentURL(ctx context.Context, _ Params) (any, error) {
	page, errp := h.activePage(ctx)
	if errp != nil {
		return nil, errp
	}
	return schemas.URLResult{Status: schemas.StatusSuccess, URL: page.URL()}, nil
}

func (h *Handlers) GetPageContent(ctx context.Context, _ Params) (any, error) {
	page, errp := h.activePage(ctx)
	if errp != nil {
		return nil, errp
	}
	content, err := page.Content(ctx)
	if err != nil {
		return nil, ErrBrowserOperation("failed to get page content: %v", err)
	}
	return schemas.ContentResult{Status: schemas.StatusSuccess, Content: content}, nil
}

func (h *Handlers) TakePageScreenshot(ctx context.Context, p Params) (any, error) {
	filePath, errp := p.OptionalString("path", "")
	if errp != nil {
		return nil, errp
	}
	fullPage, errp := p.OptionalBool("full_page", true)
	if errp != nil {
		return nil, errp
	}
	format, errp := p.OptionalString("type", "png")
	if errp != nil {
		return nil, errp
	}
	if format != "png" && format != "jpeg" {
		return nil, ErrInvalidParams(`parameter "type" must be "png" or "jpeg"`)
	}
	omitBackground, errp := p.OptionalBool("omit_background", false)
	if errp != nil {
		return nil, errp
	}
	opts := browser.ScreenshotOptions{
		FullPage:       fullPage,
		Format:         format,
		OmitBackground: omitBackground,
	}
	if p.Has("quality") {
		quality, errp := p.OptionalInt("quality", 0)
		if errp != nil {
			return nil, errp
		}
		if quality < 0 || quality > 100 {
			return nil, ErrInvalidParams(`parameter "quality" must be between 0 and 100`)
		}
		opts.Quality = &quality
	}

	if filePath != "" {
		expanded, err := homedir.Expand(filePath)
		if err != nil {
			return nil, ErrInvalidParams("invalid path: %v", err)
		}
		if dir := filepath.Dir(expanded); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, ErrBrowserOperation("failed to create screenshot directory: %v", err)
			}
		}
		opts.Path = expanded
	}

	page, errp := h.activePage(ctx)
	if errp != nil {
		return nil, errp
	}
	data, err := page.Screenshot(ctx, opts)
	if err != nil {
		return nil, ErrBrowserOperation("failed to take screenshot: %v", err)
	}

	if opts.Path != "" {
		h.logger.Info("Screenshot written.", zap.String("file_path", opts.Path))
		return schemas.ScreenshotResult{Status: schemas.StatusSuccess, FilePath: opts.Path}, nil
	}
	return schemas.ScreenshotResult{
		Status:      schemas.StatusSuccess,
		ImageBase64: base64.StdEncoding.EncodeToString(data),
	}, nil
}

// -- Element operations --

func (h *Handlers) ClickElement(ctx context.Context, p Params) (any, error) {
	selector, errp := p.String("selector")
	if errp != nil {
		return nil, errp
	}
	timeout, errp := p.Timeout("timeout", h.cfg.DefaultTimeout)
	if errp != nil {
		return nil, errp
	}
	button, errp := p.OptionalString("button", "")
	if errp != nil {
		return nil, errp
	}
	clickCount, errp := p.OptionalInt("click_count", 0)
	if errp != nil {
		return nil, errp
	}

	page, errp := h.activePage(ctx)
	if errp != nil {
		return nil, errp
	}
	err := page.Click(ctx, selector, browser.ClickOptions{
		Timeout:    timeout,
		Button:     button,
		ClickCount: clickCount,
	})
	if err != nil {
		return nil, classifySelectorError(err, selector)
	}
	return schemas.ActionResult{Status: schemas.StatusSuccess}, nil
}

func (h *Handlers) FillFormField(ctx context.Context, p Params) (any, error) {
	selector, errp := p.String("selector")
	if errp != nil {
		return nil, errp
	}
	value, errp := p.StringAllowEmpty("value")
	if errp != nil {
		return nil, errp
	}
	timeout, errp := p.Timeout("timeout", h.cfg.DefaultTimeout)
	if errp != nil {
		return nil, errp
	}

	page, errp := h.activePage(ctx)
	if errp != nil {
		return nil, errp
	}
	if err := page.Fill(ctx, selector, value, timeout); err != nil {
		return nil, classifySelectorError(err, selector)
	}
	return schemas.ActionResult{Status: schemas.StatusSuccess}, nil
}

func (h *Handlers) GetElementText(ctx context.Context, p Params) (any, error) {
	selector, errp := p.String("selector")
	if errp != nil {
		return nil, errp
	}
	timeout, errp := p.Timeout("timeout", h.cfg.DefaultTimeout)
	if errp != nil {
		return nil, errp
	}

	page, errp := h.activePage(ctx)
	if errp != nil {
		return nil, errp
	}
	text, err := page.Text(ctx, selector, timeout)
	if err != nil {
		return nil, classifySelectorError(err, selector)
	}
	return schemas.TextResult{Status: schemas.StatusSuccess, Text: text}, nil
}

func (h *Handlers) GetElementAttribute(ctx context.Context, p Params) (any, error) {
	selector, errp := p.String("selector")
	if errp != nil {
		return nil, errp
	}
	attribute, errp := p.String("attribute_name")
	if errp != nil {
		return nil, errp
	}
	timeout, errp := p.Timeout("timeout", h.cfg.DefaultTimeout)
	if errp != nil {
		return nil, errp
	}

	page, errp := h.activePage(ctx)
	if errp != nil {
		return nil, errp
	}
	value, err := page.Attribute(ctx, selector, attribute, timeout)
	if err != nil {
		return nil, classifySelectorError(err, selector)
	}
	return schemas.AttributeResult{Status: schemas.StatusSuccess, Value: value}, nil
}

// -- Scripting and diagnostics --

func (h *Handlers) ExecuteJavascript(ctx context.Context, p Params) (any, error) {
	script, errp := p.String("script")
	if errp != nil {
		return nil, errp
	}
	arg, _ := p.Raw("args")

	page, errp := h.activePage(ctx)
	if errp != nil {
		return nil, errp
	}
	result, err := page.Evaluate(ctx, script, arg)
	if err != nil {
		return nil, ErrBrowserOperation("script execution failed: %v", err)
	}
	return schemas.ScriptResult{Status: schemas.StatusSuccess, Result: result}, nil
}

func (h *Handlers) GetConsoleLogs(ctx context.Context, _ Params) (any, error) {
	page, errp := h.activePage(ctx)
	if errp != nil {
		return nil, errp
	}
	msgs := page.ConsoleLogs()
	logs := make([]schemas.ConsoleLogEntry, 0, len(msgs))
	for _, msg := range msgs {
		logs = append(logs, schemas.ConsoleLogEntry{Type: msg.Type, Text: msg.Text})
	}
	return schemas.ConsoleLogsResult{Status: schemas.StatusSuccess, Logs: logs}, nil
}

// parseContextOptions decodes the context_options object into driver options.
func parseContextOptions(raw map[string]any) (*browser.ContextOptions, *Error) {
	if raw == nil {
		return nil, nil
	}
	opts := &browser.ContextOptions{}

	if v, ok := raw["user_agent"]; ok && v != nil {
		s, ok := v.(string)
		if !ok {
			return nil, ErrInvalidParams(`context option "user_agent" must be a string`)
		}
		opts.UserAgent = s
	}
	if v, ok := raw["proxy"]; ok && v != nil {
		s, ok := v.(string)
		if !ok {
			return nil, ErrInvalidParams(`context option "proxy" must be a string`)
		}
		opts.Proxy = s
	}
	if v, ok := raw["viewport"]; ok && v != nil {
		m, ok := v.(map[string]any)
		if !ok {
			return nil, ErrInvalidParams(`context option "viewport" must be an object`)
		}
		width, wok := m["width"].(float64)
		height, hok := m["height"].(float64)
		if !wok || !hok || width <= 0 || height <= 0 {
			return nil, ErrInvalidParams(`context option "viewport" requires positive "width" and "height"`)
		}
		opts.Viewport = &browser.Viewport{Width: int(width), Height: int(height)}
	}
	return opts, nil
}
