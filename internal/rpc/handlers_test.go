// File: internal/rpc/handlers_test.go
package rpc

import (
	"context"
	"encoding/base64"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xkilldash9x/puppetd/api/schemas"
	"github.com/xkilldash9x/puppetd/internal/browser"
	"github.com/xkilldash9x/puppetd/internal/config"
)

// scriptedPage is a browser.Page whose behavior is fixed per test.
type scriptedPage struct {
	url     string
	title   string
	content string
	text    string
	attr    string
	shot    []byte
	eval    any
	console []browser.ConsoleMessage

	navErr   error
	clickErr error
	fillErr  error
	textErr  error
	attrErr  error
	shotErr  error
	evalErr  error

	gotShotOpts  browser.ScreenshotOptions
	gotEvalArg   any
	gotFillValue string
}

func (p *scriptedPage) Navigate(_ context.Context, url string, _ browser.NavigateOptions) (browser.NavigationResult, error) {
	if p.navErr != nil {
		return browser.NavigationResult{}, p.navErr
	}
	return browser.NavigationResult{URL: url, HTTPStatus: 200}, nil
}

func (p *scriptedPage) URL() string { return p.url }
func (p *scriptedPage) Title(context.Context) (string, error) { return p.title, nil }
func (p *scriptedPage) Content(context.Context) (string, error) { return p.content, nil }
func (p *scriptedPage) ConsoleLogs() []browser.ConsoleMessage { return p.console }
func (p *scriptedPage) Close() error { return nil }

func (p *scriptedPage) Screenshot(_ context.Context, opts browser.ScreenshotOptions) ([]byte, error) {
	p.gotShotOpts = opts
	return p.shot, p.shotErr
}

func (p *scriptedPage) Click(_ context.Context, selector string, _ browser.ClickOptions) error {
	return p.clickErr
}

func (p *scriptedPage) Fill(_ context.Context, selector, value string, _ time.Duration) error {
	p.gotFillValue = value
	return p.fillErr
}

func (p *scriptedPage) Text(context.Context, string, time.Duration) (string, error) {
	return p.text, p.textErr
}

func (p *scriptedPage) Attribute(context.Context, string, string, time.Duration) (string, error) {
	return p.attr, p.attrErr
}

func (p *scriptedPage) Evaluate(_ context.Context, _ string, arg any) (any, error) {
	p.gotEvalArg = arg
	return p.eval, p.evalErr
}

// stubRegistry is a scriptable SessionRegistry.
type stubRegistry struct {
	page    *scriptedPage
	pageID  string
	hasPage bool

	startErr     error
	started      bool
	healOnStart  bool
	createCtxID  string
	createCtxErr error
	gotCtxOpts   *browser.ContextOptions
	createPgID   string
	createPgErr  error
	switchCtxErr error
	switchPgErr  error
	closeFound   bool
	activeCtx    string
	activePg     string
	contexts     []schemas.ContextInfo
	pages        []schemas.PageInfo
	closed       bool
}

func (s *stubRegistry) StartBrowser(context.Context) error {
	if s.startErr != nil {
		return s.startErr
	}
	s.started = true
	if s.healOnStart {
		s.hasPage = true
	}
	return nil
}

func (s *stubRegistry) CloseBrowser() error { s.closed = true; return nil }

func (s *stubRegistry) CreateContext(_ context.Context, id string, opts *browser.ContextOptions) (string, error) {
	s.gotCtxOpts = opts
	if s.createCtxErr != nil {
		return "", s.createCtxErr
	}
	if s.createCtxID != "" {
		return s.createCtxID, nil
	}
	return id, nil
}

func (s *stubRegistry) CreatePage(_ context.Context, contextID, pageID string) (string, error) {
	if s.createPgErr != nil {
		return "", s.createPgErr
	}
	return s.createPgID, nil
}

func (s *stubRegistry) GetActivePage() (browser.Page, string, bool) {
	if !s.hasPage {
		return nil, "", false
	}
	return s.page, s.pageID, true
}

func (s *stubRegistry) SetActiveContext(string) error { return s.switchCtxErr }
func (s *stubRegistry) SetActivePage(string) error { return s.switchPgErr }

func (s *stubRegistry) ClosePage(string) (bool, error) { return s.closeFound, nil }
func (s *stubRegistry) CloseContext(string) (bool, error) { return s.closeFound, nil }

func (s *stubRegistry) ActiveIDs() (string, string) { return s.activeCtx, s.activePg }
func (s *stubRegistry) ListContexts() []schemas.ContextInfo { return s.contexts }
func (s *stubRegistry) ListPages() []schemas.PageInfo { return s.pages }

func newTestHandlers(reg SessionRegistry) *Handlers {
	cfg := config.BrowserConfig{DefaultTimeout: 5 * time.Second}
	return NewHandlers(reg, cfg, zap.NewNop())
}

func readyRegistry() *stubRegistry {
	return &stubRegistry{
		page:    &scriptedPage{url: "https://example.com/", title: "Example"},
		pageID:  "page_1",
		hasPage: true,
	}
}

func rpcErr(t *testing.T, err error) *Error {
	t.Helper()
	var e *Error
	require.ErrorAs(t, err, &e)
	return e
}

func TestNavigateResultShape(t *testing.T) {
	h := newTestHandlers(readyRegistry())

	result, err := h.Navigate(context.Background(), newParams(map[string]any{
		"url": "https://example.com/page",
	}))
	require.NoError(t, err)

	nav, ok := result.(schemas.NavigateResult)
	require.True(t, ok)
	assert.Equal(t, schemas.StatusSuccess, nav.Status)
	assert.Equal(t, "https://example.com/page", nav.URL)
	assert.Equal(t, 200, nav.HTTPStatus)
}

func TestNavigateMissingURL(t *testing.T) {
	h := newTestHandlers(readyRegistry())

	_, err := h.Navigate(context.Background(), newParams(map[string]any{}))
	assert.Equal(t, schemas.CodeInvalidParams, rpcErr(t, err).Code)
}

func TestNavigateFailureIsBrowserOperationError(t *testing.T) {
	reg := readyRegistry()
	reg.page.navErr = fmt.Errorf("%w: net::ERR_NAME_NOT_RESOLVED", browser.ErrTimeout)
	h := newTestHandlers(reg)

	_, err := h.Navigate(context.Background(), newParams(map[string]any{"url": "https://nope.invalid/"}))
	assert.Equal(t, schemas.CodeBrowserOperationError, rpcErr(t, err).Code,
		"navigation failures never reclassify as element errors")
}

func TestActivePageLazyStart(t *testing.T) {
	reg := readyRegistry()
	reg.hasPage = false
	reg.healOnStart = true
	h := newTestHandlers(reg)

	result, err := h.GetPageTitle(context.Background(), newParams(nil))
	require.NoError(t, err)
	assert.True(t, reg.started)
	assert.Equal(t, "Example", result.(schemas.TitleResult).Title)
}

func TestActivePageUnavailable(t *testing.T) {
	reg := readyRegistry()
	reg.hasPage = false
	h := newTestHandlers(reg)

	_, err := h.GetCurrentURL(context.Background(), newParams(nil))
	assert.Equal(t, schemas.CodePageNotAvailableError, rpcErr(t, err).Code)
}

func TestActivePageStartFailure(t *testing.T) {
	reg := readyRegistry()
	reg.hasPage = false
	reg.startErr = fmt.Errorf("no display")
	h := newTestHandlers(reg)

	_, err := h.GetPageContent(context.Background(), newParams(nil))
	assert.Equal(t, schemas.CodeBrowserOperationError, rpcErr(t, err).Code)
}

func TestClickElementValidation(t *testing.T) {
	h := newTestHandlers(readyRegistry())

	_, err := h.ClickElement(context.Background(), newParams(map[string]any{}))
	e := rpcErr(t, err)
	assert.Equal(t, schemas.CodeInvalidParams, e.Code)
	assert.Contains(t, e.Message, "selector")
}

func TestClickElementTimeoutIsElementNotFound(t *testing.T) {
	reg := readyRegistry()
	reg.page.clickErr = fmt.Errorf("%w: waiting for selector", browser.ErrTimeout)
	h := newTestHandlers(reg)

	_, err := h.ClickElement(context.Background(), newParams(map[string]any{"selector": "#missing"}))
	e := rpcErr(t, err)
	assert.Equal(t, schemas.CodeElementNotFoundError, e.Code)
	assert.Contains(t, e.Message, "#missing")
}

func TestClickElementTargetClosedIsElementNotFound(t *testing.T) {
	reg := readyRegistry()
	reg.page.clickErr = fmt.Errorf("%w: page navigated away", browser.ErrTargetClosed)
	h := newTestHandlers(reg)

	_, err := h.ClickElement(context.Background(), newParams(map[string]any{"selector": "#gone"}))
	assert.Equal(t, schemas.CodeElementNotFoundError, rpcErr(t, err).Code)
}

func TestFillFormFieldAllowsEmptyValue(t *testing.T) {
	reg := readyRegistry()
	h := newTestHandlers(reg)

	result, err := h.FillFormField(context.Background(), newParams(map[string]any{
		"selector": "#q",
		"value":    "",
	}))
	require.NoError(t, err)
	assert.Equal(t, schemas.StatusSuccess, result.(schemas.ActionResult).Status)
	assert.Equal(t, "", reg.page.gotFillValue)
}

func TestFillFormFieldRequiresValue(t *testing.T) {
	h := newTestHandlers(readyRegistry())

	_, err := h.FillFormField(context.Background(), newParams(map[string]any{"selector": "#q"}))
	assert.Equal(t, schemas.CodeInvalidParams, rpcErr(t, err).Code)
}

func TestGetElementAttributeRequiresAttribute(t *testing.T) {
	h := newTestHandlers(readyRegistry())

	_, err := h.GetElementAttribute(context.Background(), newParams(map[string]any{"selector": "a"}))
	e := rpcErr(t, err)
	assert.Equal(t, schemas.CodeInvalidParams, e.Code)
	assert.Contains(t, e.Message, "attribute_name")
}

func TestGetElementAttributeSuccess(t *testing.T) {
	reg := readyRegistry()
	reg.page.attr = "https://example.com/link"
	h := newTestHandlers(reg)

	result, err := h.GetElementAttribute(context.Background(), newParams(map[string]any{
		"selector":       "a",
		"attribute_name": "href",
	}))
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/link", result.(schemas.AttributeResult).Value)
}

func TestGetElementTextNotFoundClassification(t *testing.T) {
	reg := readyRegistry()
	reg.page.textErr = fmt.Errorf("%w: waiting for selector", browser.ErrTimeout)
	h := newTestHandlers(reg)

	_, err := h.GetElementText(context.Background(), newParams(map[string]any{"selector": ".none"}))
	assert.Equal(t, schemas.CodeElementNotFoundError, rpcErr(t, err).Code)
}

func TestExecuteJavascriptPassesArg(t *testing.T) {
	reg := readyRegistry()
	reg.page.eval = float64(3)
	h := newTestHandlers(reg)

	result, err := h.ExecuteJavascript(context.Background(), newParams(map[string]any{
		"script": "(x) => x + 1",
		"args":   float64(2),
	}))
	require.NoError(t, err)
	assert.Equal(t, float64(2), reg.page.gotEvalArg)
	assert.Equal(t, float64(3), result.(schemas.ScriptResult).Result)
}

func TestTakePageScreenshotBase64(t *testing.T) {
	reg := readyRegistry()
	reg.page.shot = []byte("png-bytes")
	h := newTestHandlers(reg)

	result, err := h.TakePageScreenshot(context.Background(), newParams(map[string]any{}))
	require.NoError(t, err)

	shot := result.(schemas.ScreenshotResult)
	assert.Equal(t, base64.StdEncoding.EncodeToString([]byte("png-bytes")), shot.ImageBase64)
	assert.Empty(t, shot.FilePath)
	assert.True(t, reg.page.gotShotOpts.FullPage, "full_page defaults to true")
}

func TestTakePageScreenshotFullPageOptOut(t *testing.T) {
	reg := readyRegistry()
	reg.page.shot = []byte("png-bytes")
	h := newTestHandlers(reg)

	_, err := h.TakePageScreenshot(context.Background(), newParams(map[string]any{
		"full_page": false,
	}))
	require.NoError(t, err)
	assert.False(t, reg.page.gotShotOpts.FullPage)
}

func TestTakePageScreenshotToFile(t *testing.T) {
	reg := readyRegistry()
	reg.page.shot = []byte("png-bytes")
	h := newTestHandlers(reg)

	target := filepath.Join(t.TempDir(), "shots", "page.png")
	result, err := h.TakePageScreenshot(context.Background(), newParams(map[string]any{
		"path": target,
	}))
	require.NoError(t, err)

	shot := result.(schemas.ScreenshotResult)
	assert.Equal(t, target, shot.FilePath)
	assert.Empty(t, shot.ImageBase64)
	assert.Equal(t, target, reg.page.gotShotOpts.Path)
	assert.DirExists(t, filepath.Dir(target))
}

func TestTakePageScreenshotRejectsBadFormat(t *testing.T) {
	h := newTestHandlers(readyRegistry())

	_, err := h.TakePageScreenshot(context.Background(), newParams(map[string]any{
		"type": "bmp",
	}))
	assert.Equal(t, schemas.CodeInvalidParams, rpcErr(t, err).Code)
}

func TestCreateContextCollisionIsInvalidParams(t *testing.T) {
	reg := readyRegistry()
	reg.createCtxErr = fmt.Errorf("%w: %q", browser.ErrContextIDInUse, "dup")
	h := newTestHandlers(reg)

	_, err := h.CreateContext(context.Background(), newParams(map[string]any{"context_id": "dup"}))
	assert.Equal(t, schemas.CodeInvalidParams, rpcErr(t, err).Code)
}

func TestCreateContextForwardsOptions(t *testing.T) {
	reg := readyRegistry()
	reg.createCtxID = "ctx_2"
	h := newTestHandlers(reg)

	result, err := h.CreateContext(context.Background(), newParams(map[string]any{
		"context_options": map[string]any{
			"user_agent": "bot/1.0",
			"viewport":   map[string]any{"width": float64(1024), "height": float64(768)},
		},
	}))
	require.NoError(t, err)
	assert.Equal(t, "ctx_2", result.(schemas.CreateContextResult).ContextID)
	require.NotNil(t, reg.gotCtxOpts)
	assert.Equal(t, "bot/1.0", reg.gotCtxOpts.UserAgent)
	require.NotNil(t, reg.gotCtxOpts.Viewport)
	assert.Equal(t, 1024, reg.gotCtxOpts.Viewport.Width)
}

func TestCreateContextRejectsBadViewport(t *testing.T) {
	h := newTestHandlers(readyRegistry())

	_, err := h.CreateContext(context.Background(), newParams(map[string]any{
		"context_options": map[string]any{"viewport": map[string]any{"width": float64(-1)}},
	}))
	assert.Equal(t, schemas.CodeInvalidParams, rpcErr(t, err).Code)
}

func TestCreatePageUnknownContext(t *testing.T) {
	reg := readyRegistry()
	reg.createPgErr = fmt.Errorf("%w: %q", browser.ErrContextNotFound, "missing")
	h := newTestHandlers(reg)

	_, err := h.CreatePage(context.Background(), newParams(map[string]any{"context_id": "missing"}))
	assert.Equal(t, schemas.CodeBrowserOperationError, rpcErr(t, err).Code)
}

func TestSwitchContextUnknownIsBrowserOperationError(t *testing.T) {
	reg := readyRegistry()
	reg.switchCtxErr = fmt.Errorf("%w: %q", browser.ErrContextNotFound, "ghost")
	h := newTestHandlers(reg)

	_, err := h.SwitchContext(context.Background(), newParams(map[string]any{"context_id": "ghost"}))
	e := rpcErr(t, err)
	assert.Equal(t, schemas.CodeBrowserOperationError, e.Code)
	assert.Contains(t, e.Message, "ghost")
}

func TestSwitchPageReportsSelection(t *testing.T) {
	reg := readyRegistry()
	reg.activeCtx, reg.activePg = "ctx_2", "page_5"
	h := newTestHandlers(reg)

	result, err := h.SwitchPage(context.Background(), newParams(map[string]any{"page_id": "page_5"}))
	require.NoError(t, err)

	sw := result.(schemas.SwitchResult)
	assert.Equal(t, "ctx_2", sw.ActiveContextID)
	assert.Equal(t, "page_5", sw.ActivePageID)
}

func TestCloseContextNotFoundIsHandledResult(t *testing.T) {
	reg := readyRegistry()
	reg.closeFound = false
	h := newTestHandlers(reg)

	result, err := h.CloseContext(context.Background(), newParams(map[string]any{"context_id": "ghost"}))
	require.NoError(t, err, "an unknown id is a handled outcome, not a protocol error")

	closed := result.(schemas.CloseContextResult)
	assert.Equal(t, schemas.StatusNotFound, closed.Status)
	assert.Equal(t, "ghost", closed.ContextID)
}

func TestClosePageSuccess(t *testing.T) {
	reg := readyRegistry()
	reg.closeFound = true
	h := newTestHandlers(reg)

	result, err := h.ClosePage(context.Background(), newParams(map[string]any{"page_id": "page_1"}))
	require.NoError(t, err)
	assert.Equal(t, schemas.StatusSuccess, result.(schemas.ClosePageResult).Status)
}

func TestGetConsoleLogs(t *testing.T) {
	reg := readyRegistry()
	reg.page.console = []browser.ConsoleMessage{
		{Type: "log", Text: "hello"},
		{Type: "error", Text: "boom"},
	}
	h := newTestHandlers(reg)

	result, err := h.GetConsoleLogs(context.Background(), newParams(nil))
	require.NoError(t, err)

	logs := result.(schemas.ConsoleLogsResult)
	require.Len(t, logs.Logs, 2)
	assert.Equal(t, "error", logs.Logs[1].Type)
}

func TestMountRegistersAliases(t *testing.T) {
	d := newTestDispatcher()
	newTestHandlers(readyRegistry()).Mount(d)

	for _, body := range []string{
		`{"jsonrpc":"2.0","method":"puppeteer.get_current_url","id":1}`,
		`{"jsonrpc":"2.0","method":"get_current_url","id":1}`,
	} {
		resp := d.Dispatch(context.Background(), []byte(body))
		require.Nil(t, resp.Error, "both canonical and bare method names must resolve")
	}
}
