// File: api/schemas/results.go
package schemas

// Status values used in method results.
const (
	StatusSuccess  = "success"
	StatusNotFound = "not_found"
)

// NavigateResult is returned by puppeteer.navigate.
type NavigateResult struct {
	Status     string `json:"status"`
	URL        string `json:"url"`
	HTTPStatus int    `json:"http_status"`
}

// TitleResult is returned by puppeteer.get_page_title.
type TitleResult struct {
	Status string `json:"status"`
	Title  string `json:"title"`
}

// URLResult is returned by puppeteer.get_current_url.
type URLResult struct {
	Status string `json:"status"`
	URL    string `json:"url"`
}

// ContentResult is returned by puppeteer.get_page_content.
type ContentResult struct {
	Status  string `json:"status"`
	Content string `json:"content"`
}

// ScreenshotResult is returned by puppeteer.take_page_screenshot. Exactly one
// of FilePath or ImageBase64 is populated depending on whether a path was
// supplied in the request.
type ScreenshotResult struct {
	Status      string `json:"status"`
	FilePath    string `json:"file_path,omitempty"`
	ImageBase64 string `json:"image_base64,omitempty"`
}

// ActionResult is the minimal success payload for side-effect-only methods
// such as puppeteer.click_element and puppeteer.fill_form_field.
type ActionResult struct {
	Status string `json:"status"`
}

// TextResult is returned by puppeteer.get_element_text.
type TextResult struct {
	Status string `json:"status"`
	Text   string `json:"text"`
}

// AttributeResult is returned by puppeteer.get_element_attribute.
type AttributeResult struct {
	Status string `json:"status"`
	Value  string `json:"value"`
}

// ScriptResult is returned by puppeteer.execute_javascript.
type ScriptResult struct {
	Status string `json:"status"`
	Result any    `json:"result"`
}

// CreateContextResult is returned by puppeteer.create_context.
type CreateContextResult struct {
	Status    string `json:"status"`
	ContextID string `json:"context_id"`
}

// CreatePageResult is returned by puppeteer.create_page.
type CreatePageResult struct {
	Status    string `json:"status"`
	PageID    string `json:"page_id"`
	ContextID string `json:"context_id"`
}

// SwitchResult is returned by puppeteer.switch_context and
// puppeteer.switch_page, reporting the selection state after the switch.
type SwitchResult struct {
	Status          string `json:"status"`
	ActiveContextID string `json:"active_context_id"`
	ActivePageID    string `json:"active_page_id,omitempty"`
}

// CloseContextResult is returned by puppeteer.close_context. Status is
// "not_found" when the identifier was unknown; that is a handled outcome, not
// a protocol error.
type CloseContextResult struct {
	Status    string `json:"status"`
	ContextID string `json:"closed_context_id"`
}

// ClosePageResult is returned by puppeteer.close_page.
type ClosePageResult struct {
	Status string `json:"status"`
	PageID string `json:"closed_page_id"`
}

// ConsoleLogEntry is one captured console message.
type ConsoleLogEntry struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// ConsoleLogsResult is returned by puppeteer.get_console_logs.
type ConsoleLogsResult struct {
	Status string            `json:"status"`
	Logs   []ConsoleLogEntry `json:"logs"`
}

// ContextInfo describes one tracked context in puppeteer.list_contexts.
type ContextInfo struct {
	ID      string   `json:"context_id"`
	Active  bool     `json:"active"`
	PageIDs []string `json:"page_ids"`
}

// ListContextsResult is returned by puppeteer.list_contexts.
type ListContextsResult struct {
	Status   string        `json:"status"`
	Contexts []ContextInfo `json:"contexts"`
}

// PageInfo describes one tracked page in puppeteer.list_pages.
type PageInfo struct {
	ID        string `json:"page_id"`
	ContextID string `json:"context_id"`
	Active    bool   `json:"active"`
	URL       string `json:"url"`
}

// ListPagesResult is returned by puppeteer.list_pages.
type ListPagesResult struct {
	Status string     `json:"status"`
	Pages  []PageInfo `json:"pages"`
}

// HealthStatus is the payload of GET /health.
type HealthStatus struct {
	Status        string `json:"status"`
	BrowserStatus string `json:"browser_status"`
}

// Well-known health states.
var (
	HealthOK          = HealthStatus{Status: "ok", BrowserStatus: "connected"}
	HealthDegraded    = HealthStatus{Status: "degraded", BrowserStatus: "disconnected"}
	HealthUnavailable = HealthStatus{Status: "error", BrowserStatus: "unavailable"}
)
