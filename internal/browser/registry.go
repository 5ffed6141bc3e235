// File: internal/browser/registry.go
package browser

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"go.uber.org/zap"

	"github.com/xkilldash9x/puppetd/api/schemas"
	"github.com/xkilldash9x/puppetd/internal/config"
)

// Registry lookup and identifier errors.
var (
	ErrContextNotFound = errors.New("context not found")
	ErrPageNotFound    = errors.New("page not found")
	ErrContextIDInUse  = errors.New("context id already in use")
	ErrPageIDInUse     = errors.New("page id already in use")
)

// Registry owns the browser driver handle and tracks every open context and
// page as an addressable resource, together with the active selection. All
// mutations are serialized behind one mutex; identifier allocation, cascading
// closure and active re-selection are therefore atomic with respect to each
// other.
//
// Invariant: whenever an active page is set, its owning context is the active
// context. Every operation that moves one pointer resolves the other.
type Registry struct {
	cfg    config.BrowserConfig
	logger *zap.Logger
	launch Launcher

	mu       sync.Mutex
	driver   Driver
	contexts map[string]*contextEntry
	ctxOrder []string
	pages    map[string]*pageEntry

	activeContextID string
	activePageID    string

	ctxCounter  uint64
	pageCounter uint64
}

type contextEntry struct {
	id  string
	ctx Context
	// pageOrder is the ownership index: ids of owned pages in creation order.
	// Deterministic re-selection after switches and closures walks this slice.
	pageOrder []string
}

type pageEntry struct {
	id        string
	contextID string
	page      Page
}

// NewRegistry creates a registry. The browser is not launched until
// StartBrowser or the first lazy-start path.
func NewRegistry(cfg config.BrowserConfig, launch Launcher, logger *zap.Logger) *Registry {
	return &Registry{
		cfg:      cfg,
		logger:   logger.Named("registry"),
		launch:   launch,
		contexts: make(map[string]*contextEntry),
		pages:    make(map[string]*pageEntry),
	}
}

// StartBrowser launches the browser if it is not already running. On a fresh
// launch one initial context with one initial page is created and both become
// active. Idempotent: a running browser makes this a no-op.
func (r *Registry) StartBrowser(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.startLocked(ctx)
}

func (r *Registry) startLocked(ctx context.Context) error {
	if r.driver != nil && r.driver.Connected() {
		r.logger.Info("Browser is already running.")
		return nil
	}

	driver, err := r.launch(ctx, LaunchOptions{
		Engine:   r.cfg.Engine,
		Headless: r.cfg.Headless,
		SlowMo:   r.cfg.SlowMo,
		Proxy:    r.cfg.Proxy,
		Args:     r.cfg.Args,
		Install:  r.cfg.Install,
	})
	if err != nil {
		return fmt.Errorf("failed to launch browser: %w", err)
	}
	r.driver = driver
	r.logger.Info("Browser launched.", zap.String("engine", r.cfg.Engine))

	// A fresh browser always gets a default context and page so callers have
	// an active target immediately.
	if _, err := r.createContextLocked(ctx, "", nil, true); err != nil {
		// Tear the handle down so a half-initialized launch leaks nothing.
		if closeErr := driver.Close(); closeErr != nil {
			r.logger.Warn("Failed to close browser after initialization failure.", zap.Error(closeErr))
		}
		r.driver = nil
		return fmt.Errorf("failed to create initial context: %w", err)
	}
	return nil
}

// CreateContext opens a new isolated context. An empty id allocates a default
// ctx_N identifier; a caller-supplied id colliding with a live context is
// rejected with ErrContextIDInUse. Caller options are merged over the
// configured defaults without overwriting caller-supplied keys. The new
// context always receives one initial page.
func (r *Registry) CreateContext(ctx context.Context, id string, opts *ContextOptions) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.createContextLocked(ctx, id, opts, false)
}

func (r *Registry) createContextLocked(ctx context.Context, id string, opts *ContextOptions, initial bool) (string, error) {
	if r.driver == nil || !r.driver.Connected() {
		r.logger.Warn("Browser not started. Attempting to start browser.")
		if err := r.startLocked(ctx); err != nil {
			return "", err
		}
	}

	if id != "" {
		if _, exists := r.contexts[id]; exists {
			return "", fmt.Errorf("%w: %q", ErrContextIDInUse, id)
		}
	}

	driverCtx, err := r.driver.NewContext(r.mergeContextOptions(opts))
	if err != nil {
		return "", fmt.Errorf("failed to create context: %w", err)
	}

	r.ctxCounter++
	cid := id
	if cid == "" {
		cid = fmt.Sprintf("ctx_%d", r.ctxCounter)
	}

	entry := &contextEntry{id: cid, ctx: driverCtx}
	r.contexts[cid] = entry
	r.ctxOrder = append(r.ctxOrder, cid)

	if r.activeContextID == "" || initial {
		r.activeContextID = cid
	}
	r.logger.Info("Created browser context.", zap.String("context_id", cid))

	if _, err := r.createPageLocked(ctx, cid, "", true); err != nil {
		// The context is unusable without its initial page; unwind it.
		r.removeContextLocked(entry)
		return "", fmt.Errorf("failed to create initial page for context %q: %w", cid, err)
	}
	return cid, nil
}

// mergeContextOptions applies configured defaults (user agent, viewport)
// underneath any caller-supplied options.
func (r *Registry) mergeContextOptions(opts *ContextOptions) ContextOptions {
	merged := ContextOptions{}
	if opts != nil {
		merged = *opts
	}
	if merged.UserAgent == "" && r.cfg.UserAgent != "" {
		merged.UserAgent = r.cfg.UserAgent
	}
	if merged.Viewport == nil && r.cfg.Viewport.Width > 0 && r.cfg.Viewport.Height > 0 {
		merged.Viewport = &Viewport{
			Width:  r.cfg.Viewport.Width,
			Height: r.cfg.Viewport.Height,
		}
	}
	return merged
}

// CreatePage opens a page in the given context, or the active context when
// contextID is empty. An unknown explicit contextID fails with
// ErrContextNotFound. When no context is active at all, a default context is
// created first and its initial page is returned (self-healing).
func (r *Registry) CreatePage(ctx context.Context, contextID, pageID string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.driver == nil || !r.driver.Connected() {
		if err := r.startLocked(ctx); err != nil {
			return "", err
		}
	}
	if contextID == "" && r.activeContextID == "" {
		r.logger.Info("No active context. Creating a new default context.")
		cid, err := r.createContextLocked(ctx, "", nil, false)
		if err != nil {
			return "", err
		}
		// The fresh context already carries its initial page; hand that back
		// instead of opening a second one.
		entry := r.contexts[cid]
		if pageID == "" && len(entry.pageOrder) > 0 {
			return entry.pageOrder[0], nil
		}
		contextID = cid
	}
	return r.createPageLocked(ctx, contextID, pageID, false)
}

func (r *Registry) createPageLocked(ctx context.Context, contextID, pageID string, initial bool) (string, error) {
	target := contextID
	if target == "" {
		target = r.activeContextID
	}
	entry, ok := r.contexts[target]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrContextNotFound, target)
	}

	if pageID != "" {
		if _, exists := r.pages[pageID]; exists {
			return "", fmt.Errorf("%w: %q", ErrPageIDInUse, pageID)
		}
	}

	page, err := entry.ctx.NewPage()
	if err != nil {
		return "", fmt.Errorf("failed to create page in context %q: %w", target, err)
	}

	r.pageCounter++
	pid := pageID
	if pid == "" {
		pid = fmt.Sprintf("page_%d", r.pageCounter)
	}

	r.pages[pid] = &pageEntry{id: pid, contextID: target, page: page}
	entry.pageOrder = append(entry.pageOrder, pid)

	// Adopt the new page when nothing is active, or when it is the initial
	// page of the context currently selected. Adoption keeps the active
	// context pointed at the page's owner.
	if r.activePageID == "" || (initial && r.activeContextID == target) {
		r.adoptPageLocked(pid)
	}
	r.logger.Info("Created page.", zap.String("page_id", pid), zap.String("context_id", target))
	return pid, nil
}

// adoptPageLocked makes pid the active page and its owner the active context.
func (r *Registry) adoptPageLocked(pid string) {
	entry := r.pages[pid]
	r.activePageID = pid
	r.activeContextID = entry.contextID
}

// GetActivePage returns the active page. When none is marked active but live
// pages exist, an arbitrary live page is returned as a best-effort fallback;
// callers must not rely on which one.
func (r *Registry) GetActivePage() (Page, string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if entry, ok := r.pages[r.activePageID]; ok {
		return entry.page, entry.id, true
	}
	for _, cid := range r.ctxOrder {
		for _, pid := range r.contexts[cid].pageOrder {
			if entry, ok := r.pages[pid]; ok {
				r.logger.Warn("No active page set, returning first available page.",
					zap.String("page_id", pid))
				return entry.page, entry.id, true
			}
		}
	}
	return nil, "", false
}

// GetActiveContext returns the active context, if any.
func (r *Registry) GetActiveContext() (Context, string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if entry, ok := r.contexts[r.activeContextID]; ok {
		return entry.ctx, entry.id, true
	}
	return nil, "", false
}

// ActiveIDs returns the current selection state.
func (r *Registry) ActiveIDs() (contextID, pageID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.activeContextID, r.activePageID
}

// SetActiveContext switches the active context and resolves a consistent
// active page: the first live page owned by the new context in creation
// order, or none at all. A page from the previous context is never kept.
func (r *Registry) SetActiveContext(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.contexts[id]
	if !ok {
		return fmt.Errorf("%w: %q", ErrContextNotFound, id)
	}
	r.activeContextID = id
	r.resolveActivePageLocked(entry)
	r.logger.Info("Switched active context.",
		zap.String("context_id", id), zap.String("active_page_id", r.activePageID))
	return nil
}

func (r *Registry) resolveActivePageLocked(entry *contextEntry) {
	r.activePageID = ""
	for _, pid := range entry.pageOrder {
		if _, ok := r.pages[pid]; ok {
			r.activePageID = pid
			return
		}
	}
}

// SetActivePage switches the active page and updates the active context to
// the page's owner.
func (r *Registry) SetActivePage(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.pages[id]; !ok {
		return fmt.Errorf("%w: %q", ErrPageNotFound, id)
	}
	r.adoptPageLocked(id)
	r.logger.Info("Switched active page.", zap.String("page_id", id))
	return nil
}

// ClosePage closes and forgets a page. Unknown ids report found=false with no
// error (idempotent-close semantics). Closing the active page re-selects
// another live page, preferring the active context, else unsets the active
// page.
func (r *Registry) ClosePage(id string) (found bool, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closePageLocked(id), nil
}

func (r *Registry) closePageLocked(id string) bool {
	entry, ok := r.pages[id]
	if !ok {
		r.logger.Warn("Page not found for closing.", zap.String("page_id", id))
		return false
	}

	delete(r.pages, id)
	if owner, ok := r.contexts[entry.contextID]; ok {
		owner.pageOrder = slices.DeleteFunc(owner.pageOrder, func(pid string) bool {
			return pid == id
		})
	}
	if err := entry.page.Close(); err != nil {
		r.logger.Warn("Error closing page.", zap.String("page_id", id), zap.Error(err))
	}
	r.logger.Info("Closed page.", zap.String("page_id", id))

	if r.activePageID == id {
		r.activePageID = ""
		r.reselectActivePageLocked()
	}
	return true
}

// reselectActivePageLocked picks a replacement active page: first a live page
// of the active context, then the first live page of any context in creation
// order (which also moves the active context to its owner).
func (r *Registry) reselectActivePageLocked() {
	if entry, ok := r.contexts[r.activeContextID]; ok {
		r.resolveActivePageLocked(entry)
		if r.activePageID != "" {
			return
		}
	}
	for _, cid := range r.ctxOrder {
		for _, pid := range r.contexts[cid].pageOrder {
			if _, ok := r.pages[pid]; ok {
				r.adoptPageLocked(pid)
				return
			}
		}
	}
}

// CloseContext closes every page owned by the context (cascading), then the
// context itself. Unknown ids report found=false with no error. Closing the
// active context selects another live context, if any, and re-resolves the
// active page against it.
func (r *Registry) CloseContext(id string) (found bool, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.contexts[id]
	if !ok {
		r.logger.Warn("Context not found for closing.", zap.String("context_id", id))
		return false, nil
	}

	for _, pid := range slices.Clone(entry.pageOrder) {
		if page, ok := r.pages[pid]; ok {
			delete(r.pages, pid)
			if err := page.page.Close(); err != nil {
				r.logger.Warn("Error closing page during context close.",
					zap.String("page_id", pid), zap.Error(err))
			}
		}
	}
	entry.pageOrder = nil

	if err := entry.ctx.Close(); err != nil {
		r.logger.Warn("Error closing context.", zap.String("context_id", id), zap.Error(err))
	}
	r.removeContextLocked(entry)
	r.logger.Info("Closed context.", zap.String("context_id", id))

	if r.activeContextID == id {
		r.activeContextID = ""
		r.activePageID = ""
		if len(r.ctxOrder) > 0 {
			next := r.contexts[r.ctxOrder[0]]
			r.activeContextID = next.id
			r.resolveActivePageLocked(next)
			r.logger.Info("Re-selected active context.",
				zap.String("context_id", next.id), zap.String("active_page_id", r.activePageID))
		}
	} else if _, ok := r.pages[r.activePageID]; !ok {
		// Defensive: the active page should always belong to the active
		// context, but re-resolve if it vanished anyway.
		r.activePageID = ""
		if active, ok := r.contexts[r.activeContextID]; ok {
			r.resolveActivePageLocked(active)
		}
	}
	return true, nil
}

func (r *Registry) removeContextLocked(entry *contextEntry) {
	delete(r.contexts, entry.id)
	r.ctxOrder = slices.DeleteFunc(r.ctxOrder, func(cid string) bool {
		return cid == entry.id
	})
}

// CloseBrowser closes the driver handle and clears all context/page tracking
// and selection state unconditionally. Idempotent when already closed. A
// subsequent StartBrowser launches a fresh handle.
func (r *Registry) CloseBrowser() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.driver == nil {
		return nil
	}
	err := r.driver.Close()
	r.driver = nil
	r.contexts = make(map[string]*contextEntry)
	r.ctxOrder = nil
	r.pages = make(map[string]*pageEntry)
	r.activeContextID = ""
	r.activePageID = ""
	if err != nil {
		return fmt.Errorf("failed to close browser: %w", err)
	}
	r.logger.Info("Browser closed.")
	return nil
}

// Health reports whether the browser handle is running and the driver
// connection is alive.
func (r *Registry) Health() schemas.HealthStatus {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch {
	case r.driver == nil:
		return schemas.HealthUnavailable
	case r.driver.Connected():
		return schemas.HealthOK
	default:
		return schemas.HealthDegraded
	}
}

// ListContexts returns a snapshot of all tracked contexts in creation order.
func (r *Registry) ListContexts() []schemas.ContextInfo {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]schemas.ContextInfo, 0, len(r.ctxOrder))
	for _, cid := range r.ctxOrder {
		entry := r.contexts[cid]
		out = append(out, schemas.ContextInfo{
			ID:      cid,
			Active:  cid == r.activeContextID,
			PageIDs: slices.Clone(entry.pageOrder),
		})
	}
	return out
}

// ListPages returns a snapshot of all tracked pages in creation order. URLs
// are read straight from the driver, never cached.
func (r *Registry) ListPages() []schemas.PageInfo {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]schemas.PageInfo, 0, len(r.pages))
	for _, cid := range r.ctxOrder {
		for _, pid := range r.contexts[cid].pageOrder {
			entry, ok := r.pages[pid]
			if !ok {
				continue
			}
			out = append(out, schemas.PageInfo{
				ID:        pid,
				ContextID: cid,
				Active:    pid == r.activePageID,
				URL:       entry.page.URL(),
			})
		}
	}
	return out
}
