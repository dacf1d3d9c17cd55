// Package driver defines the Page Driver contract the engine consumes.
// The engine never manipulates a page directly: every navigation,
// interaction and HTTP call goes through this interface, so the actual
// browser integration (and the fake used in tests) stays swappable.
package driver

import (
	"context"
	"time"
)

// SelectorKind selects how a Target's selector string is interpreted.
type SelectorKind string

const (
	SelectorCSS    SelectorKind = "css"
	SelectorXPath  SelectorKind = "xpath"
	SelectorText   SelectorKind = "text"
	SelectorID     SelectorKind = "id"
	SelectorName   SelectorKind = "name"
	SelectorTestID SelectorKind = "test_id"
)

// ParseSelectorKind maps the spellings accepted in step definitions onto a
// SelectorKind. Unknown spellings fall back to CSS, matching the permissive
// behavior scenario authors rely on.
func ParseSelectorKind(raw string) SelectorKind {
	switch raw {
	case "text", "get_by_text", "by_text":
		return SelectorText
	case "xpath", "xp":
		return SelectorXPath
	case "id", "#":
		return SelectorID
	case "name":
		return SelectorName
	case "test_id", "testid", "data-testid", "data_testid":
		return SelectorTestID
	default:
		return SelectorCSS
	}
}

// Target describes one element resolution request: the selector, how to
// interpret it, an optional ordinal when the selector matches several
// elements, and an optional iframe chain to descend before resolving.
type Target struct {
	Selector   string
	Kind       SelectorKind
	Ordinal    *int
	FrameChain []string
	State      string // attached, detached, visible, hidden
	Exact      bool
	Timeout    time.Duration
}

// ClickOptions carries the optional click modifiers a step may set.
type ClickOptions struct {
	Button string
	Delay  time.Duration
}

// Element is a resolved page element handle.
type Element interface {
	Click(ctx context.Context, opts ClickOptions) error
	Type(ctx context.Context, text string, clear bool) error
	Text(ctx context.Context) (string, error)
	Attribute(ctx context.Context, name string) (string, error)
}

// HTTPRequest is the driver's HTTP façade input. Body carries a raw payload,
// Form/Multipart carry encoded alternatives; at most one is set.
type HTTPRequest struct {
	Method    string
	URL       string
	Headers   map[string]string
	Params    map[string]string
	Body      string
	Form      map[string]string
	Multipart map[string]any
	Timeout   time.Duration
}

// HTTPResponse is the driver's HTTP façade output. JSON is the decoded body
// when the response carried valid JSON, else nil.
type HTTPResponse struct {
	Status  int
	Headers map[string]string
	Body    string
	JSON    any
}

// OK reports whether the status is in the 2xx range.
func (r *HTTPResponse) OK() bool {
	return r.Status >= 200 && r.Status <= 299
}

// PageDriver is the long-lived external session the engine drives. All
// calls block until the driver finishes or its own timeout fires; the
// engine observes cancellation only between steps.
type PageDriver interface {
	Start(ctx context.Context) error
	// Close tears the session down. force skips graceful page shutdown.
	Close(ctx context.Context, force bool) error

	Open(ctx context.Context, url, waitUntil string, timeout time.Duration) error
	WaitForLoadState(ctx context.Context, state string, timeout time.Duration) error
	Locate(ctx context.Context, target Target) (Element, error)

	NewTab(ctx context.Context, url, waitUntil string, timeout time.Duration) error
	SwitchTab(ctx context.Context, index int) error
	// CloseTab closes the tab at index, or the current tab when index < 0.
	CloseTab(ctx context.Context, index int) error
	TabCount() int

	// Cookies returns the session's cookie jar as a compact JSON array.
	Cookies(ctx context.Context) (string, error)

	HTTP(ctx context.Context, req HTTPRequest) (*HTTPResponse, error)

	// OnClosed registers an observer invoked when the underlying browser
	// process exits. May be called from any goroutine.
	OnClosed(fn func())
}
