// Package drivertest provides an in-memory PageDriver for engine tests.
package drivertest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Tort1k558/Camouflow/pkg/driver"
)

// Element is a scripted element handle. Zero value behaves as a clickable,
// typable element with empty text.
type Element struct {
	TextValue  string
	Attributes map[string]string
	ClickErr   error
	TypeErr    error

	mu    sync.Mutex
	Typed []string
	Clicks int
}

func (e *Element) Click(ctx context.Context, opts driver.ClickOptions) error {
	e.mu.Lock()
	e.Clicks++
	e.mu.Unlock()
	return e.ClickErr
}

func (e *Element) Type(ctx context.Context, text string, clear bool) error {
	if e.TypeErr != nil {
		return e.TypeErr
	}
	e.mu.Lock()
	e.Typed = append(e.Typed, text)
	e.mu.Unlock()
	return nil
}

func (e *Element) Text(ctx context.Context) (string, error) {
	return e.TextValue, nil
}

func (e *Element) Attribute(ctx context.Context, name string) (string, error) {
	return e.Attributes[name], nil
}

// Fake is a scriptable PageDriver. Tests preload Elements and HTTP
// responses, then assert on the recorded Calls.
type Fake struct {
	mu sync.Mutex

	// Elements maps selector strings to scripted handles. A missing
	// selector makes Locate time out.
	Elements map[string]*Element
	// HTTPFunc handles HTTP façade calls. Nil returns 200 with empty body.
	HTTPFunc func(req driver.HTTPRequest) (*driver.HTTPResponse, error)
	// CookiesJSON is returned by Cookies.
	CookiesJSON string
	// OpenErr, when set, fails every Open call.
	OpenErr error

	Calls    []string
	Requests []driver.HTTPRequest

	tabs     int
	closed   bool
	onClosed []func()
}

// New creates an empty fake with one open tab.
func New() *Fake {
	return &Fake{Elements: make(map[string]*Element), CookiesJSON: "[]", tabs: 1}
}

func (f *Fake) record(format string, args ...any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls = append(f.Calls, fmt.Sprintf(format, args...))
}

func (f *Fake) Start(ctx context.Context) error {
	f.record("start")
	return nil
}

func (f *Fake) Close(ctx context.Context, force bool) error {
	f.record("close force=%v", force)
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}

// Closed reports whether Close has been called.
func (f *Fake) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *Fake) Open(ctx context.Context, url, waitUntil string, timeout time.Duration) error {
	f.record("open %s", url)
	return f.OpenErr
}

func (f *Fake) WaitForLoadState(ctx context.Context, state string, timeout time.Duration) error {
	f.record("wait_for_load_state %s", state)
	return nil
}

func (f *Fake) Locate(ctx context.Context, target driver.Target) (driver.Element, error) {
	f.record("locate %s", target.Selector)
	f.mu.Lock()
	el, ok := f.Elements[target.Selector]
	f.mu.Unlock()
	if !ok {
		return nil, driver.Timeoutf("locate %q", target.Selector)
	}
	return el, nil
}

func (f *Fake) NewTab(ctx context.Context, url, waitUntil string, timeout time.Duration) error {
	f.record("new_tab %s", url)
	f.mu.Lock()
	f.tabs++
	f.mu.Unlock()
	return nil
}

func (f *Fake) SwitchTab(ctx context.Context, index int) error {
	f.record("switch_tab %d", index)
	f.mu.Lock()
	defer f.mu.Unlock()
	if index < 0 || index >= f.tabs {
		return fmt.Errorf("tab index %d is out of range", index)
	}
	return nil
}

func (f *Fake) CloseTab(ctx context.Context, index int) error {
	f.record("close_tab %d", index)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.tabs > 0 {
		f.tabs--
	}
	return nil
}

func (f *Fake) TabCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tabs
}

func (f *Fake) Cookies(ctx context.Context) (string, error) {
	f.record("cookies")
	return f.CookiesJSON, nil
}

func (f *Fake) HTTP(ctx context.Context, req driver.HTTPRequest) (*driver.HTTPResponse, error) {
	f.record("http %s %s", req.Method, req.URL)
	f.mu.Lock()
	f.Requests = append(f.Requests, req)
	fn := f.HTTPFunc
	f.mu.Unlock()
	if fn == nil {
		return &driver.HTTPResponse{Status: 200, Headers: map[string]string{}}, nil
	}
	return fn(req)
}

func (f *Fake) OnClosed(fn func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onClosed = append(f.onClosed, fn)
}

// FireClosed simulates the browser process exiting.
func (f *Fake) FireClosed() {
	f.mu.Lock()
	fns := make([]func(), len(f.onClosed))
	copy(fns, f.onClosed)
	f.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}
