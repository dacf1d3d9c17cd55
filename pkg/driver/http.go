package driver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	xproxy "golang.org/x/net/proxy"
)

// defaultHTTPTimeout bounds requests whose step sets no timeout.
const defaultHTTPTimeout = 30 * time.Second

// HTTPDriver is a PageDriver without a page: the HTTP façade is backed by
// net/http and every page interaction fails with ErrNoPage. It lets the
// engine run scenarios built from http_request, data and flow steps when no
// browser integration is attached.
type HTTPDriver struct {
	client *http.Client
	log    zerolog.Logger

	mu     sync.Mutex
	closed bool
}

// NewHTTPDriver builds a driver routed through proxy when one is given.
// proxy uses the account form socks5://host:port[:user:pwd].
func NewHTTPDriver(proxy string, log zerolog.Logger) (*HTTPDriver, error) {
	transport := &http.Transport{
		DialContext: (&net.Dialer{Timeout: 10 * time.Second}).DialContext,
	}
	if proxy != "" {
		dial, err := socksDialer(proxy)
		if err != nil {
			return nil, err
		}
		transport.DialContext = dial
	}
	return &HTTPDriver{
		client: &http.Client{Transport: transport},
		log:    log,
	}, nil
}

// socksDialer parses the account proxy form and returns a SOCKS5 dialer.
func socksDialer(raw string) (func(ctx context.Context, network, addr string) (net.Conn, error), error) {
	rest, ok := strings.CutPrefix(raw, "socks5://")
	if !ok {
		return nil, fmt.Errorf("unsupported proxy scheme in %q", raw)
	}
	parts := strings.Split(rest, ":")
	var auth *xproxy.Auth
	switch len(parts) {
	case 2:
	case 4:
		auth = &xproxy.Auth{User: parts[2], Password: parts[3]}
	default:
		return nil, fmt.Errorf("malformed proxy %q: want host:port[:user:pwd]", raw)
	}
	dialer, err := xproxy.SOCKS5("tcp", net.JoinHostPort(parts[0], parts[1]), auth, xproxy.Direct)
	if err != nil {
		return nil, fmt.Errorf("socks5 dialer: %w", err)
	}
	cd, ok := dialer.(xproxy.ContextDialer)
	if !ok {
		return nil, errors.New("socks5 dialer does not support contexts")
	}
	return cd.DialContext, nil
}

// Start is a no-op: there is no external process to launch.
func (d *HTTPDriver) Start(ctx context.Context) error { return nil }

// Close shuts the client down. Subsequent calls fail with ErrSessionClosed.
func (d *HTTPDriver) Close(ctx context.Context, force bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	d.client.CloseIdleConnections()
	return nil
}

func (d *HTTPDriver) Open(ctx context.Context, url, waitUntil string, timeout time.Duration) error {
	return ErrNoPage
}

func (d *HTTPDriver) WaitForLoadState(ctx context.Context, state string, timeout time.Duration) error {
	return ErrNoPage
}

func (d *HTTPDriver) Locate(ctx context.Context, target Target) (Element, error) {
	return nil, ErrNoPage
}

func (d *HTTPDriver) NewTab(ctx context.Context, url, waitUntil string, timeout time.Duration) error {
	return ErrNoPage
}

func (d *HTTPDriver) SwitchTab(ctx context.Context, index int) error { return ErrNoPage }

func (d *HTTPDriver) CloseTab(ctx context.Context, index int) error { return ErrNoPage }

func (d *HTTPDriver) TabCount() int { return 0 }

// Cookies reports an empty jar; without a page there is no cookie state.
func (d *HTTPDriver) Cookies(ctx context.Context) (string, error) { return "[]", nil }

// OnClosed registers the observer but never fires it: no external process
// backs this driver, so there is nothing that can die behind the engine.
func (d *HTTPDriver) OnClosed(fn func()) {}

// HTTP performs the request through net/http.
func (d *HTTPDriver) HTTP(ctx context.Context, req HTTPRequest) (*HTTPResponse, error) {
	d.mu.Lock()
	closed := d.closed
	d.mu.Unlock()
	if closed {
		return nil, ErrSessionClosed
	}

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	hreq, err := buildRequest(ctx, req)
	if err != nil {
		return nil, err
	}

	resp, err := d.client.Do(hreq)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, Timeoutf("http %s %s", req.Method, req.URL)
		}
		return nil, fmt.Errorf("http %s %s: %w", req.Method, req.URL, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	headers := make(map[string]string, len(resp.Header))
	for name := range resp.Header {
		headers[name] = resp.Header.Get(name)
	}

	d.log.Debug().Str("method", hreq.Method).Str("url", req.URL).Int("status", resp.StatusCode).Msg("http request")

	out := &HTTPResponse{
		Status:  resp.StatusCode,
		Headers: headers,
		Body:    string(body),
	}
	var decoded any
	if json.Unmarshal(body, &decoded) == nil {
		out.JSON = decoded
	}
	return out, nil
}

func buildRequest(ctx context.Context, req HTTPRequest) (*http.Request, error) {
	method := strings.ToUpper(strings.TrimSpace(req.Method))
	if method == "" {
		method = http.MethodGet
	}

	var body io.Reader
	contentType := ""
	switch {
	case len(req.Multipart) > 0:
		buf := &bytes.Buffer{}
		w := multipart.NewWriter(buf)
		for name, value := range req.Multipart {
			if err := w.WriteField(name, fmt.Sprintf("%v", value)); err != nil {
				return nil, fmt.Errorf("multipart field %s: %w", name, err)
			}
		}
		if err := w.Close(); err != nil {
			return nil, fmt.Errorf("multipart: %w", err)
		}
		body = buf
		contentType = w.FormDataContentType()
	case len(req.Form) > 0:
		form := url.Values{}
		for name, value := range req.Form {
			form.Set(name, value)
		}
		body = strings.NewReader(form.Encode())
		contentType = "application/x-www-form-urlencoded"
	case req.Body != "":
		body = strings.NewReader(req.Body)
	}

	hreq, err := http.NewRequestWithContext(ctx, method, req.URL, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	if len(req.Params) > 0 {
		q := hreq.URL.Query()
		for name, value := range req.Params {
			q.Set(name, value)
		}
		hreq.URL.RawQuery = q.Encode()
	}
	for name, value := range req.Headers {
		hreq.Header.Set(name, value)
	}
	if contentType != "" && hreq.Header.Get("Content-Type") == "" {
		hreq.Header.Set("Content-Type", contentType)
	}
	return hreq, nil
}
