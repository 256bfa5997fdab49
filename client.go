package appstoreconnect

// Package appstoreconnect provides a client for the App Store Connect API, handling JWT-based authentication.
import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptrace"
	"sort"
	"strings"
	"time"

	"github.com/takimoto3/appstoreconnect-core/token"
	"golang.org/x/net/http2"
)

const (
	// DefaultHost is the production App Store Connect API host.
	DefaultHost = "https://api.appstoreconnect.apple.com"
	// BasePath is prefixed to every request path.
	BasePath = "/v1"
)

// OptionOrder defines the execution order for Client options.
// Options are applied in ascending order of these constants.
type OptionOrder int

const (
	UserAgent OptionOrder = iota + 1
	Logger
	Transport
	ClientTimeout
	ClientTrace // Depends on Logger being already set
)

// HTTPClientInitializer is a function that returns a configured *http.Client.
type HTTPClientInitializer func() (*http.Client, error)

// DefaultHTTPClientInitializer returns a default HTTP client requiring TLS 1.2 or later, with HTTP/2 enabled.
func DefaultHTTPClientInitializer() HTTPClientInitializer {
	return func() (*http.Client, error) {
		// Clone the default transport to customize settings safely
		tr := http.DefaultTransport.(*http.Transport).Clone()
		tr.TLSClientConfig = &tls.Config{MinVersion: tls.VersionTLS12}
		tr.MaxIdleConnsPerHost = 10
		tr.ForceAttemptHTTP2 = true
		return &http.Client{Transport: tr}, nil
	}
}

// ConfigureHTTPClientInitializer returns an HTTP client configured based on the given HTTPConfig.
func ConfigureHTTPClientInitializer(cfg *HTTPConfig) HTTPClientInitializer {
	return func() (*http.Client, error) {
		// Clone the default transport to customize settings safely
		tr := http.DefaultTransport.(*http.Transport).Clone()
		if cfg.TLSConfig != nil {
			tr.TLSClientConfig = cfg.TLSConfig.Clone()
		}
		tr.MaxConnsPerHost = cfg.MaxConnsPerHost
		tr.MaxIdleConnsPerHost = cfg.MaxIdleConnsPerHost
		tr.IdleConnTimeout = cfg.IdleConnTimeout
		tr.DialContext = (&net.Dialer{
			Timeout:   cfg.DialTimeout,
			KeepAlive: cfg.KeepAlive,
		}).DialContext

		tr2, err := http2.ConfigureTransports(tr)
		if err != nil {
			return nil, err
		}
		tr2.ReadIdleTimeout = cfg.ReadIdleTimeout

		return &http.Client{Transport: tr, Timeout: cfg.HTTPTimeout}, nil
	}
}

// HTTPError is returned by Get for any response outside 200–299.
type HTTPError struct {
	StatusCode int
	Body       []byte
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("app store connect: unexpected status %d %s", e.StatusCode, http.StatusText(e.StatusCode))
}

// Client represents an HTTP client with App Store Connect authentication support.
type Client struct {
	Host          string                 // Base URL for the API
	UserAgent     string                 // User-Agent header, empty keeps Go's default
	HTTPClient    *http.Client           // Underlying HTTP client
	TokenProvider token.Provider         // Responsible for providing tokens
	Logger        *slog.Logger           // Structured logger
	Trace         *httptrace.ClientTrace // HTTP request trace hooks
}

// Option defines a configurable option for Client, including its execution order.
type Option struct {
	f     func(*Client) // Actual option logic
	order OptionOrder   // Execution order key
}

// WithUserAgent sets the User-Agent header sent with every request.
func WithUserAgent(ua string) Option {
	return Option{
		f: func(c *Client) {
			if c != nil {
				c.UserAgent = ua
			}
		},
		order: UserAgent,
	}
}

// WithLogger sets a custom structured logger.
func WithLogger(logger *slog.Logger) Option {
	return Option{
		f: func(c *Client) {
			if c != nil && logger != nil {
				c.Logger = logger
			}
		},
		order: Logger,
	}
}

// WithTransport sets a custom HTTP transport.
func WithTransport(tr http.RoundTripper) Option {
	return Option{
		f: func(c *Client) {
			if c != nil && tr != nil {
				c.HTTPClient.Transport = tr
			}
		},
		order: Transport,
	}
}

// WithClientTimeout sets a custom HTTP client timeout.
func WithClientTimeout(timeout time.Duration) Option {
	return Option{
		f: func(c *Client) {
			if c != nil {
				c.HTTPClient.Timeout = timeout
			}
		},
		order: ClientTimeout,
	}
}

// WithClientTrace sets a custom HTTP trace function.
func WithClientTrace(f func(*slog.Logger) *httptrace.ClientTrace) Option {
	return Option{
		f: func(c *Client) {
			if c != nil {
				if tr := f(c.Logger); tr != nil {
					c.Trace = tr
				}
			}
		},
		order: ClientTrace,
	}
}

// NewClient creates a new Client with a custom HTTP initializer and options.
// An empty host selects DefaultHost.
func NewClient(initializer HTTPClientInitializer, host string, tp token.Provider, opts ...Option) (*Client, error) {
	cli, err := initializer()
	if err != nil {
		return nil, err
	}
	if host == "" {
		host = DefaultHost
	}
	c := &Client{
		Host:          strings.TrimRight(host, "/"),
		HTTPClient:    cli,
		TokenProvider: tp,
		Logger:        slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	// Sort options by their order and apply them
	sort.SliceStable(opts, func(i, j int) bool {
		return opts[i].order < opts[j].order
	})
	for _, opt := range opts {
		opt.f(c)
	}

	return c, nil
}

// CloseIdleConnections closes idle connections in the HTTP client.
func (c *Client) CloseIdleConnections() {
	c.HTTPClient.CloseIdleConnections()
}

// NewRequest builds a request for path below Host and BasePath, e.g.
// NewRequest(ctx, http.MethodGet, "/apps", nil).
func (c *Client) NewRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	req, err := http.NewRequestWithContext(ctx, method, c.Host+BasePath+path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if c.UserAgent != "" {
		req.Header.Set("User-Agent", c.UserAgent)
	}
	return req, nil
}

// Do sends an HTTP request with a Bearer token and optional HTTP trace.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	if c.Trace != nil {
		req = req.WithContext(httptrace.WithClientTrace(req.Context(), c.Trace))
	}
	bearer, err := c.TokenProvider.GetToken(time.Now())
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+bearer)

	return c.HTTPClient.Do(req)
}

// Get fetches path and returns the response body. Statuses outside
// 200–299 are reported as *HTTPError.
func (c *Client) Get(ctx context.Context, path string) ([]byte, error) {
	req, err := c.NewRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.Logger.Warn("Request failed", "method", req.Method, "path", req.URL.Path, "status", resp.StatusCode)
		return nil, &HTTPError{StatusCode: resp.StatusCode, Body: body}
	}
	c.Logger.Debug("Request succeeded", "method", req.Method, "path", req.URL.Path, "status", resp.StatusCode)
	return body, nil
}
