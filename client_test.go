package appstoreconnect

import (
	"context"
	"crypto/tls"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/http/httptrace"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/takimoto3/appstoreconnect-core/token"
)

type MockTokenProvider struct {
	token string
	err   error
}

func (m *MockTokenProvider) GetToken(_ time.Time) (string, error) {
	return m.token, m.err
}

func TestHTTPClientInitializers(t *testing.T) {
	cfg := &HTTPConfig{
		TLSConfig:           &tls.Config{InsecureSkipVerify: true},
		MaxConnsPerHost:     10,
		MaxIdleConnsPerHost: 5,
		IdleConnTimeout:     2 * time.Second,
		DialTimeout:         1 * time.Second,
		KeepAlive:           3 * time.Second,
		ReadIdleTimeout:     4 * time.Second,
		HTTPTimeout:         5 * time.Second,
	}

	tests := map[string]struct {
		init  HTTPClientInitializer
		wants map[string]any
	}{
		"Default": {
			init: DefaultHTTPClientInitializer(),
			wants: map[string]any{
				"MaxConnsPerHost":     0,
				"MaxIdleConnsPerHost": 10,
				"ForceAttemptHTTP2":   true,
				"Timeout":             time.Duration(0),
				"TLSClientConfig":     &tls.Config{MinVersion: tls.VersionTLS12},
			},
		},
		"Configure": {
			init: ConfigureHTTPClientInitializer(cfg),
			wants: map[string]any{
				"MaxConnsPerHost":     cfg.MaxConnsPerHost,
				"MaxIdleConnsPerHost": cfg.MaxIdleConnsPerHost,
				"IdleConnTimeout":     cfg.IdleConnTimeout,
				"ForceAttemptHTTP2":   true,
				"Timeout":             cfg.HTTPTimeout,
				"TLSClientConfig":     func() *tls.Config { c := cfg.TLSConfig.Clone(); c.NextProtos = []string{"h2", "http/1.1"}; return c }(),
			},
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			client, err := tt.init()
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			tr, ok := client.Transport.(*http.Transport)
			if !ok {
				t.Fatalf("unexpected transport type %T", client.Transport)
			}

			for fname, want := range tt.wants {
				var got any
				switch fname {
				case "MaxConnsPerHost":
					got = tr.MaxConnsPerHost
				case "MaxIdleConnsPerHost":
					got = tr.MaxIdleConnsPerHost
				case "IdleConnTimeout":
					got = tr.IdleConnTimeout
				case "ForceAttemptHTTP2":
					got = tr.ForceAttemptHTTP2
				case "Timeout":
					got = client.Timeout
				case "TLSClientConfig":
					got = tr.TLSClientConfig
				default:
					t.Fatalf("unknown field %s", fname)
				}

				if diff := cmp.Diff(got, want, cmpopts.IgnoreUnexported(tls.Config{})); diff != "" {
					t.Errorf("%s mismatch (-got +want):\n%s", fname, diff)
				}
			}
		})
	}
}

func TestNewClient_Options(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	customTransport := &http.Transport{}
	mockTP := &MockTokenProvider{}
	trace := &httptrace.ClientTrace{}

	tests := map[string]struct {
		opts          []Option
		wantUA        string
		wantLogger    *slog.Logger
		wantTransport http.RoundTripper
		wantTrace     *httptrace.ClientTrace
		wantTimeout   time.Duration
	}{
		"UserAgent only": {
			opts:   []Option{WithUserAgent("ascjwt/1.0")},
			wantUA: "ascjwt/1.0",
		},
		"Logger only": {
			opts:       []Option{WithLogger(logger)},
			wantLogger: logger,
		},
		"Transport and Timeout": {
			opts: []Option{
				WithTransport(customTransport),
				WithClientTimeout(3 * time.Second),
			},
			wantTransport: customTransport,
			wantTimeout:   3 * time.Second,
		},
		"ClientTimeout only": {
			opts:        []Option{WithClientTimeout(7 * time.Second)},
			wantTimeout: 7 * time.Second,
		},
		"ClientTrace only": {
			opts: []Option{
				WithClientTrace(func(l *slog.Logger) *httptrace.ClientTrace {
					return trace
				}),
			},
			wantTrace: trace,
		},
		"All options": {
			opts: []Option{
				WithUserAgent("ascjwt/1.0"),
				WithLogger(logger),
				WithTransport(customTransport),
				WithClientTimeout(5 * time.Second),
				WithClientTrace(func(l *slog.Logger) *httptrace.ClientTrace {
					if l != logger {
						t.Errorf("ClientTrace got a logger other than the configured one")
					}
					return trace
				}),
			},
			wantUA:        "ascjwt/1.0",
			wantLogger:    logger,
			wantTransport: customTransport,
			wantTimeout:   5 * time.Second,
			wantTrace:     trace,
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			cli, err := NewClient(DefaultHTTPClientInitializer(), "https://example.com", mockTP, tc.opts...)
			if err != nil {
				t.Fatalf("NewClient failed: %v", err)
			}

			if cli.UserAgent != tc.wantUA {
				t.Errorf("UserAgent = %q, want %q", cli.UserAgent, tc.wantUA)
			}
			if tc.wantLogger != nil && cli.Logger != tc.wantLogger {
				t.Errorf("logger pointer mismatch")
			}
			if tc.wantTransport != nil && cli.HTTPClient.Transport != tc.wantTransport {
				t.Errorf("Transport pointer mismatch")
			}
			if tc.wantTimeout != 0 && cli.HTTPClient.Timeout != tc.wantTimeout {
				t.Errorf("Timeout = %v, want %v", cli.HTTPClient.Timeout, tc.wantTimeout)
			}
			if tc.wantTrace != nil && cli.Trace != tc.wantTrace {
				t.Errorf("ClientTrace pointer mismatch")
			}
		})
	}
}

func TestNewClient_OptionOrder(t *testing.T) {
	mockTP := &MockTokenProvider{}

	withFirst := func() Option {
		return Option{
			order: 0,
			f: func(c *Client) {
				if c.UserAgent != "" {
					t.Errorf("withFirst should run before WithUserAgent")
				}
			},
		}
	}

	withLast := func() Option {
		return Option{
			order: ClientTrace + 1,
			f: func(c *Client) {
				if c.UserAgent == "" {
					t.Errorf("withLast should run after WithUserAgent")
				}
			},
		}
	}

	_, err := NewClient(DefaultHTTPClientInitializer(), "https://example.com", mockTP,
		withLast(),
		WithUserAgent("ascjwt"),
		withFirst(),
	)
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
}

func TestNewClient_Host(t *testing.T) {
	tests := map[string]struct {
		host string
		want string
	}{
		"empty selects production": {host: "", want: DefaultHost},
		"trailing slash trimmed":   {host: "http://127.0.0.1:8080/", want: "http://127.0.0.1:8080"},
		"kept as is":               {host: "https://example.com", want: "https://example.com"},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			c, err := NewClient(DefaultHTTPClientInitializer(), tt.host, &MockTokenProvider{})
			if err != nil {
				t.Fatalf("NewClient failed: %v", err)
			}
			if c.Host != tt.want {
				t.Errorf("Host = %q, want %q", c.Host, tt.want)
			}
		})
	}
}

func TestNewClient_InitializerError(t *testing.T) {
	failing := func() (*http.Client, error) { return nil, errors.New("no transport") }
	if _, err := NewClient(failing, "", &MockTokenProvider{}); err == nil {
		t.Fatal("expected error, got nil")
	}
}

func TestCloseIdleConnections(t *testing.T) {
	c, _ := NewClient(DefaultHTTPClientInitializer(), "https://example.com", &MockTokenProvider{token: "t"})
	c.CloseIdleConnections() // should not panic
}

func TestClient_NewRequest(t *testing.T) {
	c, err := NewClient(DefaultHTTPClientInitializer(), "https://example.com/", &MockTokenProvider{},
		WithUserAgent("ascjwt"))
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}

	for _, path := range []string{"/apps", "apps"} {
		req, err := c.NewRequest(context.Background(), http.MethodGet, path, nil)
		if err != nil {
			t.Fatalf("NewRequest(%q) failed: %v", path, err)
		}
		got := map[string]string{
			"url":        req.URL.String(),
			"accept":     req.Header.Get("Accept"),
			"user-agent": req.Header.Get("User-Agent"),
		}
		want := map[string]string{
			"url":        "https://example.com/v1/apps",
			"accept":     "application/json",
			"user-agent": "ascjwt",
		}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("NewRequest(%q) mismatch (-want +got):\n%s", path, diff)
		}
	}
}

func TestClient_Do(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.ToLower(r.Header.Get("Authorization")) != "bearer tok" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		io.WriteString(w, "ok")
	}))
	defer srv.Close()

	tests := map[string]struct {
		provider token.Provider
		wantCode int
		wantErr  bool
	}{
		"valid token": {
			provider: &MockTokenProvider{token: "tok"},
			wantCode: http.StatusOK,
			wantErr:  false,
		},
		"token error": {
			provider: &MockTokenProvider{err: errors.New("fail")},
			wantErr:  true,
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			c, err := NewClient(DefaultHTTPClientInitializer(), srv.URL, tt.provider)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			req, _ := http.NewRequest(http.MethodGet, srv.URL, nil)
			resp, err := c.Do(req)
			if resp != nil {
				defer resp.Body.Close()
			}
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error but got none")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			if diff := cmp.Diff(tt.wantCode, resp.StatusCode); diff != "" {
				t.Errorf("StatusCode mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestClient_Get(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/apps":
			io.WriteString(w, `{"data":[]}`)
		case "/v1/users":
			w.WriteHeader(http.StatusForbidden)
			io.WriteString(w, `{"errors":[{"status":"403"}]}`)
		case "/v1/builds":
			w.WriteHeader(http.StatusNoContent)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c, err := NewClient(DefaultHTTPClientInitializer(), srv.URL, &MockTokenProvider{token: "tok"})
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}

	tests := map[string]struct {
		path       string
		wantBody   string
		wantStatus int
	}{
		"ok":         {path: "/apps", wantBody: `{"data":[]}`},
		"no content": {path: "/builds", wantBody: ""},
		"forbidden":  {path: "/users", wantStatus: http.StatusForbidden, wantBody: `{"errors":[{"status":"403"}]}`},
		"not found":  {path: "/missing", wantStatus: http.StatusNotFound, wantBody: "404 page not found\n"},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			body, err := c.Get(context.Background(), tt.path)
			if tt.wantStatus == 0 {
				if err != nil {
					t.Fatalf("Get failed: %v", err)
				}
				if diff := cmp.Diff(tt.wantBody, string(body)); diff != "" {
					t.Errorf("body mismatch (-want +got):\n%s", diff)
				}
				return
			}

			var httpErr *HTTPError
			if !errors.As(err, &httpErr) {
				t.Fatalf("expected *HTTPError, got %v", err)
			}
			if httpErr.StatusCode != tt.wantStatus {
				t.Errorf("StatusCode = %d, want %d", httpErr.StatusCode, tt.wantStatus)
			}
			if diff := cmp.Diff(tt.wantBody, string(httpErr.Body)); diff != "" {
				t.Errorf("error body mismatch (-want +got):\n%s", diff)
			}
			if body != nil {
				t.Errorf("expected nil body on error, got %q", body)
			}
		})
	}
}
