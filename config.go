package appstoreconnect

import (
	"crypto/tls"
	"time"
)

// App Store Connect answers one request at a time per caller and rate-limits
// per key, so a handful of connections to a single host is enough.
var defaultConfig = &HTTPConfig{
	DialTimeout:         10 * time.Second,
	KeepAlive:           30 * time.Second,
	IdleConnTimeout:     90 * time.Second,
	MaxConnsPerHost:     10,
	MaxIdleConnsPerHost: 10,
	ReadIdleTimeout:     15 * time.Second, // HTTP/2 PING after this much silence
	HTTPTimeout:         60 * time.Second, // report downloads can be slow
	TLSConfig: &tls.Config{
		MinVersion: tls.VersionTLS12,
	},
}

// HTTPConfig holds the transport settings used by ConfigureHTTPClientInitializer.
type HTTPConfig struct {
	HTTPTimeout         time.Duration // whole request, including reading the body
	ReadIdleTimeout     time.Duration
	KeepAlive           time.Duration
	DialTimeout         time.Duration
	MaxConnsPerHost     int
	IdleConnTimeout     time.Duration
	MaxIdleConnsPerHost int
	TLSConfig           *tls.Config // cloned per client; nil means Go defaults
}

// DefaultConfig returns a copy of the defaults that callers may modify freely.
func DefaultConfig() HTTPConfig {
	c := *defaultConfig
	if defaultConfig.TLSConfig != nil {
		c.TLSConfig = defaultConfig.TLSConfig.Clone()
	}
	return c
}
