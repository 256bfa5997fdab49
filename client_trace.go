package appstoreconnect

import (
	"context"
	"crypto/tls"
	"log/slog"
	"net/http/httptrace"
	"strings"
)

const redacted = "REDACTED"

// DefaultClientTrace returns a ClientTrace that logs how each App Store
// Connect request reaches the API: connection reuse, DNS, dial, TLS, the
// request headers and the first response byte. Only completion events are
// logged, so a failed step shows up once with its error.
//
// The Authorization header is written as REDACTED; bearer tokens never
// reach the log.
func DefaultClientTrace(logger *slog.Logger, level slog.Level) *httptrace.ClientTrace {
	if logger == nil {
		panic("logger cannot be nil for DefaultClientTrace")
	}

	log := func(msg string, args ...any) {
		logger.Log(context.Background(), level, msg, args...)
	}

	return &httptrace.ClientTrace{
		GetConn: func(hostPort string) {
			log("GetConn", slog.String("hostPort", hostPort))
		},

		GotConn: func(info httptrace.GotConnInfo) {
			remoteAddr := "nil"
			if info.Conn != nil {
				remoteAddr = info.Conn.RemoteAddr().String()
			}
			log("GotConn",
				slog.String("remoteAddr", remoteAddr),
				slog.Bool("reused", info.Reused),
				slog.Duration("idleTime", info.IdleTime),
			)
		},

		DNSDone: func(info httptrace.DNSDoneInfo) {
			addrs := make([]string, len(info.Addrs))
			for i, a := range info.Addrs {
				addrs[i] = a.String()
			}
			log("DNSDone", slog.Any("addrs", addrs), slog.Any("err", info.Err))
		},

		ConnectDone: func(network, addr string, err error) {
			log("ConnectDone",
				slog.String("network", network),
				slog.String("addr", addr),
				slog.Any("err", err),
			)
		},

		TLSHandshakeDone: func(state tls.ConnectionState, err error) {
			log("TLSHandshakeDone",
				slog.String("serverName", state.ServerName),
				slog.String("protocol", state.NegotiatedProtocol),
				slog.String("version", tls.VersionName(state.Version)),
				slog.Any("err", err),
			)
		},

		WroteHeaderField: func(key string, values []string) {
			if strings.EqualFold(key, "Authorization") {
				values = []string{redacted}
			}
			log("WroteHeaderField", slog.String("key", key), slog.Any("values", values))
		},

		WroteRequest: func(info httptrace.WroteRequestInfo) {
			log("WroteRequest", slog.Any("err", info.Err))
		},

		GotFirstResponseByte: func() {
			log("GotFirstResponseByte")
		},
	}
}
