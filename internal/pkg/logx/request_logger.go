/*
Package logx provides a structured logging wrapper based on zerolog.

This file contains the operator API request logging middleware. Every request gets a child logger
stored in its context (retrievable with zerolog.Ctx) and one summary line when it completes.
Client addresses are anonymized before they are logged.
*/
package logx

import (
	"net"
	"net/http"
	"net/netip"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

const unknownIP = "unknown_ip"

// anonymizeIP truncates an address to its /24 (IPv4) or /64 (IPv6) network.
// Loopback addresses are reported as 127.0.0.1.
func anonymizeIP(remoteAddr string) string {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}

	ip, err := netip.ParseAddr(host)
	if err != nil {
		return unknownIP
	}
	ip = ip.Unmap().WithZone("")

	if ip.IsLoopback() {
		return "127.0.0.1"
	}

	bits := 64
	if ip.Is4() {
		bits = 24
	}

	network, err := ip.Prefix(bits)
	if err != nil {
		return unknownIP
	}
	return network.Addr().String()
}

func levelFor(logger *zerolog.Logger, status int) *zerolog.Event {
	switch {
	case status >= http.StatusInternalServerError:
		return logger.Error()
	case status >= http.StatusBadRequest:
		return logger.Warn()
	default:
		return logger.Info()
	}
}

// RequestLogger returns a middleware that logs method, route, status, size and latency of each request.
func RequestLogger() func(next http.Handler) http.Handler {
	base := Component("http")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			logger := base.With().
				Str("request_id", middleware.GetReqID(r.Context())).
				Str("remote_ip", anonymizeIP(r.RemoteAddr)).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Logger()

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			r = r.WithContext(logger.WithContext(r.Context()))

			next.ServeHTTP(ww, r)

			event := levelFor(&logger, ww.Status())
			if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
				event = event.Str("route", rctx.RoutePattern())
			}

			event.
				Int("status", ww.Status()).
				Int("bytes", ww.BytesWritten()).
				Dur("latency", time.Since(start)).
				Msg("Request completed")
		})
	}
}
