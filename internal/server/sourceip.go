package server

import (
	"context"
	"database/sql"
	"net"
	"net/http"
	"strings"

	"github.com/blindspot-sh/blindspot/internal/db"
)

type contextKey string

const (
	sourceIPContextKey  contextKey = "sourceIP"
	requestIDContextKey contextKey = "requestID"
)

// ResolveSourceIP returns the originating address for a request. The
// configured trusted header (settings key "ip_header") wins over the
// transport peer address when present. Rate limiting and the stored
// alert both use this value, so it is resolved once per request by
// middleware and stashed in the context.
func ResolveSourceIP(d *sql.DB, r *http.Request) string {
	header := "X-Forwarded-For"
	if v, err := db.GetSetting(d, "ip_header"); err == nil && v != "" {
		header = v
	}

	if v := r.Header.Get(header); v != "" {
		// Proxies append to the header; the first entry is the client.
		if idx := strings.Index(v, ","); idx != -1 {
			v = v[:idx]
		}
		return strings.TrimSpace(v)
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func sourceIPFrom(r *http.Request) string {
	if ip, ok := r.Context().Value(sourceIPContextKey).(string); ok {
		return ip
	}
	return r.RemoteAddr
}

func requestIDFrom(r *http.Request) string {
	if id, ok := r.Context().Value(requestIDContextKey).(string); ok {
		return id
	}
	return ""
}

func withSourceIP(r *http.Request, ip string) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), sourceIPContextKey, ip))
}

func withRequestID(r *http.Request, id string) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), requestIDContextKey, id))
}
