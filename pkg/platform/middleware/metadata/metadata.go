// Package metadata attaches per-request identifiers to the context: the
// correlation id used by audit records and the caller's address for logs.
package metadata

import (
	"context"
	"net"
	"net/http"
	"strings"

	"warden/pkg/requestcontext"
)

// HeaderRequestID carries a caller-supplied correlation id.
const HeaderRequestID = "X-Request-ID"

type contextKeyClientIP struct{}

// RequestMetadata stores the request id (taken from X-Request-ID when
// present) and client IP in the context and echoes the id in the response.
// This middleware should be applied early in the chain.
func RequestMetadata(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if id := strings.TrimSpace(r.Header.Get(HeaderRequestID)); id != "" && len(id) <= 128 {
			ctx = requestcontext.WithRequestID(ctx, id)
		} else {
			ctx = requestcontext.EnsureRequestID(ctx)
		}
		ctx = context.WithValue(ctx, contextKeyClientIP{}, ClientIPFromRequest(r))
		w.Header().Set(HeaderRequestID, requestcontext.RequestID(ctx))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetClientIP retrieves the client IP address from the context.
func GetClientIP(ctx context.Context) string {
	if ip, ok := ctx.Value(contextKeyClientIP{}).(string); ok {
		return ip
	}
	return ""
}

// ClientIPFromRequest extracts the client IP, preferring the first
// X-Forwarded-For hop, then X-Real-IP, then RemoteAddr.
func ClientIPFromRequest(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	if r.RemoteAddr != "" {
		return r.RemoteAddr
	}
	return "unknown"
}
