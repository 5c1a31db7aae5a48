// Package audit records who changed notification configuration. Entries are
// structured log lines on a dedicated component so they can be routed to a
// separate sink.
package audit

import (
	"net"
	"net/http"

	"github.com/rs/zerolog"
	"notifyd/internal/pkg/logger"
	"notifyd/internal/platform/auth"
)

type Entry struct {
	Action       string
	ResourceType string
	ResourceID   string
	Metadata     map[string]interface{}
}

type Logger struct {
	log zerolog.Logger
}

func NewLogger() *Logger {
	return &Logger{log: logger.Component("audit")}
}

// NewLoggerWith writes to l instead of the global logger.
func NewLoggerWith(l zerolog.Logger) *Logger {
	return &Logger{log: l}
}

// Log records a mutation made by the caller identified by claims. Secrets
// must never be placed in Metadata.
func (l *Logger) Log(r *http.Request, claims *auth.Claims, e Entry) {
	evt := l.log.Info().
		Str("action", e.Action).
		Str("resource_type", e.ResourceType).
		Str("resource_id", e.ResourceID).
		Str("ip_address", clientIP(r)).
		Str("user_agent", r.UserAgent())

	if claims != nil {
		evt = evt.Str("organization_id", claims.OrganizationID).Str("user_id", claims.UserID).Str("role", claims.Role)
	}
	if len(e.Metadata) > 0 {
		evt = evt.Interface("metadata", e.Metadata)
	}
	evt.Msg("audit")
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		for i := 0; i < len(fwd); i++ {
			if fwd[i] == ',' {
				return fwd[:i]
			}
		}
		return fwd
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
