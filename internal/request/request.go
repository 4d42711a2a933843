// Package request holds helpers for reading common values from HTTP requests.
package request

import (
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

// UserIDVar is the route variable carrying the user id
const UserIDVar = "userID"

// ClientIP extracts the client IP from the request, respecting X-Forwarded-For and X-Real-IP.
// The port of a direct connection is dropped so limits apply per host.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		parts := strings.Split(xff, ",")
		if len(parts) > 0 {
			return strings.TrimSpace(parts[0])
		}
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

// UserID returns the user id from the matched route
func UserID(r *http.Request) (uuid.UUID, error) {
	raw, ok := mux.Vars(r)[UserIDVar]
	if !ok || raw == "" {
		return uuid.Nil, fmt.Errorf("missing user id")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid user id: %w", err)
	}
	return id, nil
}

// Confirmed reports whether the client confirmed a destructive action with ?confirm=true
func Confirmed(r *http.Request) bool {
	switch strings.ToLower(r.URL.Query().Get("confirm")) {
	case "1", "true", "yes":
		return true
	}
	return false
}
