package api

import (
	"crypto/subtle"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/iamofff/kvn-scoring-system/pkg/metrics"
)

// HTTP status code constants.
const (
	statusBadRequest      = 400
	statusNotFound        = 404
	statusTooManyRequests = 429
	statusInternalError   = 500
)

// Role is the access level granted by a password.
type Role int

const (
	RoleNone Role = iota
	RoleJudge
	RoleAdmin
)

// Access maps bearer passwords to roles. An admin may do everything a judge can.
type Access struct {
	judge []byte
	admin []byte
}

// NewAccess creates an Access. Empty passwords never match.
func NewAccess(judgePassword, adminPassword string) *Access {
	return &Access{judge: []byte(judgePassword), admin: []byte(adminPassword)}
}

// RoleOf returns the role granted by the request's Authorization header.
func (a *Access) RoleOf(r *http.Request) Role {
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok || token == "" {
		return RoleNone
	}
	switch {
	case matches(a.admin, token):
		return RoleAdmin
	case matches(a.judge, token):
		return RoleJudge
	default:
		return RoleNone
	}
}

func matches(secret []byte, token string) bool {
	return len(secret) > 0 && subtle.ConstantTimeCompare(secret, []byte(token)) == 1
}

// Require rejects requests whose role is below need: 401 without a valid
// password, 403 with a password of a lower role.
func (a *Access) Require(need Role, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "api.access"
		switch role := a.RoleOf(r); {
		case role == RoleNone:
			w.Header().Set("WWW-Authenticate", `Bearer realm="kvn"`)
			fail(w, NewKind(op, ErrUnauthorized))
		case role < need:
			fail(w, NewKind(op, ErrForbidden))
		default:
			next(w, r)
		}
	}
}

// RateLimitMiddleware rejects requests with 429 once the token bucket is
// empty. A nil limiter lets everything through.
func RateLimitMiddleware(limiter *rate.Limiter, next http.HandlerFunc) http.HandlerFunc {
	if limiter == nil {
		return next
	}
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "api.rate_limit"
		if !limiter.Allow() {
			w.Header().Set("Retry-After", "1")
			fail(w, NewKind(op, ErrRateLimited))
			return
		}
		next(w, r)
	}
}

// MetricsMiddleware wraps HTTP handlers to record Prometheus metrics.
func MetricsMiddleware(next http.HandlerFunc, endpoint string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapped, r)

		durationMs := float64(time.Since(start).Microseconds()) / 1000
		statusCodeStr := strconv.Itoa(wrapped.statusCode)
		metrics.RecordHTTPRequest(endpoint, r.Method, statusCodeStr, durationMs)

		if wrapped.statusCode >= statusBadRequest {
			metrics.RecordErrorByEndpoint(endpoint, r.Method, getErrorType(wrapped.statusCode))
		}
	}
}

// getErrorType returns a standardized error type based on HTTP status code.
func getErrorType(statusCode int) string {
	switch {
	case statusCode >= statusInternalError:
		return "server_error"
	case statusCode == statusTooManyRequests:
		return "rate_limit"
	case statusCode == statusNotFound:
		return "not_found"
	case statusCode >= statusBadRequest:
		return "client_error"
	default:
		return "unknown"
	}
}

// responseWriter wraps http.ResponseWriter to capture status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	if err != nil {
		return n, fmt.Errorf("failed to write response: %w", err)
	}
	return n, nil
}
