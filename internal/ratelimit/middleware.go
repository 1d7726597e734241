package ratelimit

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"contribgate/pkg/domain"
	"contribgate/pkg/platform/httputil"
	"contribgate/pkg/requestcontext"
)

// Checker is what the middleware needs from a Limiter.
type Checker interface {
	CheckIP(ctx context.Context, ip string, class Class) (*Result, error)
	CheckBoth(ctx context.Context, ip string, caller domain.Address, class Class) (*Result, error)
}

type exceededResponse struct {
	Error      string    `json:"error"`
	Message    string    `json:"error_description"`
	Limit      int       `json:"limit"`
	ResetAt    time.Time `json:"reset_at"`
	RetryAfter int       `json:"retry_after"`
}

// Middleware turns limiter decisions into 429 responses. Store failures are
// logged and let through so an unreachable Redis never takes the API down.
type Middleware struct {
	limiter  Checker
	logger   *slog.Logger
	disabled bool
}

type MiddlewareOption func(*Middleware)

// WithDisabled turns every check into a pass-through.
func WithDisabled(disabled bool) MiddlewareOption {
	return func(m *Middleware) {
		m.disabled = disabled
	}
}

func NewMiddleware(limiter Checker, logger *slog.Logger, opts ...MiddlewareOption) *Middleware {
	m := &Middleware{limiter: limiter, logger: logger}
	for _, opt := range opts {
		opt(m)
	}
	if m.disabled {
		logger.Info("rate limiting disabled")
	}
	return m
}

// RateLimit limits by client IP.
func (m *Middleware) RateLimit(class Class) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if m == nil || m.disabled {
				next.ServeHTTP(w, r)
				return
			}
			ctx := r.Context()
			result, err := m.limiter.CheckIP(ctx, requestcontext.ClientIP(ctx), class)
			m.apply(w, r, next, result, err, "too many requests from this address")
		})
	}
}

// RateLimitCaller limits by client IP and by the authenticated caller. It
// must run after authentication.
func (m *Middleware) RateLimitCaller(class Class) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if m == nil || m.disabled {
				next.ServeHTTP(w, r)
				return
			}
			ctx := r.Context()
			result, err := m.limiter.CheckBoth(ctx, requestcontext.ClientIP(ctx), requestcontext.Caller(ctx), class)
			m.apply(w, r, next, result, err, "request quota exceeded for this account")
		})
	}
}

func (m *Middleware) apply(w http.ResponseWriter, r *http.Request, next http.Handler, result *Result, err error, message string) {
	if err != nil {
		m.logger.ErrorContext(r.Context(), "rate limit check failed",
			"error", err,
			"request_id", requestcontext.RequestID(r.Context()),
		)
		next.ServeHTTP(w, r)
		return
	}
	addHeaders(w, result)
	if !result.Allowed {
		w.Header().Set("Retry-After", strconv.Itoa(result.RetryAfter))
		httputil.WriteJSON(w, http.StatusTooManyRequests, exceededResponse{
			Error:      "rate_limit_exceeded",
			Message:    message,
			Limit:      result.Limit,
			ResetAt:    result.ResetAt,
			RetryAfter: result.RetryAfter,
		})
		return
	}
	next.ServeHTTP(w, r)
}

func addHeaders(w http.ResponseWriter, result *Result) {
	if result == nil {
		return
	}
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(result.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))
}
