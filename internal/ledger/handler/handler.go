// Package handler exposes the ledger over HTTP.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"contribgate/internal/ledger/models"
	"contribgate/internal/ratelimit"
	"contribgate/internal/platform/metrics"
	"contribgate/internal/platform/middleware"
	"contribgate/pkg/domain"
	dErrors "contribgate/pkg/domain-errors"
	audit "contribgate/pkg/platform/audit"
	"contribgate/pkg/platform/httputil"
	authmw "contribgate/pkg/platform/middleware/auth"
	"contribgate/pkg/platform/middleware/metadata"
	request "contribgate/pkg/platform/middleware/request"
	"contribgate/pkg/platform/middleware/requesttime"
	"contribgate/pkg/requestcontext"
)

// DefaultRequestTimeout bounds a whole request. It must exceed the treasury
// forward timeout.
const DefaultRequestTimeout = 30 * time.Second

// Service defines the ledger operations the HTTP surface needs.
type Service interface {
	Contribute(ctx context.Context, party domain.Address, amount domain.Amount) (*models.Receipt, error)
	ContributeDirect(ctx context.Context, party domain.Address, amount domain.Amount) (*models.Receipt, error)
	CanContribute(ctx context.Context, party domain.Address, amount domain.Amount) (*models.Eligibility, error)

	GetPartyInfo(ctx context.Context, party domain.Address) (*models.PartyInfo, error)
	GetRemainingCapacity(ctx context.Context, party domain.Address) (domain.Amount, error)
	IsVerified(ctx context.Context, party domain.Address) (bool, error)
	ListEvents(ctx context.Context, party domain.Address) ([]audit.Event, error)

	GetCampaignStats(ctx context.Context) (*models.StatsView, error)
	GetMaxContributionAsset(ctx context.Context) (domain.Amount, error)
	IsPaused(ctx context.Context) (bool, error)
	Treasury(ctx context.Context) (domain.Address, error)
	Verifiers(ctx context.Context) ([]domain.Address, error)

	VerifyParty(ctx context.Context, caller, party domain.Address) (bool, error)
	BatchVerifyParties(ctx context.Context, caller domain.Address, addresses []string) (*models.BatchResult, error)
	SetExchangeRate(ctx context.Context, caller domain.Address, rate domain.Rate) (*models.RateChange, error)
	SetTreasury(ctx context.Context, caller, treasury domain.Address) (*models.TreasuryChange, error)
	Pause(ctx context.Context, caller domain.Address) error
	Unpause(ctx context.Context, caller domain.Address) error
	AddVerifier(ctx context.Context, caller, verifier domain.Address) error
	RemoveVerifier(ctx context.Context, caller, verifier domain.Address) error
}

// Handler serves the /v1 routes.
type Handler struct {
	ledger    Service
	validator authmw.JWTValidator
	logger    *slog.Logger
	metrics   *metrics.Metrics
	limiter   *ratelimit.Middleware
	timeout   time.Duration
}

type Option func(*Handler)

func WithMetrics(m *metrics.Metrics) Option {
	return func(h *Handler) {
		h.metrics = m
	}
}

// WithRateLimiter throttles reads by client IP and writes by caller.
func WithRateLimiter(m *ratelimit.Middleware) Option {
	return func(h *Handler) {
		h.limiter = m
	}
}

func WithRequestTimeout(d time.Duration) Option {
	return func(h *Handler) {
		if d > 0 {
			h.timeout = d
		}
	}
}

// New creates a ledger Handler.
func New(ledger Service, validator authmw.JWTValidator, logger *slog.Logger, opts ...Option) *Handler {
	h := &Handler{
		ledger:    ledger,
		validator: validator,
		logger:    logger,
		timeout:   DefaultRequestTimeout,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Register registers the ledger routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	r.Route("/v1", func(r chi.Router) {
		r.Use(middleware.Recovery(h.logger))
		r.Use(request.RequestID)
		r.Use(requesttime.Middleware)
		r.Use(metadata.ClientMetadata)
		r.Use(middleware.Logger(h.logger))
		r.Use(middleware.Latency(h.metrics))
		r.Use(timeout(h.timeout))

		r.Group(func(r chi.Router) {
			r.Use(h.limiter.RateLimit(ratelimit.ClassRead))

			r.Get("/contributions/eligibility", h.handleCanContribute)
			r.Get("/parties/{address}", h.handleGetPartyInfo)
			r.Get("/parties/{address}/verified", h.handleIsVerified)
			r.Get("/parties/{address}/capacity", h.handleGetRemainingCapacity)
			r.Get("/parties/{address}/events", h.handleListEvents)
			r.Get("/campaign/stats", h.handleGetCampaignStats)
			r.Get("/campaign/limit", h.handleGetMaxContributionAsset)
			r.Get("/campaign/paused", h.handleIsPaused)
			r.Get("/campaign/treasury", h.handleGetTreasury)
			r.Get("/campaign/verifiers", h.handleListVerifiers)
		})

		r.Group(func(r chi.Router) {
			r.Use(authmw.RequireAuth(h.validator, h.logger))
			r.Use(middleware.ContentTypeJSON)

			r.With(h.limiter.RateLimitCaller(ratelimit.ClassWrite)).Post("/contributions", h.handleContribute)
			r.With(h.limiter.RateLimitCaller(ratelimit.ClassWrite)).Post("/transfers", h.handleContributeDirect)

			r.Route("/admin", func(r chi.Router) {
				r.Use(h.limiter.RateLimitCaller(ratelimit.ClassAdmin))

				r.Post("/verifications", h.handleVerifyParty)
				r.Post("/verifications/batch", h.handleBatchVerifyParties)
				r.Put("/exchange-rate", h.handleSetExchangeRate)
				r.Put("/treasury", h.handleSetTreasury)
				r.Post("/pause", h.handlePause)
				r.Post("/unpause", h.handleUnpause)
				r.Post("/verifiers", h.handleAddVerifier)
				r.Delete("/verifiers/{address}", h.handleRemoveVerifier)
			})
		})
	})
}

// timeout bounds the request context. Contributions detach from it once
// accepted, so a late client disconnect cannot half-apply one.
func timeout(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), d)
			defer cancel()
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// caller returns the authenticated address. The auth middleware guarantees
// it is set on every route that calls this.
func (h *Handler) caller(w http.ResponseWriter, r *http.Request) (domain.Address, bool) {
	ctx := r.Context()
	caller := requestcontext.Caller(ctx)
	if caller.IsZero() {
		h.logger.ErrorContext(ctx, "caller missing from context despite auth middleware",
			"request_id", requestcontext.RequestID(ctx),
		)
		httputil.WriteError(w, dErrors.New(dErrors.CodeInternal, "authentication context error"))
		return domain.ZeroAddress, false
	}
	return caller, true
}

// pathAddress parses the {address} URL parameter.
func pathAddress(w http.ResponseWriter, r *http.Request) (domain.Address, bool) {
	addr, err := domain.ParseAddress(chi.URLParam(r, "address"))
	if err != nil {
		httputil.WriteError(w, err)
		return domain.ZeroAddress, false
	}
	return addr, true
}

// fail writes err, logging server-side failures at error level and client
// failures at warn.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	ctx := r.Context()
	status := httputil.StatusForCode(dErrors.CodeOf(err))
	args := []any{
		"op", op,
		"code", string(dErrors.CodeOf(err)),
		"request_id", requestcontext.RequestID(ctx),
		"error", err,
	}
	if status >= http.StatusInternalServerError {
		h.logger.ErrorContext(ctx, "request failed", args...)
	} else {
		h.logger.WarnContext(ctx, "request rejected", args...)
	}
	httputil.WriteError(w, err)
}
