// Package service implements the contribution ledger: access control,
// identity verification, exchange-rate management, the contribution accept
// path, and reporting.
//
// Every mutation runs inside Store.RunInTx. Contributions hold the party's
// lock for the whole accept step; configuration changes hold the config lock.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"contribgate/internal/ledger/lock"
	"contribgate/internal/ledger/metrics"
	"contribgate/internal/ledger/models"
	"contribgate/pkg/domain"
	dErrors "contribgate/pkg/domain-errors"
	"contribgate/pkg/platform/sentinel"
	"contribgate/pkg/requestcontext"
)

// DefaultForwardTimeout bounds one treasury forward.
const DefaultForwardTimeout = 10 * time.Second

const configLockKey = "config"

var tracer = otel.Tracer("contribgate/ledger")

type Service struct {
	store     Store
	forwarder Forwarder
	locker    Locker
	auditor   AuditEmitter
	events    EventReader
	logger    *slog.Logger
	metrics   *metrics.Metrics

	forwardTimeout time.Duration
	now            func(ctx context.Context) time.Time
	nonce          func() uuid.UUID
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithLocker replaces the default in-process locker, e.g. with a Redis
// locker shared by several instances.
func WithLocker(l Locker) Option {
	return func(s *Service) {
		s.locker = l
	}
}

// WithAuditor sets the sink for audit events emitted outside a transaction.
func WithAuditor(a AuditEmitter) Option {
	return func(s *Service) {
		s.auditor = a
	}
}

// WithEventReader enables ListEvents.
func WithEventReader(r EventReader) Option {
	return func(s *Service) {
		s.events = r
	}
}

func WithForwardTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.forwardTimeout = d
		}
	}
}

// WithClock overrides the request-scoped clock.
func WithClock(now func(ctx context.Context) time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// WithNonce overrides the reference nonce source.
func WithNonce(nonce func() uuid.UUID) Option {
	return func(s *Service) {
		s.nonce = nonce
	}
}

func New(store Store, forwarder Forwarder, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("ledger store is required")
	}
	if forwarder == nil {
		return nil, fmt.Errorf("treasury forwarder is required")
	}

	svc := &Service{
		store:          store,
		forwarder:      forwarder,
		locker:         lock.NewSharded(),
		logger:         slog.Default(),
		forwardTimeout: DefaultForwardTimeout,
		now:            requestcontext.Now,
		nonce:          uuid.New,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// Bootstrap installs the initial campaign configuration unless one already
// exists, and returns the configuration in effect.
//
// Errors: CodeInvalidConfiguration for a zero owner or treasury, a
// non-positive rate, or a cap that yields no asset capacity.
func (s *Service) Bootstrap(ctx context.Context, owner, treasury domain.Address, rate, maxFiat domain.Rate) (*models.CampaignConfig, error) {
	if owner.IsZero() {
		return nil, dErrors.New(dErrors.CodeInvalidConfiguration, "owner cannot be the zero address")
	}
	if treasury.IsZero() {
		return nil, dErrors.New(dErrors.CodeInvalidConfiguration, "treasury cannot be the zero address")
	}
	if !rate.IsPositive() {
		return nil, dErrors.New(dErrors.CodeInvalidConfiguration, "exchange rate must be greater than zero")
	}
	if !maxFiat.IsPositive() {
		return nil, dErrors.New(dErrors.CodeInvalidConfiguration, "maximum contribution must be greater than zero")
	}

	cfg := &models.CampaignConfig{
		Owner:               owner,
		Treasury:            treasury,
		Verifiers:           make(map[domain.Address]struct{}),
		ExchangeRate:        rate,
		MaxContributionFiat: maxFiat,
	}
	if _, err := cfg.MaxContributionAsset(); err != nil {
		return nil, err
	}

	stored, err := s.store.Bootstrap(ctx, cfg)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to bootstrap campaign")
	}
	if stored.Owner != owner {
		s.logger.WarnContext(ctx, "campaign already bootstrapped with a different owner",
			"configured_owner", owner.Hex(),
			"stored_owner", stored.Owner.Hex(),
		)
	}
	s.logger.InfoContext(ctx, "campaign ready",
		"owner", stored.Owner.Hex(),
		"treasury", stored.Treasury.Hex(),
		"exchange_rate", stored.ExchangeRate.String(),
		"paused", stored.Paused,
	)
	return stored, nil
}

// lock acquires keys and records the wait.
func (s *Service) lock(ctx context.Context, keys ...string) (func(), error) {
	start := time.Now()
	release, err := s.locker.Lock(ctx, keys...)
	s.metrics.ObserveLockWait(time.Since(start).Seconds())
	if err != nil {
		if ctx.Err() != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeTimeout, "timed out waiting for ledger lock")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to acquire ledger lock")
	}
	return release, nil
}

func partyLockKey(party domain.Address) string {
	return "party:" + party.Hex()
}

// committedConfig reads the configuration outside a transaction.
func (s *Service) committedConfig(ctx context.Context) (*models.CampaignConfig, error) {
	cfg, err := s.store.Config(ctx)
	if err != nil {
		return nil, translateStoreErr(err, "failed to load campaign configuration")
	}
	return cfg, nil
}

// translateStoreErr keeps coded errors and maps infrastructure sentinels.
func translateStoreErr(err error, msg string) error {
	if _, ok := dErrors.As(err); ok {
		return err
	}
	switch {
	case dErrors.Is(err, sentinel.ErrNotFound):
		return dErrors.Wrap(err, dErrors.CodeInvalidConfiguration, "campaign is not configured")
	case dErrors.Is(err, sentinel.ErrUnavailable):
		return dErrors.Wrap(err, dErrors.CodeTimeout, msg)
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, msg)
	}
}

func startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

// endSpan records err on span and ends it.
func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(dErrors.CodeOf(err)))
	}
	span.End()
}
