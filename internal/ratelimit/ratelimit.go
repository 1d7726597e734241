// Package ratelimit throttles API callers with sliding-window counters keyed
// by client IP and, on authenticated routes, by caller address.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"contribgate/pkg/domain"
	"contribgate/pkg/requestcontext"
)

// Class groups endpoints that share a limit.
type Class string

const (
	ClassRead  Class = "read"
	ClassWrite Class = "write"
	ClassAdmin Class = "admin"
)

// KeyPrefix distinguishes the identity a counter is keyed by.
type KeyPrefix string

const (
	KeyPrefixIP     KeyPrefix = "ip"
	KeyPrefixCaller KeyPrefix = "caller"
)

// Result is the outcome of one check.
type Result struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
	// RetryAfter is in seconds and only set when the request is denied.
	RetryAfter int
}

// Limit is a request budget over a sliding window.
type Limit struct {
	Requests int
	Window   time.Duration
}

// Config holds per-class budgets. A class missing from a map is denied.
type Config struct {
	IP     map[Class]Limit
	Caller map[Class]Limit
}

// DefaultConfig keeps reads generous and contributions tight.
func DefaultConfig() Config {
	return Config{
		IP: map[Class]Limit{
			ClassRead:  {Requests: 300, Window: time.Minute},
			ClassWrite: {Requests: 60, Window: time.Minute},
			ClassAdmin: {Requests: 60, Window: time.Minute},
		},
		Caller: map[Class]Limit{
			ClassWrite: {Requests: 10, Window: time.Minute},
			ClassAdmin: {Requests: 30, Window: time.Minute},
		},
	}
}

// Store counts requests in a sliding window.
type Store interface {
	AllowN(ctx context.Context, key string, cost, limit int, window time.Duration) (*Result, error)
}

// Limiter applies Config against a Store.
type Limiter struct {
	store   Store
	config  Config
	logger  *slog.Logger
	metrics *Metrics
}

type Option func(*Limiter)

func WithConfig(cfg Config) Option {
	return func(l *Limiter) {
		l.config = cfg
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(l *Limiter) {
		l.logger = logger
	}
}

func WithMetrics(m *Metrics) Option {
	return func(l *Limiter) {
		l.metrics = m
	}
}

func New(store Store, opts ...Option) (*Limiter, error) {
	if store == nil {
		return nil, errors.New("rate limit store is required")
	}
	l := &Limiter{
		store:  store,
		config: DefaultConfig(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// CheckIP counts one request from ip against the class budget.
func (l *Limiter) CheckIP(ctx context.Context, ip string, class Class) (*Result, error) {
	limit, ok := l.config.IP[class]
	if !ok {
		return l.deny(ctx, KeyPrefixIP, class), nil
	}
	return l.check(ctx, KeyPrefixIP, ip, class, limit)
}

// CheckCaller counts one request from an authenticated caller.
func (l *Limiter) CheckCaller(ctx context.Context, caller domain.Address, class Class) (*Result, error) {
	limit, ok := l.config.Caller[class]
	if !ok {
		return l.deny(ctx, KeyPrefixCaller, class), nil
	}
	return l.check(ctx, KeyPrefixCaller, caller.Hex(), class, limit)
}

// CheckBoth applies the IP budget then the caller budget and returns the
// tighter of the two results.
func (l *Limiter) CheckBoth(ctx context.Context, ip string, caller domain.Address, class Class) (*Result, error) {
	ipResult, err := l.CheckIP(ctx, ip, class)
	if err != nil || !ipResult.Allowed {
		return ipResult, err
	}
	if _, ok := l.config.Caller[class]; !ok {
		return ipResult, nil
	}
	callerResult, err := l.CheckCaller(ctx, caller, class)
	if err != nil {
		return nil, err
	}
	if !callerResult.Allowed || callerResult.Remaining < ipResult.Remaining {
		return callerResult, nil
	}
	return ipResult, nil
}

func (l *Limiter) check(ctx context.Context, prefix KeyPrefix, identifier string, class Class, limit Limit) (*Result, error) {
	key := Key(prefix, class, identifier)
	result, err := l.store.AllowN(ctx, key, 1, limit.Requests, limit.Window)
	if err != nil {
		return nil, fmt.Errorf("check %s limit: %w", prefix, err)
	}
	if !result.Allowed {
		result.RetryAfter = retryAfter(requestcontext.Now(ctx), result.ResetAt)
		l.logger.WarnContext(ctx, "rate limit exceeded",
			"limit_type", prefix,
			"endpoint_class", class,
			"limit", limit.Requests,
			"window", limit.Window,
		)
	}
	l.metrics.ObserveDecision(prefix, class, result.Allowed)
	return result, nil
}

func (l *Limiter) deny(ctx context.Context, prefix KeyPrefix, class Class) *Result {
	l.logger.ErrorContext(ctx, "no rate limit configured for endpoint class",
		"limit_type", prefix,
		"endpoint_class", class,
	)
	l.metrics.ObserveDecision(prefix, class, false)
	return &Result{
		Allowed:    false,
		ResetAt:    requestcontext.Now(ctx),
		RetryAfter: 60,
	}
}

// Key builds the counter key for an identity.
func Key(prefix KeyPrefix, class Class, identifier string) string {
	return fmt.Sprintf("%s:%s:%s", prefix, class, identifier)
}

func retryAfter(now, resetAt time.Time) int {
	secs := int(resetAt.Sub(now).Round(time.Second) / time.Second)
	if secs < 1 {
		return 1
	}
	return secs
}
