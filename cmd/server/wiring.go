package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	jwttoken "contribgate/internal/jwt_token"
	"contribgate/internal/ledger/handler"
	"contribgate/internal/ledger/lock"
	ledgermetrics "contribgate/internal/ledger/metrics"
	"contribgate/internal/ledger/service"
	ledgermemory "contribgate/internal/ledger/store/memory"
	ledgerpg "contribgate/internal/ledger/store/postgres"
	"contribgate/internal/platform/config"
	"contribgate/internal/platform/kafka"
	kafkaconsumer "contribgate/internal/platform/kafka/consumer"
	"contribgate/internal/platform/kafka/producer"
	"contribgate/internal/platform/metrics"
	"contribgate/internal/platform/postgres"
	"contribgate/internal/platform/redis"
	"contribgate/internal/ratelimit"
	ratelimitmemory "contribgate/internal/ratelimit/store/memory"
	ratelimitredis "contribgate/internal/ratelimit/store/redis"
	"contribgate/internal/treasury"
	audit "contribgate/pkg/platform/audit"
	auditconsumer "contribgate/pkg/platform/audit/consumer"
	"contribgate/pkg/platform/audit/outbox"
	"contribgate/pkg/platform/audit/publisher"
	"contribgate/pkg/platform/audit/publishers/compliance"
	auditmemory "contribgate/pkg/platform/audit/store/memory"
	auditpg "contribgate/pkg/platform/audit/store/postgres"
	"contribgate/pkg/platform/httputil"
)

const auditBufferSize = 1024

// app is the assembled process: the router plus the background loops that
// run alongside the HTTP server.
type app struct {
	router     http.Handler
	background []func(context.Context) error
	closers    []func()

	storeKind     string
	lockKind      string
	forwarderKind string
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

type healthCheck struct {
	name  string
	check func(context.Context) error
}

func build(ctx context.Context, cfg config.Server, log *slog.Logger) (*app, error) {
	a := &app{}
	ok := false
	defer func() {
		if !ok {
			a.close()
		}
	}()
	var checks []healthCheck

	db, err := postgres.Open(ctx, cfg.Postgres)
	if err != nil {
		return nil, err
	}
	useKafka := len(cfg.Kafka.Brokers) > 0

	var (
		store      service.Store
		auditStore audit.Store
		events     service.EventReader
	)
	sinkOpts := []compliance.Option{
		compliance.WithLogger(log),
		compliance.WithMetrics(compliance.NewMetrics()),
	}
	if db != nil {
		a.closers = append(a.closers, func() { _ = db.Close() })
		if err := postgres.Migrate(ctx, db); err != nil {
			return nil, fmt.Errorf("migrate: %w", err)
		}
		var auditOpts []auditpg.Option
		if !useKafka {
			auditOpts = append(auditOpts, auditpg.WithInlineMaterialization())
		}
		pgAudit := auditpg.New(db, auditOpts...)
		store = ledgerpg.New(db, compliance.New(pgAudit, sinkOpts...))
		auditStore, events = pgAudit, pgAudit
		checks = append(checks, healthCheck{"postgres", db.PingContext})
		a.storeKind = "postgres"

		if useKafka {
			bg, closeKafka, err := startAuditPipeline(ctx, cfg.Kafka, db, pgAudit, log)
			if err != nil {
				return nil, err
			}
			a.background = append(a.background, bg...)
			a.closers = append(a.closers, closeKafka)
		}
	} else {
		memAudit := auditmemory.NewInMemoryStore()
		store = ledgermemory.New(ledgermemory.WithEventSink(compliance.New(memAudit, sinkOpts...)))
		auditStore, events = memAudit, memAudit
		a.storeKind = "memory"
		if useKafka {
			log.WarnContext(ctx, "KAFKA_BROKERS ignored without DATABASE_URL; the outbox lives in postgres")
		}
	}

	auditor := publisher.NewPublisher(auditStore,
		publisher.WithAsyncBuffer(auditBufferSize),
		publisher.WithLogger(log),
	)
	a.closers = append(a.closers, auditor.Close)

	opts := []service.Option{
		service.WithLogger(log),
		service.WithMetrics(ledgermetrics.New()),
		service.WithAuditor(auditor),
		service.WithEventReader(events),
		service.WithForwardTimeout(cfg.Campaign.ForwardTimeout),
	}

	redisClient, err := redis.New(ctx, cfg.Redis)
	if err != nil {
		return nil, err
	}
	var limitStore ratelimit.Store = ratelimitmemory.New()
	a.lockKind = "sharded"
	if redisClient != nil {
		limitStore = ratelimitredis.New(redisClient.Client)
		a.closers = append(a.closers, func() { _ = redisClient.Close() })
		opts = append(opts, service.WithLocker(lock.NewRedis(redisClient.Client,
			lock.WithTTL(cfg.Redis.LockTTL),
			lock.WithWait(cfg.Redis.LockWait),
		)))
		checks = append(checks, healthCheck{"redis", redisClient.Health})
		a.lockKind = "redis"
	}

	var forwarder service.Forwarder
	if cfg.Campaign.TreasuryURL != "" {
		forwarder = treasury.NewHTTPForwarder(cfg.Campaign.TreasuryURL,
			treasury.WithToken(cfg.Campaign.TreasuryToken),
			treasury.WithLogger(log),
		)
		a.forwarderKind = "http"
	} else {
		forwarder = treasury.NewVault()
		a.forwarderKind = "vault"
	}

	svc, err := service.New(store, forwarder, opts...)
	if err != nil {
		return nil, err
	}
	if _, err := svc.Bootstrap(ctx, cfg.Campaign.Owner, cfg.Campaign.Treasury,
		cfg.Campaign.ExchangeRate, cfg.Campaign.MaxFiat); err != nil {
		return nil, fmt.Errorf("bootstrap campaign: %w", err)
	}

	limiter, err := ratelimit.New(limitStore,
		ratelimit.WithConfig(rateLimitConfig(cfg.RateLimit)),
		ratelimit.WithLogger(log),
		ratelimit.WithMetrics(ratelimit.NewMetrics()),
	)
	if err != nil {
		return nil, err
	}

	jwt := jwttoken.NewJWTService(cfg.Auth.JWTSigningKey, cfg.Auth.Issuer, cfg.Auth.Audience)
	r := chi.NewRouter()
	handler.New(svc, jwttoken.NewJWTServiceAdapter(jwt), log,
		handler.WithMetrics(metrics.New()),
		handler.WithRateLimiter(ratelimit.NewMiddleware(limiter, log,
			ratelimit.WithDisabled(cfg.RateLimit.Disabled),
		)),
		handler.WithRequestTimeout(cfg.Campaign.ForwardTimeout+15*time.Second),
	).Register(r)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/healthz", healthz(checks))

	a.router = r
	ok = true
	return a, nil
}

func rateLimitConfig(cfg config.RateLimitConfig) ratelimit.Config {
	limit := func(n int) ratelimit.Limit {
		return ratelimit.Limit{Requests: n, Window: cfg.Window}
	}
	return ratelimit.Config{
		IP: map[ratelimit.Class]ratelimit.Limit{
			ratelimit.ClassRead:  limit(cfg.ReadPerIP),
			ratelimit.ClassWrite: limit(cfg.WritePerIP),
			ratelimit.ClassAdmin: limit(cfg.AdminPerIP),
		},
		Caller: map[ratelimit.Class]ratelimit.Limit{
			ratelimit.ClassWrite: limit(cfg.WritePerCaller),
			ratelimit.ClassAdmin: limit(cfg.AdminPerCaller),
		},
	}
}

// startAuditPipeline wires the outbox relay and the consumer that
// materializes relayed events into audit_events.
func startAuditPipeline(ctx context.Context, cfg config.KafkaConfig, db *sql.DB, store *auditpg.Store, log *slog.Logger) ([]func(context.Context) error, func(), error) {
	if err := kafka.EnsureTopics(ctx, cfg); err != nil {
		return nil, nil, err
	}
	prod, err := producer.New(cfg.Brokers, log)
	if err != nil {
		return nil, nil, err
	}
	cons, err := kafkaconsumer.New(cfg.Brokers, cfg.ConsumerGroup, kafka.Topics(cfg.TopicPrefix), log)
	if err != nil {
		prod.Close()
		return nil, nil, err
	}

	relay := outbox.NewRelay(db, prod, cfg.TopicPrefix,
		outbox.WithBatchSize(cfg.OutboxBatchSize),
		outbox.WithInterval(cfg.OutboxPollInterval),
		outbox.WithMetrics(outbox.NewMetrics()),
		outbox.WithLogger(log),
	)
	router := auditconsumer.NewRouter(log, nil)
	router.Register(auditconsumer.NewEventHandler(store, log), kafka.Topics(cfg.TopicPrefix)...)

	bg := []func(context.Context) error{
		relay.Run,
		func(ctx context.Context) error {
			return cons.Run(ctx, router)
		},
	}
	closeAll := func() {
		cons.Close()
		prod.Close()
	}
	return bg, closeAll, nil
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

func healthz(checks []healthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		resp := healthResponse{Status: "ok", Checks: make(map[string]string, len(checks))}
		status := http.StatusOK
		for _, c := range checks {
			if err := c.check(ctx); err != nil {
				resp.Checks[c.name] = err.Error()
				resp.Status = "degraded"
				status = http.StatusServiceUnavailable
				continue
			}
			resp.Checks[c.name] = "ok"
		}
		httputil.WriteJSON(w, status, resp)
	}
}
