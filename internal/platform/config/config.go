package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"contribgate/pkg/domain"
	pstrings "contribgate/pkg/platform/strings"
)

// Server captures process level configuration.
type Server struct {
	Addr            string
	Environment     string
	LogLevel        string
	ShutdownTimeout time.Duration

	Postgres PostgresConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
	Campaign  CampaignConfig
	Auth      AuthConfig
	RateLimit RateLimitConfig
}

// PostgresConfig selects the durable ledger store. An empty URL means the
// in-memory store is used.
type PostgresConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// RedisConfig enables the distributed party lock. An empty URL means the
// in-process sharded lock is used.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	LockTTL      time.Duration
	LockWait     time.Duration
}

// KafkaConfig enables the audit outbox relay and consumer. Empty Brokers
// means audit events are materialized inline.
type KafkaConfig struct {
	Brokers            []string
	TopicPrefix        string
	ConsumerGroup      string
	Partitions         int32
	ReplicationFactor  int16
	OutboxPollInterval time.Duration
	OutboxBatchSize    int
}

// CampaignConfig bootstraps the campaign configuration on first start.
type CampaignConfig struct {
	Owner          domain.Address
	Treasury       domain.Address
	ExchangeRate   domain.Rate
	MaxFiat        domain.Rate
	ForwardTimeout time.Duration
	// TreasuryURL selects the HTTP custody forwarder; empty uses the
	// in-process vault.
	TreasuryURL   string
	TreasuryToken string
}

// AuthConfig configures bearer token validation.
type AuthConfig struct {
	JWTSigningKey string
	Issuer        string
	Audience      string
}

// RateLimitConfig sets request budgets per window. Counters live in Redis
// when it is configured and in process memory otherwise.
type RateLimitConfig struct {
	Disabled       bool
	Window         time.Duration
	ReadPerIP      int
	WritePerIP     int
	AdminPerIP     int
	WritePerCaller int
	AdminPerCaller int
}

const (
	DefaultExchangeRate = "3000"
	DefaultMaxFiat      = "3300"

	devSigningKey = "dev-secret-key-change-in-production"
	// Hardhat's first default account; development only.
	devOwner = "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"
)

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() (Server, error) {
	cfg := Server{
		Addr:            envOr("CONTRIBGATE_ADDR", ":8080"),
		Environment:     envOr("ENVIRONMENT", "development"),
		LogLevel:        envOr("LOG_LEVEL", "info"),
		ShutdownTimeout: envDuration("SHUTDOWN_TIMEOUT", 15*time.Second),
		Postgres: PostgresConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    envInt("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: envDuration("DATABASE_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     envInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: envInt("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  envDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  envDuration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: envDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
			LockTTL:      envDuration("PARTY_LOCK_TTL", 30*time.Second),
			LockWait:     envDuration("PARTY_LOCK_WAIT", 5*time.Second),
		},
		Kafka: KafkaConfig{
			Brokers:            pstrings.SplitList(os.Getenv("KAFKA_BROKERS")),
			TopicPrefix:        envOr("KAFKA_TOPIC_PREFIX", "contribgate.audit"),
			ConsumerGroup:      envOr("KAFKA_CONSUMER_GROUP", "contribgate-audit"),
			Partitions:         int32(envInt("KAFKA_TOPIC_PARTITIONS", 3)),
			ReplicationFactor:  int16(envInt("KAFKA_TOPIC_REPLICATION", 1)),
			OutboxPollInterval: envDuration("OUTBOX_POLL_INTERVAL", time.Second),
			OutboxBatchSize:    envInt("OUTBOX_BATCH_SIZE", 100),
		},
		Campaign: CampaignConfig{
			ForwardTimeout: envDuration("TREASURY_FORWARD_TIMEOUT", 10*time.Second),
			TreasuryURL:    os.Getenv("TREASURY_URL"),
			TreasuryToken:  os.Getenv("TREASURY_TOKEN"),
		},
		Auth: AuthConfig{
			JWTSigningKey: os.Getenv("JWT_SIGNING_KEY"),
			Issuer:        envOr("JWT_ISSUER", "contribgate"),
			Audience:      envOr("JWT_AUDIENCE", "contribgate-api"),
		},
		RateLimit: RateLimitConfig{
			Disabled:       envBool("RATE_LIMIT_DISABLED", false),
			Window:         envDuration("RATE_LIMIT_WINDOW", time.Minute),
			ReadPerIP:      envInt("RATE_LIMIT_READ_PER_IP", 300),
			WritePerIP:     envInt("RATE_LIMIT_WRITE_PER_IP", 60),
			AdminPerIP:     envInt("RATE_LIMIT_ADMIN_PER_IP", 60),
			WritePerCaller: envInt("RATE_LIMIT_WRITE_PER_CALLER", 10),
			AdminPerCaller: envInt("RATE_LIMIT_ADMIN_PER_CALLER", 30),
		},
	}

	if cfg.Auth.JWTSigningKey == "" && !cfg.IsProduction() {
		// Use a default for development - must be overridden in production
		cfg.Auth.JWTSigningKey = devSigningKey
	}

	var err error
	ownerDefault := ""
	if !cfg.IsProduction() {
		ownerDefault = devOwner
	}
	if cfg.Campaign.Owner, err = parseAddressEnv("CAMPAIGN_OWNER", ownerDefault); err != nil {
		return Server{}, err
	}
	treasuryDefault := ""
	if !cfg.Campaign.Owner.IsZero() {
		treasuryDefault = cfg.Campaign.Owner.Hex()
	}
	if cfg.Campaign.Treasury, err = parseAddressEnv("CAMPAIGN_TREASURY", treasuryDefault); err != nil {
		return Server{}, err
	}
	if cfg.Campaign.ExchangeRate, err = domain.ParseRate(envOr("CAMPAIGN_EXCHANGE_RATE", DefaultExchangeRate)); err != nil {
		return Server{}, fmt.Errorf("CAMPAIGN_EXCHANGE_RATE: %w", err)
	}
	if cfg.Campaign.MaxFiat, err = domain.ParseRate(envOr("CAMPAIGN_MAX_CONTRIBUTION_FIAT", DefaultMaxFiat)); err != nil {
		return Server{}, fmt.Errorf("CAMPAIGN_MAX_CONTRIBUTION_FIAT: %w", err)
	}

	return cfg, cfg.Validate()
}

// Validate fails fast on configuration the ledger cannot start with.
func (s Server) Validate() error {
	var errs []error
	if s.Campaign.Owner.IsZero() {
		errs = append(errs, errors.New("campaign owner is required"))
	}
	if s.Campaign.Treasury.IsZero() {
		errs = append(errs, errors.New("campaign treasury is required"))
	}
	if !s.Campaign.ExchangeRate.IsPositive() {
		errs = append(errs, errors.New("exchange rate must be positive"))
	}
	if !s.Campaign.MaxFiat.IsPositive() {
		errs = append(errs, errors.New("max contribution fiat must be positive"))
	}
	if s.Campaign.ForwardTimeout <= 0 {
		errs = append(errs, errors.New("treasury forward timeout must be positive"))
	}
	// An accept holds the party lock across the forward and a possible
	// reversal, each bounded by the forward timeout.
	if s.Redis.URL != "" && s.Redis.LockTTL <= 2*s.Campaign.ForwardTimeout {
		errs = append(errs, fmt.Errorf("PARTY_LOCK_TTL (%s) must exceed twice TREASURY_FORWARD_TIMEOUT (%s)",
			s.Redis.LockTTL, s.Campaign.ForwardTimeout))
	}
	if !s.RateLimit.Disabled && s.RateLimit.Window <= 0 {
		errs = append(errs, errors.New("rate limit window must be positive"))
	}
	if s.Auth.JWTSigningKey == "" {
		errs = append(errs, errors.New("JWT_SIGNING_KEY is required in production"))
	}
	if s.IsProduction() && s.Auth.JWTSigningKey == devSigningKey {
		errs = append(errs, errors.New("development JWT signing key used in production"))
	}
	return errors.Join(errs...)
}

func (s Server) IsProduction() bool {
	return s.Environment == "production"
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return v
}

func envBool(key string, fallback bool) bool {
	v, err := strconv.ParseBool(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return v
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v, err := time.ParseDuration(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return v
}

func parseAddressEnv(key, fallback string) (domain.Address, error) {
	raw := envOr(key, fallback)
	if raw == "" {
		return domain.ZeroAddress, nil
	}
	addr, err := domain.ParseAddress(raw)
	if err != nil {
		return domain.ZeroAddress, fmt.Errorf("%s: %w", key, err)
	}
	return addr, nil
}
