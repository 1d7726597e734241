package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"contribgate/pkg/domain"
)

func TestFromEnv_Defaults(t *testing.T) {
	t.Setenv("ENVIRONMENT", "")
	t.Setenv("CAMPAIGN_OWNER", "")
	t.Setenv("CAMPAIGN_TREASURY", "")
	t.Setenv("KAFKA_BROKERS", "")

	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, domain.MustParseAddress(devOwner), cfg.Campaign.Owner)
	assert.Equal(t, cfg.Campaign.Owner, cfg.Campaign.Treasury, "treasury defaults to the owner")
	assert.True(t, cfg.Campaign.ExchangeRate.Equal(domain.RateFromUnits(3000)))
	assert.True(t, cfg.Campaign.MaxFiat.Equal(domain.RateFromUnits(3300)))
	assert.Equal(t, 10*time.Second, cfg.Campaign.ForwardTimeout)
	assert.Empty(t, cfg.Kafka.Brokers)
	assert.Equal(t, devSigningKey, cfg.Auth.JWTSigningKey)
	assert.False(t, cfg.RateLimit.Disabled)
	assert.Equal(t, time.Minute, cfg.RateLimit.Window)
	assert.Equal(t, 10, cfg.RateLimit.WritePerCaller)
}

func TestFromEnv_Overrides(t *testing.T) {
	t.Setenv("CAMPAIGN_OWNER", "0x70997970C51812dc3A010C7d01b50e0d17dc79C8")
	t.Setenv("CAMPAIGN_TREASURY", "0x3C44CdDdB6a900fa2b585dd299e03d12FA4293BC")
	t.Setenv("CAMPAIGN_EXCHANGE_RATE", "4000.5")
	t.Setenv("KAFKA_BROKERS", "a:9092, b:9092")
	t.Setenv("TREASURY_FORWARD_TIMEOUT", "2s")
	t.Setenv("RATE_LIMIT_DISABLED", "true")
	t.Setenv("RATE_LIMIT_WRITE_PER_CALLER", "3")

	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.True(t, cfg.RateLimit.Disabled)
	assert.Equal(t, 3, cfg.RateLimit.WritePerCaller)

	assert.Equal(t, "0x3C44CdDdB6a900fa2b585dd299e03d12FA4293BC", cfg.Campaign.Treasury.Hex())
	assert.Equal(t, "4000.5", cfg.Campaign.ExchangeRate.String())
	assert.Equal(t, []string{"a:9092", "b:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, 2*time.Second, cfg.Campaign.ForwardTimeout)
}

func TestFromEnv_RejectsBadBootstrap(t *testing.T) {
	t.Run("zero exchange rate", func(t *testing.T) {
		t.Setenv("CAMPAIGN_EXCHANGE_RATE", "0")
		_, err := FromEnv()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "exchange rate must be positive")
	})

	t.Run("malformed treasury", func(t *testing.T) {
		t.Setenv("CAMPAIGN_TREASURY", "not-an-address")
		_, err := FromEnv()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "CAMPAIGN_TREASURY")
	})

	t.Run("production needs an explicit owner and key", func(t *testing.T) {
		t.Setenv("ENVIRONMENT", "production")
		t.Setenv("CAMPAIGN_OWNER", "")
		t.Setenv("CAMPAIGN_TREASURY", "")
		t.Setenv("JWT_SIGNING_KEY", "")
		_, err := FromEnv()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "campaign owner is required")
		assert.Contains(t, err.Error(), "JWT_SIGNING_KEY")
	})

	t.Run("party lock must outlive forward and reversal", func(t *testing.T) {
		t.Setenv("REDIS_URL", "redis://localhost:6379")
		t.Setenv("TREASURY_FORWARD_TIMEOUT", "10s")
		t.Setenv("PARTY_LOCK_TTL", "15s")
		_, err := FromEnv()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "PARTY_LOCK_TTL")

		t.Setenv("PARTY_LOCK_TTL", "25s")
		_, err = FromEnv()
		require.NoError(t, err)
	})
}
