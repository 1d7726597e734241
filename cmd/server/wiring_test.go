package main

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	jwttoken "contribgate/internal/jwt_token"
	"contribgate/internal/platform/config"
	"contribgate/pkg/domain"
	"contribgate/pkg/testutil"
)

// build registers process-wide prometheus collectors, so it runs once here.
func TestBuildInMemory(t *testing.T) {
	for _, key := range []string{"DATABASE_URL", "REDIS_URL", "KAFKA_BROKERS", "TREASURY_URL", "JWT_SIGNING_KEY", "CAMPAIGN_OWNER", "CAMPAIGN_TREASURY"} {
		t.Setenv(key, "")
	}
	t.Setenv("ENVIRONMENT", "test")

	cfg, err := config.FromEnv()
	require.NoError(t, err)

	ctx := context.Background()
	a, err := build(ctx, cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	t.Cleanup(a.close)

	testutil.Given(t, "a server without external dependencies", func(t *testing.T) {
		require.Equal(t, "memory", a.storeKind)
		require.Equal(t, "sharded", a.lockKind)
		require.Equal(t, "vault", a.forwarderKind)
		require.Empty(t, a.background)

		testutil.When(t, "probing health", func(t *testing.T) {
			rr := testutil.DoRequest(a.router, testutil.NewRequest(t, http.MethodGet, "/healthz"))

			testutil.Then(t, "it reports ok", func(t *testing.T) {
				testutil.AssertStatusOK(t, rr)
				testutil.AssertJSONContains(t, rr, "status", "ok")
			})
		})

		testutil.When(t, "reading campaign stats", func(t *testing.T) {
			rr := testutil.DoRequest(a.router, testutil.NewRequest(t, http.MethodGet, "/v1/campaign/stats"))

			testutil.Then(t, "the bootstrap configuration is live", func(t *testing.T) {
				testutil.AssertStatusOK(t, rr)
				body := testutil.UnmarshalResponse[map[string]any](t, rr)
				require.Equal(t, "3000", (*body)["exchange_rate"])
				require.Equal(t, "1100000000000000000", (*body)["max_contribution_asset"])
			})
		})

		testutil.When(t, "contributing without a token", func(t *testing.T) {
			req := testutil.NewJSONRequest(t, http.MethodPost, "/v1/contributions", map[string]string{"amount": "1"})
			rr := testutil.DoRequest(a.router, req)

			testutil.Then(t, "it is unauthorized", func(t *testing.T) {
				testutil.AssertStatusAndError(t, rr, http.StatusUnauthorized, "unauthorized")
			})
		})

		testutil.When(t, "an unverified party contributes", func(t *testing.T) {
			jwt := jwttoken.NewJWTService(cfg.Auth.JWTSigningKey, cfg.Auth.Issuer, cfg.Auth.Audience)
			token, err := jwt.GenerateAccessToken(domain.MustParseAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8"), time.Minute)
			require.NoError(t, err)

			req := testutil.NewJSONRequest(t, http.MethodPost, "/v1/contributions", map[string]string{"amount": "500000000000000000"})
			req.Header.Set("Authorization", "Bearer "+token)
			rr := testutil.DoRequest(a.router, req)

			testutil.Then(t, "the compliance gate rejects it", func(t *testing.T) {
				testutil.AssertStatusAndError(t, rr, http.StatusUnprocessableEntity, "identity_not_verified")
			})
		})

		testutil.When(t, "scraping metrics", func(t *testing.T) {
			rr := testutil.DoRequest(a.router, testutil.NewRequest(t, http.MethodGet, "/metrics"))

			testutil.Then(t, "prometheus exposition is served", func(t *testing.T) {
				testutil.AssertStatusOK(t, rr)
			})
		})
	})
}
