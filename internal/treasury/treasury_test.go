package treasury

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"contribgate/pkg/domain"
	"contribgate/pkg/platform/circuit"
	"contribgate/pkg/platform/sentinel"
)

var (
	donor    = domain.MustParseAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8")
	treasury = domain.MustParseAddress("0x90F79bf6EB2c4f870365E785982E1f101E93b906")
)

func transfer(units string) Transfer {
	amount := domain.MustParseUnits(units)
	return Transfer{
		From:        donor,
		To:          treasury,
		Amount:      amount,
		ReferenceID: domain.NewReferenceID(donor, amount, uuid.New()),
	}
}

func TestVault(t *testing.T) {
	ctx := context.Background()

	t.Run("forward credits destination once per reference", func(t *testing.T) {
		v := NewVault()
		tr := transfer("0.5")
		require.NoError(t, v.Forward(ctx, tr))
		require.NoError(t, v.Forward(ctx, tr))
		assert.Equal(t, domain.MustParseUnits("0.5"), v.Balance(treasury))
	})

	t.Run("rejecting destination", func(t *testing.T) {
		v := NewVault()
		v.RejectDestination(treasury, true)
		err := v.Forward(ctx, transfer("0.5"))
		assert.ErrorIs(t, err, ErrRejected)
		assert.True(t, v.Balance(treasury).IsZero())
	})

	t.Run("reverse restores balance", func(t *testing.T) {
		v := NewVault()
		tr := transfer("0.3")
		require.NoError(t, v.Forward(ctx, transfer("0.2")))
		require.NoError(t, v.Forward(ctx, tr))
		require.NoError(t, v.Reverse(ctx, tr))
		assert.Equal(t, domain.MustParseUnits("0.2"), v.Balance(treasury))
		assert.ErrorIs(t, v.Reverse(ctx, tr), ErrUnknownTransfer)
	})

	t.Run("cancelled context", func(t *testing.T) {
		v := NewVault()
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		assert.ErrorIs(t, v.Forward(cctx, transfer("0.1")), context.Canceled)
	})
}

func TestHTTPForwarder(t *testing.T) {
	ctx := context.Background()

	t.Run("posts transfer with bearer token", func(t *testing.T) {
		var got transferRequest
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/v1/transfers", r.URL.Path)
			assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
			require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
			w.WriteHeader(http.StatusCreated)
		}))
		defer srv.Close()

		f := NewHTTPForwarder(srv.URL+"/", WithToken("secret"))
		tr := transfer("1.1")
		require.NoError(t, f.Forward(ctx, tr))
		assert.Equal(t, "1100000000000000000", got.Amount)
		assert.Equal(t, treasury.Hex(), got.To)
		assert.Equal(t, tr.ReferenceID.Hex(), got.ReferenceID)
	})

	t.Run("conflict means already processed", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusConflict)
		}))
		defer srv.Close()
		assert.NoError(t, NewHTTPForwarder(srv.URL).Forward(ctx, transfer("0.1")))
	})

	t.Run("client error is a rejection", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "destination frozen", http.StatusUnprocessableEntity)
		}))
		defer srv.Close()
		err := NewHTTPForwarder(srv.URL).Forward(ctx, transfer("0.1"))
		assert.ErrorIs(t, err, ErrRejected)
		assert.ErrorContains(t, err, "destination frozen")
	})

	t.Run("slow custody api honors context deadline", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-r.Context().Done():
			case <-time.After(2 * time.Second):
			}
		}))
		defer srv.Close()

		tctx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
		defer cancel()
		err := NewHTTPForwarder(srv.URL).Forward(tctx, transfer("0.1"))
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})

	t.Run("breaker opens on server errors", func(t *testing.T) {
		var calls atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			calls.Add(1)
			w.WriteHeader(http.StatusBadGateway)
		}))
		defer srv.Close()

		f := NewHTTPForwarder(srv.URL, WithBreaker(circuit.New("treasury",
			circuit.WithFailureThreshold(2), circuit.WithCooldown(time.Hour))))
		assert.Error(t, f.Forward(ctx, transfer("0.1")))
		assert.Error(t, f.Forward(ctx, transfer("0.1")))

		err := f.Forward(ctx, transfer("0.1"))
		assert.ErrorIs(t, err, sentinel.ErrUnavailable)
		assert.Equal(t, int32(2), calls.Load(), "open breaker must not call the api")
	})

	t.Run("custody rejections keep the breaker closed", func(t *testing.T) {
		var calls atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			if calls.Add(1)%2 == 0 {
				http.Error(w, "destination frozen", http.StatusUnprocessableEntity)
				return
			}
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer srv.Close()

		breaker := circuit.New("treasury", circuit.WithFailureThreshold(2), circuit.WithCooldown(time.Hour))
		f := NewHTTPForwarder(srv.URL, WithBreaker(breaker))
		for i := 0; i < 6; i++ {
			assert.Error(t, f.Forward(ctx, transfer("0.1")))
		}
		assert.False(t, breaker.IsOpen())
		assert.Equal(t, int32(6), calls.Load())
	})

	t.Run("reverse unknown reference", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Contains(t, r.URL.Path, "/reversal")
			w.WriteHeader(http.StatusNotFound)
		}))
		defer srv.Close()
		assert.ErrorIs(t, NewHTTPForwarder(srv.URL).Reverse(ctx, transfer("0.1")), ErrUnknownTransfer)
	})
}
