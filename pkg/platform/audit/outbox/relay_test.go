package outbox

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"contribgate/internal/platform/kafka/producer"
	"contribgate/pkg/platform/circuit"
)

type stubPublisher struct {
	err   error
	calls int
}

func (p *stubPublisher) Publish(_ context.Context, _ ...producer.Message) error {
	p.calls++
	return p.err
}

func TestRelayBreakerState(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	pub := &stubPublisher{err: errors.New("broker unreachable")}
	metrics := NewMetricsWith(prometheus.NewRegistry())
	relay := NewRelay(nil, pub, "contribgate.audit",
		WithMetrics(metrics),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithBreaker(circuit.New("audit-outbox",
			circuit.WithFailureThreshold(2),
			circuit.WithCooldown(time.Minute),
			circuit.WithClock(func() time.Time { return now }),
		)),
	)
	batch := []producer.Message{{Topic: "contribgate.audit.compliance", Value: []byte(`{}`)}}

	require.Error(t, relay.publish(ctx, batch))
	assert.Equal(t, 0.0, testutil.ToFloat64(metrics.CircuitBreakerState), "one failure keeps the relay publishing")

	require.Error(t, relay.publish(ctx, batch))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.CircuitBreakerState))
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.PublishFailures))

	// An open breaker skips the tick before touching the database.
	n, err := relay.RelayOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.CircuitSkipped))
	assert.Equal(t, 2, pub.calls)

	now = now.Add(time.Minute)
	pub.err = nil
	require.NoError(t, relay.publish(ctx, batch))
	assert.Equal(t, 0.0, testutil.ToFloat64(metrics.CircuitBreakerState), "a successful probe closes the breaker")
}

func TestTopicFor(t *testing.T) {
	relay := NewRelay(nil, &stubPublisher{}, "contribgate.audit")
	assert.Equal(t, "contribgate.audit.compliance", relay.TopicFor("contribution_accepted"))
	assert.Equal(t, "contribgate.audit.security", relay.TopicFor("contribution_rejected"))
	assert.Equal(t, "contribgate.audit.operations", relay.TopicFor("something_else"))
}
