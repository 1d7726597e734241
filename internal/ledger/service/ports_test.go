package service_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"contribgate/internal/ledger/service"
	"contribgate/internal/ledger/service/mocks"
	ledgermemory "contribgate/internal/ledger/store/memory"
	"contribgate/internal/treasury"
	"contribgate/pkg/domain"
	dErrors "contribgate/pkg/domain-errors"
	audit "contribgate/pkg/platform/audit"
	"contribgate/pkg/requestcontext"
)

func newMockedService(t *testing.T, fwd service.Forwarder, opts ...service.Option) *service.Service {
	t.Helper()
	base := []service.Option{service.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))}
	svc, err := service.New(ledgermemory.New(), fwd, append(base, opts...)...)
	require.NoError(t, err)
	_, err = svc.Bootstrap(context.Background(), owner, treasuryOne,
		domain.MustParseRate("3000"), domain.MustParseRate("3300"))
	require.NoError(t, err)
	_, err = svc.VerifyParty(context.Background(), owner, alice)
	require.NoError(t, err)
	return svc
}

func TestAcceptForwardsFullAmountWithReference(t *testing.T) {
	ctrl := gomock.NewController(t)
	fwd := mocks.NewMockForwarder(ctrl)

	nonce := uuid.MustParse("6f1c2a64-0d43-4a8e-9a57-2c1f7d3b9e10")
	amount := eth("0.25")
	wantRef := domain.NewReferenceID(alice, amount, nonce)

	fwd.EXPECT().Forward(gomock.Any(), treasury.Transfer{
		From:        alice,
		To:          treasuryOne,
		Amount:      amount,
		ReferenceID: wantRef,
	}).DoAndReturn(func(ctx context.Context, _ treasury.Transfer) error {
		deadline, ok := ctx.Deadline()
		assert.True(t, ok, "forward must run under a timeout")
		assert.WithinDuration(t, time.Now().Add(service.DefaultForwardTimeout), deadline, time.Second)
		return nil
	})

	svc := newMockedService(t, fwd, service.WithNonce(func() uuid.UUID { return nonce }))
	receipt, err := svc.Contribute(context.Background(), alice, amount)
	require.NoError(t, err)
	assert.Equal(t, wantRef, receipt.ReferenceID)
}

func TestRejectedAttemptIsAudited(t *testing.T) {
	ctrl := gomock.NewController(t)
	fwd := mocks.NewMockForwarder(ctrl)
	auditor := mocks.NewMockAuditEmitter(ctrl)

	fwd.EXPECT().Forward(gomock.Any(), gomock.Any()).Times(0)
	auditor.EXPECT().Emit(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, e audit.Event) error {
		assert.Equal(t, string(audit.EventContributionRejected), e.Action)
		assert.Equal(t, bob, e.Party)
		assert.Equal(t, eth("0.1").String(), e.Amount)
		assert.Equal(t, service.ReasonNotVerified, e.Reason)
		assert.Equal(t, "req-42", e.RequestID)
		assert.Equal(t, string(dErrors.CodeIdentityNotVerified), e.Details["code"])
		return errors.New("audit sink down")
	})

	svc := newMockedService(t, fwd, service.WithAuditor(auditor))
	ctx := requestcontext.WithRequestID(context.Background(), "req-42")
	_, err := svc.Contribute(ctx, bob, eth("0.1"))
	assert.True(t, dErrors.HasCode(err, dErrors.CodeIdentityNotVerified), "auditor failure must not change the outcome")
}

func TestLockFailureAbortsBeforeAnyCheck(t *testing.T) {
	ctrl := gomock.NewController(t)
	fwd := mocks.NewMockForwarder(ctrl)
	locker := mocks.NewMockLocker(ctrl)

	svc, err := service.New(ledgermemory.New(), fwd, service.WithLocker(locker))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	locker.EXPECT().Lock(gomock.Any(), "party:"+alice.Hex()).Return(nil, context.Canceled)

	_, err = svc.Contribute(ctx, alice, eth("0.1"))
	assert.True(t, dErrors.HasCode(err, dErrors.CodeTimeout))
}

func TestListEventsReadsAuditTrail(t *testing.T) {
	ctrl := gomock.NewController(t)
	reader := mocks.NewMockEventReader(ctrl)
	reader.EXPECT().ListByParty(gomock.Any(), alice).Return(nil, nil)

	svc := newMockedService(t, treasury.NewVault(), service.WithEventReader(reader))
	events, err := svc.ListEvents(context.Background(), alice)
	require.NoError(t, err)
	assert.NotNil(t, events)
	assert.Empty(t, events)
}
