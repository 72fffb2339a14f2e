package sweeper

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/shestoi/paybridge/internal/payment"
	"github.com/shestoi/paybridge/internal/repository"
	"github.com/shestoi/paybridge/internal/repository/memory"
	"github.com/shestoi/paybridge/internal/service"
	"github.com/shestoi/paybridge/internal/service/mocks"
)

type fakeLocker struct {
	held     bool
	err      error
	released int
}

func (f *fakeLocker) TryLock(_ context.Context, _ time.Duration) (func(context.Context) error, bool, error) {
	if f.err != nil {
		return nil, false, f.err
	}
	if f.held {
		return nil, false, nil
	}
	f.held = true
	return func(context.Context) error {
		f.held = false
		f.released++
		return nil
	}, true, nil
}

func seed(t *testing.T, repo *memory.Repository, id string, expiresAt time.Time) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, repo.CreateOrder(ctx, repository.Order{
		ID:       id,
		Amount:   decimal.RequireFromString("10"),
		Currency: "USD",
		Email:    "a@b.co",
		Status:   payment.StatusUnpaid,
	}))
	_, err := repo.AttachInvoice(ctx, id, repository.InvoiceFields{ExternalID: "trk_" + id, ExpiresAt: expiresAt})
	require.NoError(t, err)
}

func TestSweeper_Sweep_ExpiresOverdueOrders(t *testing.T) {
	// Arrange
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	repo := memory.NewRepository()
	seed(t, repo, "old", now.Add(-time.Hour))
	seed(t, repo, "in_grace", now.Add(-time.Minute))
	seed(t, repo, "fresh", now.Add(time.Hour))

	locker := &fakeLocker{}
	s := New(zap.NewNop(), repo, service.NewReconciler(zap.NewNop(), repo, nil), locker,
		Config{Interval: time.Minute, Grace: 5 * time.Minute})
	s.now = func() time.Time { return now }

	// Act
	n, err := s.Sweep(ctx)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 1, locker.released)

	got, err := repo.GetOrder(ctx, "old")
	require.NoError(t, err)
	assert.Equal(t, payment.StatusExpired, got.Status)

	for _, id := range []string{"in_grace", "fresh"} {
		got, err := repo.GetOrder(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, payment.StatusUnpaid, got.Status, id)
	}

	// повторный прогон ничего не находит
	n, err = s.Sweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSweeper_Sweep_LockHeld(t *testing.T) {
	applier := mocks.NewEventApplier(t)
	repo := memory.NewRepository()
	seed(t, repo, "old", time.Now().Add(-time.Hour))

	s := New(zap.NewNop(), repo, applier, &fakeLocker{held: true}, Config{})

	n, err := s.Sweep(context.Background())

	require.NoError(t, err)
	assert.Zero(t, n)
	applier.AssertNotCalled(t, "Apply", mock.Anything, mock.Anything)
}

func TestSweeper_Sweep_LockError(t *testing.T) {
	applier := mocks.NewEventApplier(t)
	s := New(zap.NewNop(), memory.NewRepository(), applier, &fakeLocker{err: errors.New("redis down")}, Config{})

	_, err := s.Sweep(context.Background())

	require.Error(t, err)
}

func TestSweeper_Sweep_ContinuesAfterApplyError(t *testing.T) {
	repo := memory.NewRepository()
	seed(t, repo, "a", time.Now().Add(-2*time.Hour))
	seed(t, repo, "b", time.Now().Add(-time.Hour))

	applier := mocks.NewEventApplier(t)
	applier.On("Apply", mock.Anything, mock.MatchedBy(func(e payment.Event) bool { return e.OrderKey == "a" })).
		Return(service.ApplyResult{Outcome: repository.OutcomeError}, errors.New("store down")).Once()
	applier.On("Apply", mock.Anything, mock.MatchedBy(func(e payment.Event) bool {
		return e.OrderKey == "b" &&
			e.KeyKind == payment.KeyOrderID &&
			e.NewStatus == payment.StatusExpired &&
			e.Provider == payment.ProviderSweeper
	})).Return(service.ApplyResult{Outcome: repository.OutcomeApplied}, nil).Once()

	s := New(zap.NewNop(), repo, applier, nil, Config{})

	n, err := s.Sweep(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
