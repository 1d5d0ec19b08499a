package breaker

import (
	"context"
	"log/slog"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oddsmesh/crossarb/internal/domain"
)

type memStore struct {
	state domain.BreakerState
	saved int
	has   bool
}

func (s *memStore) Load(context.Context) (domain.BreakerState, error) {
	if !s.has {
		return domain.BreakerState{}, domain.ErrNotFound
	}
	return s.state, nil
}

func (s *memStore) Save(_ context.Context, st domain.BreakerState) error {
	s.state = st
	s.has = true
	s.saved++
	return nil
}

func newTestBreaker(t *testing.T, cfg Config, store *memStore) *Breaker {
	t.Helper()
	b, err := New(context.Background(), cfg, store, slog.New(slog.DiscardHandler))
	require.NoError(t, err)
	return b
}

func TestFailClosedOnInvalidBalance(t *testing.T) {
	ctx := context.Background()
	for _, bad := range []float64{math.NaN(), math.Inf(1), math.Inf(-1), -50} {
		b := newTestBreaker(t, DefaultConfig(), &memStore{})
		require.True(t, b.CanTrade())
		b.UpdateBalance(ctx, bad)
		assert.False(t, b.CanTrade(), "balance %v must gate trading", bad)
	}
}

func TestValidBalanceAllowsTrading(t *testing.T) {
	b := newTestBreaker(t, DefaultConfig(), &memStore{})
	b.UpdateBalance(context.Background(), 1000)
	assert.True(t, b.CanTrade())
}

func TestDrawdownTrips(t *testing.T) {
	ctx := context.Background()
	b := newTestBreaker(t, DefaultConfig(), &memStore{})
	b.UpdateBalance(ctx, 960)
	assert.True(t, b.CanTrade(), "4% drawdown stays under the 5% limit")
	b.UpdateBalance(ctx, 940)
	assert.False(t, b.CanTrade(), "6% drawdown must trip")
	st := b.State()
	assert.True(t, st.Tripped)
	assert.Contains(t, st.TrippedReason, "drawdown")
}

func TestErrorRateTripsAfterWarmup(t *testing.T) {
	ctx := context.Background()
	b := newTestBreaker(t, DefaultConfig(), &memStore{})

	// Three early failures: under warm-up, no trip.
	for i := 0; i < 3; i++ {
		b.RecordAttempt(ctx, false)
	}
	assert.True(t, b.CanTrade())

	for i := 0; i < 7; i++ {
		b.RecordAttempt(ctx, true)
	}
	// 3/10 = 30% > 20% once warm-up is reached.
	assert.False(t, b.CanTrade())
	assert.Contains(t, b.State().TrippedReason, "error rate")
}

func TestMinimumBalanceTrips(t *testing.T) {
	b := newTestBreaker(t, DefaultConfig(), &memStore{})
	b.UpdateBalance(context.Background(), 9.99)
	assert.False(t, b.CanTrade())
}

func TestTrippedStateSurvivesRestart(t *testing.T) {
	ctx := context.Background()
	store := &memStore{}
	b := newTestBreaker(t, DefaultConfig(), store)
	b.Trip(ctx, "operator drill")
	require.False(t, b.CanTrade())

	reborn := newTestBreaker(t, DefaultConfig(), store)
	assert.False(t, reborn.CanTrade(), "a restart must inherit the trip")
	assert.Equal(t, "operator drill", reborn.State().TrippedReason)
}

func TestStaleStateResetsOnNewDay(t *testing.T) {
	store := &memStore{
		has: true,
		state: domain.BreakerState{
			Date:            "2020-01-01",
			DayStartBalance: 500,
			CurrentBalance:  480,
			TxAttempts:      40,
			TxFailures:      2,
		},
	}
	b := newTestBreaker(t, DefaultConfig(), store)
	st := b.State()
	assert.NotEqual(t, "2020-01-01", st.Date)
	assert.Zero(t, st.TxAttempts)
	assert.True(t, b.CanTrade())
}

func TestOperatorReset(t *testing.T) {
	ctx := context.Background()
	b := newTestBreaker(t, DefaultConfig(), &memStore{})
	b.UpdateBalance(ctx, 900)
	require.False(t, b.CanTrade())

	require.NoError(t, b.Reset(ctx))
	assert.True(t, b.CanTrade())
	st := b.State()
	assert.False(t, st.Tripped)
	assert.Equal(t, 900.0, st.DayStartBalance, "reset re-anchors the day at the current balance")
}

func TestEveryMutationPersists(t *testing.T) {
	ctx := context.Background()
	store := &memStore{}
	b := newTestBreaker(t, DefaultConfig(), store)
	before := store.saved
	b.UpdateBalance(ctx, 950)
	b.RecordAttempt(ctx, true)
	b.Trip(ctx, "x")
	assert.Equal(t, before+3, store.saved)
}
