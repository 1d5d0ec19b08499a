package feed

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oddsmesh/crossarb/internal/domain"
)

func TestPollerColdFetchStampsSnapshot(t *testing.T) {
	calls := 0
	fetch := func(context.Context) ([]domain.Market, error) {
		calls++
		return []domain.Market{{ExternalID: "m1", Title: "Drake vs Illinois"}}, nil
	}
	p := NewPoller(domain.VenueBetfair, fetch, DefaultPollerConfig(), nil, slog.New(slog.DiscardHandler))

	markets, err := p.Markets(context.Background())
	require.NoError(t, err)
	require.Len(t, markets, 1)
	assert.Equal(t, domain.VenueBetfair, markets[0].Venue)
	assert.False(t, markets[0].FetchedAt.IsZero())
	assert.Equal(t, 1, calls)

	// Warm reads serve the cached snapshot.
	_, err = p.Markets(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestPollerColdFetchFailurePropagates(t *testing.T) {
	fetch := func(context.Context) ([]domain.Market, error) {
		return nil, errors.New("api down")
	}
	p := NewPoller(domain.VenueBetfair, fetch, DefaultPollerConfig(), nil, slog.New(slog.DiscardHandler))

	_, err := p.Markets(context.Background())
	assert.Error(t, err)
}

func TestPollerStaleSnapshotIsExcludedNotServed(t *testing.T) {
	fetch := func(context.Context) ([]domain.Market, error) {
		return []domain.Market{{ExternalID: "m1"}}, nil
	}
	cfg := DefaultPollerConfig()
	cfg.MaxAge = time.Millisecond
	p := NewPoller(domain.VenueBetfair, fetch, cfg, nil, slog.New(slog.DiscardHandler))

	_, err := p.Markets(context.Background())
	require.NoError(t, err)

	time.Sleep(5 * time.Millisecond)
	_, err = p.Markets(context.Background())
	assert.ErrorIs(t, err, domain.ErrStaleFeed)
}

type recordingSink struct{ batches [][]domain.Market }

func (s *recordingSink) SetAll(_ context.Context, markets []domain.Market) error {
	s.batches = append(s.batches, markets)
	return nil
}

func TestPollerWritesThroughSink(t *testing.T) {
	fetch := func(context.Context) ([]domain.Market, error) {
		return []domain.Market{{ExternalID: "m1"}, {ExternalID: "m2"}}, nil
	}
	sink := &recordingSink{}
	p := NewPoller(domain.VenuePolymarket, fetch, DefaultPollerConfig(), sink, slog.New(slog.DiscardHandler))

	_, err := p.Markets(context.Background())
	require.NoError(t, err)
	require.Len(t, sink.batches, 1)
	assert.Len(t, sink.batches[0], 2)
}
