package feed

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/oddsmesh/crossarb/internal/domain"
)

// FetchFunc retrieves the current market list from a venue's REST API.
type FetchFunc func(ctx context.Context) ([]domain.Market, error)

// PollerConfig tunes a REST polling feed.
type PollerConfig struct {
	Interval time.Duration
	MaxAge   time.Duration
	// RPS caps outbound requests to the venue API, including on-demand
	// fetches triggered by a cold Markets call.
	RPS   float64
	Burst int
}

// DefaultPollerConfig returns conservative polling defaults.
func DefaultPollerConfig() PollerConfig {
	return PollerConfig{
		Interval: 30 * time.Second,
		MaxAge:   2 * time.Minute,
		RPS:      2,
		Burst:    1,
	}
}

// Poller implements domain.MarketFeed by periodically fetching a venue's
// REST API through a rate limiter. Fetch failures keep the previous
// snapshot; staleness is enforced at read time so a dead API surfaces as
// ErrStaleFeed, never as silently frozen prices.
type Poller struct {
	venue   domain.Venue
	fetch   FetchFunc
	cfg     PollerConfig
	limiter *rate.Limiter
	sink    Sink
	logger  *slog.Logger

	mu        sync.RWMutex
	snapshot  []domain.Market
	fetchedAt time.Time
}

var _ domain.MarketFeed = (*Poller)(nil)

// NewPoller creates a polling feed for one venue; sink may be nil.
func NewPoller(venue domain.Venue, fetch FetchFunc, cfg PollerConfig, sink Sink, logger *slog.Logger) *Poller {
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = 2 * time.Minute
	}
	if cfg.RPS <= 0 {
		cfg.RPS = 2
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	return &Poller{
		venue:   venue,
		fetch:   fetch,
		cfg:     cfg,
		limiter: rate.NewLimiter(rate.Limit(cfg.RPS), cfg.Burst),
		sink:    sink,
		logger:  logger.With(slog.String("component", "poller"), slog.String("venue", string(venue))),
	}
}

// Venue returns the venue this feed serves.
func (p *Poller) Venue() domain.Venue { return p.venue }

// Markets returns the latest snapshot, fetching synchronously when the
// table is cold. A snapshot older than MaxAge is ErrStaleFeed.
func (p *Poller) Markets(ctx context.Context) ([]domain.Market, error) {
	p.mu.RLock()
	snapshot, fetchedAt := p.snapshot, p.fetchedAt
	p.mu.RUnlock()

	if fetchedAt.IsZero() {
		if err := p.refresh(ctx); err != nil {
			return nil, err
		}
		p.mu.RLock()
		snapshot, fetchedAt = p.snapshot, p.fetchedAt
		p.mu.RUnlock()
	}

	if time.Since(fetchedAt) > p.cfg.MaxAge {
		return nil, fmt.Errorf("feed: %s poller: %w", p.venue, domain.ErrStaleFeed)
	}
	return append([]domain.Market(nil), snapshot...), nil
}

// Run polls on the configured interval until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	if err := p.refresh(ctx); err != nil {
		p.logger.Warn("initial fetch failed", slog.Any("error", err))
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := p.refresh(ctx); err != nil {
				p.logger.Warn("poll failed, keeping previous snapshot", slog.Any("error", err))
			}
		}
	}
}

func (p *Poller) refresh(ctx context.Context) error {
	if err := p.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("feed: %s rate limit wait: %w", p.venue, err)
	}
	markets, err := p.fetch(ctx)
	if err != nil {
		return fmt.Errorf("feed: %s fetch: %w", p.venue, err)
	}

	now := time.Now().UTC()
	for i := range markets {
		markets[i].Venue = p.venue
		markets[i].FetchedAt = now
	}

	p.mu.Lock()
	p.snapshot = markets
	p.fetchedAt = now
	p.mu.Unlock()

	if p.sink != nil {
		if err := p.sink.SetAll(ctx, markets); err != nil {
			p.logger.Warn("snapshot sink write failed", slog.Any("error", err))
		}
	}
	p.logger.Debug("snapshot refreshed", slog.Int("markets", len(markets)))
	return nil
}
