package app

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/oddsmesh/crossarb/internal/domain"
)

const heartbeatInterval = 30 * time.Second

// ScanMode runs the trading loop: feeds, scan cycles with execution, the
// breaker heartbeat, the audit archiver, and the operator API.
func (a *App) ScanMode(ctx context.Context, deps *Dependencies) error {
	g, ctx := errgroup.WithContext(ctx)
	a.startFeeds(ctx, g, deps)
	a.startServer(ctx, g, deps)
	a.startHeartbeat(ctx, g, deps)
	a.startArchiver(ctx, g, deps)
	g.Go(func() error { return a.scanLoop(ctx, deps) })
	return g.Wait()
}

// ResolveMode keeps mappings and suggestions current without putting any
// capital at risk: no opportunity validation, no execution.
func (a *App) ResolveMode(ctx context.Context, deps *Dependencies) error {
	g, ctx := errgroup.WithContext(ctx)
	a.startFeeds(ctx, g, deps)
	a.startServer(ctx, g, deps)
	g.Go(func() error { return a.resolveLoop(ctx, deps) })
	g.Go(func() error { return a.suggestionLoop(ctx, deps) })
	return g.Wait()
}

// MonitorMode serves the operator API over live feed data and keeps the
// breaker's balance view current, without resolving or trading.
func (a *App) MonitorMode(ctx context.Context, deps *Dependencies) error {
	g, ctx := errgroup.WithContext(ctx)
	a.startFeeds(ctx, g, deps)
	a.startServer(ctx, g, deps)
	a.startHeartbeat(ctx, g, deps)
	return g.Wait()
}

// FullMode runs everything: the scan loop plus the background suggestion
// pipeline on its slower cadence.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	g, ctx := errgroup.WithContext(ctx)
	a.startFeeds(ctx, g, deps)
	a.startServer(ctx, g, deps)
	a.startHeartbeat(ctx, g, deps)
	a.startArchiver(ctx, g, deps)
	g.Go(func() error { return a.scanLoop(ctx, deps) })
	g.Go(func() error { return a.suggestionLoop(ctx, deps) })
	return g.Wait()
}

func (a *App) startFeeds(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	for _, r := range deps.FeedRunners {
		r := r
		g.Go(func() error { return r.Run(ctx) })
	}
}

func (a *App) startServer(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	if deps.Server == nil {
		return
	}
	g.Go(func() error { return deps.Server.Start() })
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		return deps.Server.Shutdown(shutdownCtx)
	})
}

func (a *App) startHeartbeat(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	if deps.Oracle == nil {
		a.logger.Warn("no balance oracle configured, breaker heartbeat disabled")
		return
	}
	g.Go(func() error {
		ticker := time.NewTicker(heartbeatInterval)
		defer ticker.Stop()
		deps.Breaker.Heartbeat(ctx, deps.Oracle)
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
				deps.Breaker.Heartbeat(ctx, deps.Oracle)
			}
		}
	})
}

func (a *App) startArchiver(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	if deps.Archiver == nil {
		return
	}
	g.Go(func() error { return deps.Archiver.Run(ctx) })
}

// scanLoop drives full cycles on the configured interval. A halting error
// inside a cycle stops submissions for that cycle only; the loop keeps
// running so the operator API and notifications stay live while the breaker
// or a pair halt is in effect.
func (a *App) scanLoop(ctx context.Context, deps *Dependencies) error {
	interval := a.cfg.Scan.Interval.Duration
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := deps.Orchestrator.RunCycle(ctx); err != nil {
			switch {
			case errors.Is(err, context.Canceled):
				return ctx.Err()
			case errors.Is(err, domain.ErrBreakerTripped), errors.Is(err, domain.ErrManualIntervention):
				a.logger.Warn("cycle halted", slog.Any("error", err))
			default:
				a.logger.Error("scan cycle failed", slog.Any("error", err))
			}
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (a *App) resolveLoop(ctx context.Context, deps *Dependencies) error {
	ticker := time.NewTicker(a.cfg.Scan.Interval.Duration)
	defer ticker.Stop()

	for {
		if matched, err := deps.Orchestrator.ResolveCycle(ctx); err != nil {
			if errors.Is(err, context.Canceled) {
				return ctx.Err()
			}
			a.logger.Error("resolve cycle failed", slog.Any("error", err))
		} else {
			a.logger.Debug("resolve cycle complete", slog.Int("matched", matched))
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// suggestionLoop feeds the latest orphan snapshot to the graph engine on a
// slower cadence than the scan itself.
func (a *App) suggestionLoop(ctx context.Context, deps *Dependencies) error {
	ticker := time.NewTicker(a.cfg.Suggestions.Interval.Duration)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
		unmatched := deps.Orchestrator.Unmatched()
		if err := deps.SuggestionSvc.RunBatch(ctx, unmatched); err != nil {
			a.logger.Error("suggestion batch failed", slog.Any("error", err))
		}
	}
}
