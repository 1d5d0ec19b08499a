package scan

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/oddsmesh/crossarb/internal/domain"
	"github.com/oddsmesh/crossarb/internal/graph"
)

type SuggestionConfig struct {
	// PromoteAfter is how many consecutive cycles must reproduce the same
	// pairing before it becomes eligible for automatic promotion.
	PromoteAfter int
	// AutoPromote enables promotion without operator approval. Off by
	// default: graph suggestions are recall-oriented and lower precision,
	// so the default confirmation signal is a human.
	AutoPromote bool
	// MinScore is the floor a suggestion must hold to stay eligible.
	MinScore float64
}

func DefaultSuggestionConfig() SuggestionConfig {
	return SuggestionConfig{PromoteAfter: 3, AutoPromote: false, MinScore: 75}
}

// AliasLearner records entity aliases mined from confirmed title pairings.
// Matches resolve.EntitySet.
type AliasLearner interface {
	LearnFrom(sourceTitle, targetTitle string) bool
}

// SuggestionService runs the graph engine over each cycle's orphans and
// shepherds its suggestions toward promotion. Promotion is the only path by
// which graph output becomes a tradeable mapping.
type SuggestionService struct {
	cfg         SuggestionConfig
	sourceVenue domain.Venue
	engine      *graph.Engine
	store       domain.SuggestionStore
	mappings    domain.MappingStore
	aliases     AliasLearner
	logger      *slog.Logger
}

func NewSuggestionService(
	cfg SuggestionConfig,
	sourceVenue domain.Venue,
	engine *graph.Engine,
	store domain.SuggestionStore,
	mappings domain.MappingStore,
	aliases AliasLearner,
	logger *slog.Logger,
) *SuggestionService {
	if cfg.PromoteAfter <= 0 {
		cfg.PromoteAfter = 3
	}
	return &SuggestionService{
		cfg:         cfg,
		sourceVenue: sourceVenue,
		engine:      engine,
		store:       store,
		mappings:    mappings,
		aliases:     aliases,
		logger:      logger.With(slog.String("component", "suggestions")),
	}
}

// RunBatch clusters one cycle's unmatched snapshot. Repeated agreement on a
// pairing bumps its counter; with auto-promotion on, a pairing that agrees
// PromoteAfter times becomes a mapping.
func (s *SuggestionService) RunBatch(ctx context.Context, unmatched map[domain.Venue][]domain.Market) error {
	sources := unmatched[s.sourceVenue]
	if len(sources) == 0 {
		return nil
	}

	for venue, candidates := range unmatched {
		if venue == s.sourceVenue || len(candidates) == 0 {
			continue
		}
		for _, sugg := range s.engine.Resolve(sources, candidates) {
			if err := s.record(ctx, sugg); err != nil {
				s.logger.Warn("record suggestion", slog.Any("error", err))
			}
		}
	}
	return nil
}

func (s *SuggestionService) record(ctx context.Context, sugg domain.MappingSuggestion) error {
	existing, err := s.store.FindPairing(ctx, sugg.SourceVenue, sugg.SourceID, sugg.TargetVenue, sugg.TargetID)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return s.store.Upsert(ctx, sugg)
	case err != nil:
		return err
	}

	if existing.Status != domain.SuggestionPending {
		return nil
	}
	existing.Agreements++
	existing.LastSeen = time.Now().UTC()
	existing.Score = sugg.Score
	existing.ClusterConfidence = sugg.ClusterConfidence
	if err := s.store.Upsert(ctx, existing); err != nil {
		return err
	}

	if s.cfg.AutoPromote && existing.Agreements >= s.cfg.PromoteAfter && existing.Score >= s.cfg.MinScore {
		_, err := s.promote(ctx, existing)
		return err
	}
	return nil
}

// Approve is the operator confirmation path: it promotes a pending
// suggestion immediately, whatever its agreement count.
func (s *SuggestionService) Approve(ctx context.Context, id string) (domain.Mapping, error) {
	sugg, err := s.store.Get(ctx, id)
	if err != nil {
		return domain.Mapping{}, fmt.Errorf("suggestions: get %s: %w", id, err)
	}
	if sugg.Status != domain.SuggestionPending {
		return domain.Mapping{}, fmt.Errorf("suggestions: %s is %s, not pending: %w", id, sugg.Status, domain.ErrInvalidOrder)
	}
	return s.promote(ctx, sugg)
}

// Reject marks a pending suggestion as reviewed and unusable.
func (s *SuggestionService) Reject(ctx context.Context, id string) error {
	return s.store.SetStatus(ctx, id, domain.SuggestionRejected)
}

func (s *SuggestionService) promote(ctx context.Context, sugg domain.MappingSuggestion) (domain.Mapping, error) {
	now := time.Now().UTC()
	mapping := domain.Mapping{
		ID:           uuid.NewString(),
		SourceVenue:  sugg.SourceVenue,
		SourceID:     sugg.SourceID,
		TargetVenue:  sugg.TargetVenue,
		TargetID:     sugg.TargetID,
		SourceTitle:  sugg.SourceTitle,
		TargetTitle:  sugg.TargetTitle,
		Confidence:   sugg.ClusterConfidence / 100,
		Source:       domain.SourceGraph,
		CreatedAt:    now,
		LastVerified: now,
	}
	if err := s.mappings.Upsert(ctx, mapping); err != nil {
		return domain.Mapping{}, fmt.Errorf("suggestions: promote %s: %w", sugg.ID, err)
	}
	if err := s.store.SetStatus(ctx, sugg.ID, domain.SuggestionPromoted); err != nil {
		return domain.Mapping{}, fmt.Errorf("suggestions: mark promoted %s: %w", sugg.ID, err)
	}
	// A confirmed pairing is ground truth for the entity vocabulary: mine it
	// so the resolver can pair future rewordings without the graph detour.
	if s.aliases != nil && s.aliases.LearnFrom(sugg.SourceTitle, sugg.TargetTitle) {
		s.logger.Info("entity alias learned from promotion",
			slog.String("source_title", sugg.SourceTitle),
			slog.String("target_title", sugg.TargetTitle))
	}
	s.logger.Info("suggestion promoted to mapping",
		slog.String("suggestion", sugg.ID),
		slog.String("mapping", mapping.ID),
		slog.Float64("confidence", mapping.Confidence))
	return mapping, nil
}
