package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/oddsmesh/crossarb/internal/domain"
)

// ExecutionStore implements domain.ExecutionStore using PostgreSQL. The
// table is append-only: every attempt is a row, legs stored as JSONB.
type ExecutionStore struct {
	pool *pgxpool.Pool
}

var _ domain.ExecutionStore = (*ExecutionStore)(nil)

// NewExecutionStore creates a new ExecutionStore.
func NewExecutionStore(pool *pgxpool.Pool) *ExecutionStore {
	return &ExecutionStore{pool: pool}
}

// Insert appends an execution record.
func (s *ExecutionStore) Insert(ctx context.Context, rec domain.ExecutionRecord) error {
	legA, err := json.Marshal(rec.LegA)
	if err != nil {
		return fmt.Errorf("postgres: marshal leg A: %w", err)
	}
	legB, err := json.Marshal(rec.LegB)
	if err != nil {
		return fmt.Errorf("postgres: marshal leg B: %w", err)
	}
	var rollback []byte
	if rec.Rollback != nil {
		rollback, err = json.Marshal(rec.Rollback)
		if err != nil {
			return fmt.Errorf("postgres: marshal rollback leg: %w", err)
		}
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO executions (id, opportunity_id, mapping_id, state, outcome, leg_a, leg_b, rollback_leg, realized_pnl, started_at, finished_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		rec.ID, rec.OpportunityID, rec.MappingID, string(rec.State), string(rec.Outcome),
		legA, legB, rollback, rec.RealizedPnl, rec.StartedAt, rec.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert execution %s: %w", rec.ID, err)
	}
	return nil
}

// ListSince returns executions started at or after the given time, oldest
// first.
func (s *ExecutionStore) ListSince(ctx context.Context, since time.Time) ([]domain.ExecutionRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, opportunity_id, mapping_id, state, outcome, leg_a, leg_b, rollback_leg, realized_pnl, started_at, finished_at
		FROM executions WHERE started_at >= $1 ORDER BY started_at ASC`,
		since,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: list executions: %w", err)
	}
	defer rows.Close()

	var out []domain.ExecutionRecord
	for rows.Next() {
		var rec domain.ExecutionRecord
		var state, outcome string
		var legA, legB, rollback []byte
		if err := rows.Scan(&rec.ID, &rec.OpportunityID, &rec.MappingID, &state, &outcome,
			&legA, &legB, &rollback, &rec.RealizedPnl, &rec.StartedAt, &rec.FinishedAt,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan execution: %w", err)
		}
		rec.State = domain.ExecState(state)
		rec.Outcome = domain.ExecOutcome(outcome)
		if err := json.Unmarshal(legA, &rec.LegA); err != nil {
			return nil, fmt.Errorf("postgres: unmarshal leg A for %s: %w", rec.ID, err)
		}
		if err := json.Unmarshal(legB, &rec.LegB); err != nil {
			return nil, fmt.Errorf("postgres: unmarshal leg B for %s: %w", rec.ID, err)
		}
		if len(rollback) > 0 {
			var leg domain.LegResult
			if err := json.Unmarshal(rollback, &leg); err != nil {
				return nil, fmt.Errorf("postgres: unmarshal rollback leg for %s: %w", rec.ID, err)
			}
			rec.Rollback = &leg
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list executions: %w", err)
	}
	return out, nil
}
