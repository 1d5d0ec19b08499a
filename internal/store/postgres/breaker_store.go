package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/oddsmesh/crossarb/internal/domain"
)

// BreakerStore implements domain.BreakerStore using a single-row table so
// the breaker's ledger survives restarts.
type BreakerStore struct {
	pool *pgxpool.Pool
}

var _ domain.BreakerStore = (*BreakerStore)(nil)

// NewBreakerStore creates a new BreakerStore.
func NewBreakerStore(pool *pgxpool.Pool) *BreakerStore {
	return &BreakerStore{pool: pool}
}

// Load returns the persisted breaker state, or domain.ErrNotFound when the
// engine has never run against this database.
func (s *BreakerStore) Load(ctx context.Context) (domain.BreakerState, error) {
	var st domain.BreakerState
	var trippedAt, lastHeartbeat *time.Time
	err := s.pool.QueryRow(ctx, `
		SELECT date, day_start_balance, current_balance, tx_attempts, tx_failures, tripped, tripped_reason, tripped_at, last_heartbeat
		FROM breaker_state WHERE id = 1`,
	).Scan(&st.Date, &st.DayStartBalance, &st.CurrentBalance,
		&st.TxAttempts, &st.TxFailures, &st.Tripped, &st.TrippedReason,
		&trippedAt, &lastHeartbeat,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.BreakerState{}, domain.ErrNotFound
		}
		return domain.BreakerState{}, fmt.Errorf("postgres: load breaker state: %w", err)
	}
	if trippedAt != nil {
		st.TrippedAt = *trippedAt
	}
	if lastHeartbeat != nil {
		st.LastHeartbeat = *lastHeartbeat
	}
	return st, nil
}

// Save writes the breaker state, replacing any prior row.
func (s *BreakerStore) Save(ctx context.Context, st domain.BreakerState) error {
	var trippedAt, lastHeartbeat *time.Time
	if !st.TrippedAt.IsZero() {
		trippedAt = &st.TrippedAt
	}
	if !st.LastHeartbeat.IsZero() {
		lastHeartbeat = &st.LastHeartbeat
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO breaker_state (id, date, day_start_balance, current_balance, tx_attempts, tx_failures, tripped, tripped_reason, tripped_at, last_heartbeat, updated_at)
		VALUES (1, $1, $2, $3, $4, $5, $6, $7, $8, $9, NOW())
		ON CONFLICT (id) DO UPDATE SET
			date              = EXCLUDED.date,
			day_start_balance = EXCLUDED.day_start_balance,
			current_balance   = EXCLUDED.current_balance,
			tx_attempts       = EXCLUDED.tx_attempts,
			tx_failures       = EXCLUDED.tx_failures,
			tripped           = EXCLUDED.tripped,
			tripped_reason    = EXCLUDED.tripped_reason,
			tripped_at        = EXCLUDED.tripped_at,
			last_heartbeat    = EXCLUDED.last_heartbeat,
			updated_at        = NOW()`,
		st.Date, st.DayStartBalance, st.CurrentBalance,
		st.TxAttempts, st.TxFailures, st.Tripped, st.TrippedReason,
		trippedAt, lastHeartbeat,
	)
	if err != nil {
		return fmt.Errorf("postgres: save breaker state: %w", err)
	}
	return nil
}
