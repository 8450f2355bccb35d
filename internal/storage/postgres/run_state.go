package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"tag_trends/internal/domain"
)

type RunStateStore struct {
	db *sqlx.DB
}

func NewRunStateStore(db *sqlx.DB) *RunStateStore {
	return &RunStateStore{db: db}
}

func (s *RunStateStore) Get(ctx context.Context, name string) (*domain.RunState, error) {
	var state domain.RunState
	query := `
		SELECT id, name, last_run_at, last_inserted, total_inserted
		FROM run_state
		WHERE name = $1`

	err := sqlx.GetContext(ctx, GetExecutor(ctx, s.db), &state, query, name)
	if errors.Is(err, sql.ErrNoRows) {
		// Return empty state for a first run
		return &domain.RunState{
			Name:      name,
			LastRunAt: time.Time{},
		}, nil
	}
	if err != nil {
		return nil, err
	}
	return &state, nil
}

func (s *RunStateStore) Update(ctx context.Context, state *domain.RunState) error {
	query := `
		INSERT INTO run_state (name, last_run_at, last_inserted, total_inserted)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (name) DO UPDATE SET
			last_run_at = EXCLUDED.last_run_at,
			last_inserted = EXCLUDED.last_inserted,
			total_inserted = EXCLUDED.total_inserted`

	_, err := GetExecutor(ctx, s.db).ExecContext(ctx, query,
		state.Name,
		state.LastRunAt,
		state.LastInserted,
		state.TotalInserted,
	)
	return err
}
