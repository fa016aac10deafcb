package pricing

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// FindExact looks up the (actionType, modelID) row.
func (r *Repository) FindExact(ctx context.Context, actionType, modelID string) (int, bool, error) {
	var cost int
	err := r.pool.QueryRow(ctx, `
		SELECT cost FROM cost_configs WHERE action_type = $1 AND model_id = $2
	`, actionType, modelID).Scan(&cost)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return cost, true, nil
}

// FindWildcard looks up the default row for the action type (NULL model_id).
func (r *Repository) FindWildcard(ctx context.Context, actionType string) (int, bool, error) {
	var cost int
	err := r.pool.QueryRow(ctx, `
		SELECT cost FROM cost_configs WHERE action_type = $1 AND model_id IS NULL
	`, actionType).Scan(&cost)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return cost, true, nil
}

// SeedDefault provisions a config row, ignoring the conflict when another
// caller won the race. The unique index is on (action_type, COALESCE(model_id, '')).
func (r *Repository) SeedDefault(ctx context.Context, actionType, modelID string, cost int) error {
	var model any
	if modelID != "" {
		model = modelID
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO cost_configs (action_type, model_id, cost)
		VALUES ($1, $2, $3)
		ON CONFLICT (action_type, COALESCE(model_id, '')) DO NOTHING
	`, actionType, model, cost)
	return err
}
