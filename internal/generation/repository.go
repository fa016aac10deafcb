package generation

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lumenart/backend/internal/models"
)

const taskColumns = `id, owner_id, action_type, model_id, prompt, status, cost_charged,
	artifact_url, storage_key, failure_reason, created_at, updated_at`

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) Begin(ctx context.Context) (pgx.Tx, error) {
	return r.pool.Begin(ctx)
}

func scanTask(row pgx.Row) (*models.GenerationTask, error) {
	var t models.GenerationTask
	err := row.Scan(&t.ID, &t.OwnerID, &t.ActionType, &t.ModelID, &t.Prompt, &t.Status, &t.CostCharged,
		&t.ArtifactURL, &t.StorageKey, &t.FailureReason, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// CreateTx inserts the task row inside the submission transaction.
func (r *Repository) CreateTx(ctx context.Context, tx pgx.Tx, t *models.GenerationTask) error {
	return tx.QueryRow(ctx, `
		INSERT INTO generation_tasks (id, owner_id, action_type, model_id, prompt, status, cost_charged)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at
	`, t.ID, t.OwnerID, t.ActionType, t.ModelID, t.Prompt, t.Status, t.CostCharged).Scan(&t.CreatedAt, &t.UpdatedAt)
}

func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.GenerationTask, error) {
	return scanTask(r.pool.QueryRow(ctx,
		`SELECT `+taskColumns+` FROM generation_tasks WHERE id = $1`, id))
}

func (r *Repository) ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]*models.GenerationTask, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+taskColumns+` FROM generation_tasks
		WHERE owner_id = $1 ORDER BY created_at DESC
	`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.GenerationTask
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, t)
	}
	return list, rows.Err()
}

// ClaimProcessing transitions queued|processing -> processing and returns
// the claimed task. The processing->processing no-op keeps redelivered
// leases workable after a worker crash. Returns pgx.ErrNoRows when the task
// is already terminal (or missing).
func (r *Repository) ClaimProcessing(ctx context.Context, id uuid.UUID) (*models.GenerationTask, error) {
	return scanTask(r.pool.QueryRow(ctx, `
		UPDATE generation_tasks SET status = $2, updated_at = now()
		WHERE id = $1 AND status IN ($3, $2)
		RETURNING `+taskColumns, id, models.TaskStatusProcessing, models.TaskStatusQueued))
}

// MarkCompleted records the artifact reference and finalizes the task.
func (r *Repository) MarkCompleted(ctx context.Context, id uuid.UUID, artifactURL, storageKey string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE generation_tasks
		SET status = $2, artifact_url = $3, storage_key = $4, updated_at = now()
		WHERE id = $1 AND status = $5
	`, id, models.TaskStatusCompleted, artifactURL, storageKey, models.TaskStatusProcessing)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errors.New("task not in processing state")
	}
	return nil
}

// MarkFailedTx flips the task to failed inside the caller's transaction.
// The conditional WHERE makes the transition single-winner: flipped is false
// when another attempt already finalized the task, which is what keeps the
// compensating refund exactly-once.
func (r *Repository) MarkFailedTx(ctx context.Context, tx pgx.Tx, id uuid.UUID, reason string) (task *models.GenerationTask, flipped bool, err error) {
	task, err = scanTask(tx.QueryRow(ctx, `
		UPDATE generation_tasks SET status = $2, failure_reason = $3, updated_at = now()
		WHERE id = $1 AND status IN ($4, $5)
		RETURNING `+taskColumns,
		id, models.TaskStatusFailed, reason, models.TaskStatusQueued, models.TaskStatusProcessing))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return task, true, nil
}

// CreatePost is the best-effort feed side write on completion. Failures are
// logged by the caller and never affect the task state machine.
func (r *Repository) CreatePost(ctx context.Context, authorID, taskID uuid.UUID, imageURL string) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO posts (id, author_id, task_id, image_url)
		VALUES ($1, $2, $3, $4)
	`, uuid.New(), authorID, taskID, imageURL)
	return err
}
