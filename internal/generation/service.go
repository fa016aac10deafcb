package generation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/riverqueue/river"

	"github.com/lumenart/backend/internal/artifacts"
	"github.com/lumenart/backend/internal/ledger"
	"github.com/lumenart/backend/internal/models"
)

// TaskStore is the task repository surface the service needs.
type TaskStore interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	CreateTx(ctx context.Context, tx pgx.Tx, t *models.GenerationTask) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.GenerationTask, error)
	ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]*models.GenerationTask, error)
	ClaimProcessing(ctx context.Context, id uuid.UUID) (*models.GenerationTask, error)
	MarkCompleted(ctx context.Context, id uuid.UUID, artifactURL, storageKey string) error
	MarkFailedTx(ctx context.Context, tx pgx.Tx, id uuid.UUID, reason string) (*models.GenerationTask, bool, error)
	CreatePost(ctx context.Context, authorID, taskID uuid.UUID, imageURL string) error
}

// CreditLedger is the ledger surface the service needs.
type CreditLedger interface {
	DebitTx(ctx context.Context, tx pgx.Tx, accountID uuid.UUID, cost int, refID *uuid.UUID) (*ledger.DebitResult, error)
	CreditTx(ctx context.Context, tx pgx.Tx, accountID uuid.UUID, amount int, reason string, refID *uuid.UUID) (int, error)
}

// CostResolver maps (actionType, modelID) to a credit cost.
type CostResolver interface {
	Resolve(ctx context.Context, actionType, modelID string) (int, error)
}

// EnqueueTxFunc enqueues the generation job within the given transaction.
// Provided by main as a closure over queue.Client.EnqueueTx (the queue
// client exists only after the River client is built).
type EnqueueTxFunc func(ctx context.Context, tx pgx.Tx, args river.JobArgs) error

// SubmitInput is a validated submission from the HTTP boundary. The worker
// never re-validates the payload.
type SubmitInput struct {
	ActionType string
	ModelID    string
	Prompt     json.RawMessage
}

// Service owns the task lifecycle: the credit-gated submission transaction
// and the completion/failure transitions invoked by the worker pool.
type Service struct {
	tasks   TaskStore
	ledger  CreditLedger
	costs   CostResolver
	enqueue EnqueueTxFunc
	logger  *slog.Logger
}

func NewService(tasks TaskStore, creditLedger CreditLedger, costs CostResolver, enqueue EnqueueTxFunc, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{tasks: tasks, ledger: creditLedger, costs: costs, enqueue: enqueue, logger: logger}
}

// Submit resolves the cost, debits the owner and enqueues the task in one
// transaction. A non-nil rejection (with nil error) is the insufficient
// funds outcome; the transaction is rolled back and no task exists.
// Cost-resolution errors (including pricing.ErrNotConfigured) and queue
// errors (queue.ErrUnavailable) propagate unwrapped for the handler to map.
func (s *Service) Submit(ctx context.Context, ownerID uuid.UUID, in SubmitInput) (*models.GenerationTask, *ledger.DebitResult, error) {
	cost, err := s.costs.Resolve(ctx, in.ActionType, in.ModelID)
	if err != nil {
		return nil, nil, err
	}

	task := &models.GenerationTask{
		ID:          uuid.New(),
		OwnerID:     ownerID,
		ActionType:  in.ActionType,
		ModelID:     in.ModelID,
		Prompt:      in.Prompt,
		Status:      models.TaskStatusQueued,
		CostCharged: cost,
	}

	tx, err := s.tasks.Begin(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("begin submission tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := s.tasks.CreateTx(ctx, tx, task); err != nil {
		return nil, nil, fmt.Errorf("create task: %w", err)
	}

	res, err := s.ledger.DebitTx(ctx, tx, ownerID, cost, &task.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("debit: %w", err)
	}
	if !res.OK {
		return nil, res, nil
	}

	if err := s.enqueue(ctx, tx, GenerateArgs{TaskID: task.ID}); err != nil {
		return nil, nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, nil, fmt.Errorf("commit submission tx: %w", err)
	}
	return task, res, nil
}

// StartTask claims the task for processing. Already-terminal tasks are
// returned as-is so a redelivered job can acknowledge without re-running.
func (s *Service) StartTask(ctx context.Context, taskID uuid.UUID) (*models.GenerationTask, error) {
	task, err := s.tasks.ClaimProcessing(ctx, taskID)
	if err == nil {
		return task, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("claim task: %w", err)
	}
	task, err = s.tasks.GetByID(ctx, taskID)
	if err != nil {
		return nil, fmt.Errorf("load task: %w", err)
	}
	return task, nil
}

// CompleteTask finalizes a successful generation and performs the
// best-effort feed post. The post write never affects the task state.
func (s *Service) CompleteTask(ctx context.Context, taskID uuid.UUID, stored *artifacts.Stored) error {
	if err := s.tasks.MarkCompleted(ctx, taskID, stored.PublicURL, stored.StorageKey); err != nil {
		return fmt.Errorf("mark completed: %w", err)
	}
	task, err := s.tasks.GetByID(ctx, taskID)
	if err == nil {
		if err := s.tasks.CreatePost(ctx, task.OwnerID, taskID, stored.PublicURL); err != nil {
			s.logger.Warn("feed post write failed", "task_id", taskID, "error", err)
		}
	} else {
		s.logger.Warn("feed post skipped, task reload failed", "task_id", taskID, "error", err)
	}
	return nil
}

// FailTask flips the task to failed and posts the compensating refund in
// one transaction. The conditional transition makes the pair exactly-once:
// whoever loses the flip race does nothing, and a transaction failure after
// the flip rolls both back so a retry sees the task still processing.
func (s *Service) FailTask(ctx context.Context, taskID uuid.UUID, reason string) (refunded bool, err error) {
	tx, err := s.tasks.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("begin failure tx: %w", err)
	}
	defer tx.Rollback(ctx)

	task, flipped, err := s.tasks.MarkFailedTx(ctx, tx, taskID, reason)
	if err != nil {
		return false, fmt.Errorf("mark failed: %w", err)
	}
	if !flipped {
		return false, nil
	}
	if task.CostCharged > 0 {
		if _, err := s.ledger.CreditTx(ctx, tx, task.OwnerID, task.CostCharged, models.ReasonGenerationRefund, &taskID); err != nil {
			return false, fmt.Errorf("refund: %w", err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("commit failure tx: %w", err)
	}
	return task.CostCharged > 0, nil
}

// Get returns a single task.
func (s *Service) Get(ctx context.Context, taskID uuid.UUID) (*models.GenerationTask, error) {
	return s.tasks.GetByID(ctx, taskID)
}

// ListByOwner returns the owner's tasks, newest first.
func (s *Service) ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]*models.GenerationTask, error) {
	return s.tasks.ListByOwner(ctx, ownerID)
}
