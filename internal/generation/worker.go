package generation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/riverqueue/river"

	"github.com/lumenart/backend/internal/artifacts"
	"github.com/lumenart/backend/internal/metrics"
	"github.com/lumenart/backend/internal/models"
	"github.com/lumenart/backend/internal/progress"
)

// GenerateArgs is the queue payload. The prompt stays on the task row; the
// job carries only the reference.
type GenerateArgs struct {
	TaskID uuid.UUID `json:"task_id"`
}

func (GenerateArgs) Kind() string { return "generate_image" }

// TaskService is the lifecycle contract the worker needs.
type TaskService interface {
	StartTask(ctx context.Context, taskID uuid.UUID) (*models.GenerationTask, error)
	CompleteTask(ctx context.Context, taskID uuid.UUID, stored *artifacts.Stored) error
	FailTask(ctx context.Context, taskID uuid.UUID, reason string) (bool, error)
}

// GenerateWorker executes one leased generation task: synthesize, persist,
// acknowledge. Any failure between synthesis and persistence refunds the
// owner exactly once and finalizes the task as failed.
type GenerateWorker struct {
	river.WorkerDefaults[GenerateArgs]
	tasks  TaskService
	synth  Synthesizer
	store  artifacts.Store
	relay  progress.Relay
	logger *slog.Logger
}

func NewGenerateWorker(tasks TaskService, synth Synthesizer, store artifacts.Store, relay progress.Relay, logger *slog.Logger) *GenerateWorker {
	if logger == nil {
		logger = slog.Default()
	}
	return &GenerateWorker{tasks: tasks, synth: synth, store: store, relay: relay, logger: logger}
}

// Timeout bounds one attempt; an expired lease makes the job eligible for
// redelivery per the queue's retry policy.
func (w *GenerateWorker) Timeout(*river.Job[GenerateArgs]) time.Duration {
	return 5 * time.Minute
}

func (w *GenerateWorker) Work(ctx context.Context, job *river.Job[GenerateArgs]) error {
	taskID := job.Args.TaskID

	task, err := w.tasks.StartTask(ctx, taskID)
	if err != nil {
		// Claim failures are infrastructure trouble: let the queue retry.
		return fmt.Errorf("start task %s: %w", taskID, err)
	}
	if task.Terminal() {
		// Redelivered after finalization; nothing left to do.
		return nil
	}

	w.publish(ctx, taskID, progress.KindProgress, map[string]any{"status": models.TaskStatusProcessing})

	started := time.Now()
	out, err := w.synth.Synthesize(ctx, task)
	if err != nil {
		return w.fail(ctx, taskID, fmt.Sprintf("synthesis failed: %v", err))
	}
	if out == nil || len(out.Bytes) == 0 {
		return w.fail(ctx, taskID, "synthesis produced no artifact")
	}

	stored, err := w.store.Save(ctx, out.Bytes, out.MimeType, artifactName(task, out.MimeType))
	if err != nil {
		return w.fail(ctx, taskID, fmt.Sprintf("artifact persistence failed: %v", err))
	}
	if stored == nil {
		return w.fail(ctx, taskID, "artifact store returned no reference")
	}

	if err := w.tasks.CompleteTask(ctx, taskID, stored); err != nil {
		return w.fail(ctx, taskID, fmt.Sprintf("finalize failed: %v", err))
	}

	metrics.TasksCompleted.Inc()
	metrics.GenerationDuration.Observe(time.Since(started).Seconds())
	w.publish(ctx, taskID, progress.KindComplete, map[string]any{
		"artifact_url": stored.PublicURL,
		"storage_key":  stored.StorageKey,
	})
	return nil
}

// fail finalizes the task, refunds the debit and cancels the job so the
// queue never re-runs an already-refunded task.
func (w *GenerateWorker) fail(ctx context.Context, taskID uuid.UUID, reason string) error {
	refunded, err := w.tasks.FailTask(ctx, taskID, reason)
	if err != nil {
		// The flip and the refund share a transaction, so retrying after
		// this error cannot double-refund.
		return fmt.Errorf("fail task %s: %w", taskID, err)
	}
	metrics.TasksFailed.Inc()
	if refunded {
		metrics.RefundsIssued.Inc()
	}
	w.logger.Error("generation task failed", "task_id", taskID, "reason", reason, "refunded", refunded)
	w.publish(ctx, taskID, progress.KindError, map[string]any{"error": reason})
	return river.JobCancel(errors.New(reason))
}

// publish is best-effort: a relay hiccup never aborts the task.
func (w *GenerateWorker) publish(ctx context.Context, taskID uuid.UUID, kind string, data map[string]any) {
	payload, err := json.Marshal(data)
	if err != nil {
		w.logger.Warn("encode progress event", "task_id", taskID, "kind", kind, "error", err)
		return
	}
	if err := w.relay.Publish(ctx, taskID, progress.Event{Kind: kind, Data: payload}); err != nil {
		w.logger.Warn("publish progress event", "task_id", taskID, "kind", kind, "error", err)
	}
}

func artifactName(task *models.GenerationTask, mimeType string) string {
	ext := "bin"
	switch mimeType {
	case "image/png":
		ext = "png"
	case "image/jpeg":
		ext = "jpg"
	case "image/webp":
		ext = "webp"
	}
	return fmt.Sprintf("%s.%s", task.ID, ext)
}
