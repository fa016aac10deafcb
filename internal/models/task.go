package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Generation task statuses. Terminal states are final: a task is never
// re-queued, a new submission creates a new task.
const (
	TaskStatusQueued     = "queued"
	TaskStatusProcessing = "processing"
	TaskStatusCompleted  = "completed"
	TaskStatusFailed     = "failed"
)

// GenerationTask is one unit of paid asynchronous work. CostCharged records
// the exact amount debited at submission time so a refund never depends on
// the cost configuration in force at failure time.
type GenerationTask struct {
	ID            uuid.UUID       `json:"id"`
	OwnerID       uuid.UUID       `json:"owner_id"`
	ActionType    string          `json:"action_type"`
	ModelID       string          `json:"model_id,omitempty"`
	Prompt        json.RawMessage `json:"prompt"`
	Status        string          `json:"status"`
	CostCharged   int             `json:"cost_charged"`
	ArtifactURL   *string         `json:"artifact_url,omitempty"`
	StorageKey    *string         `json:"storage_key,omitempty"`
	FailureReason *string         `json:"failure_reason,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// Terminal reports whether the task has reached a final state.
func (t *GenerationTask) Terminal() bool {
	return t.Status == TaskStatusCompleted || t.Status == TaskStatusFailed
}
