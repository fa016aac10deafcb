package generation

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/lumenart/backend/internal/metrics"
	"github.com/lumenart/backend/internal/middleware"
	"github.com/lumenart/backend/internal/models"
	"github.com/lumenart/backend/internal/pricing"
	"github.com/lumenart/backend/internal/progress"
	"github.com/lumenart/backend/internal/queue"
)

// Handler serves the generation submission, read and streaming endpoints.
type Handler struct {
	Service           *Service
	Relay             progress.Relay
	HeartbeatInterval time.Duration
	Logger            *slog.Logger

	validate *validator.Validate
}

func NewHandler(svc *Service, relay progress.Relay, heartbeat time.Duration, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if heartbeat <= 0 {
		heartbeat = 20 * time.Second
	}
	return &Handler{
		Service:           svc,
		Relay:             relay,
		HeartbeatInterval: heartbeat,
		Logger:            logger,
		validate:          validator.New(),
	}
}

type submitRequest struct {
	ActionType string          `json:"action_type" validate:"required,oneof=generate_image generate_avatar"`
	ModelID    string          `json:"model_id" validate:"omitempty,max=128"`
	Prompt     json.RawMessage `json:"prompt" validate:"required"`
}

type submitResponse struct {
	TaskID      uuid.UUID `json:"task_id"`
	Status      string    `json:"status"`
	CostCharged int       `json:"cost_charged"`
	Balance     int       `json:"balance"`
}

type rejectionResponse struct {
	Error          string `json:"error"`
	CurrentBalance int    `json:"current_balance"`
	RequiredCost   int    `json:"required_cost"`
}

type taskResponse struct {
	TaskID        uuid.UUID       `json:"task_id"`
	ActionType    string          `json:"action_type"`
	ModelID       string          `json:"model_id,omitempty"`
	Status        string          `json:"status"`
	CostCharged   int             `json:"cost_charged"`
	ArtifactURL   *string         `json:"artifact_url,omitempty"`
	FailureReason *string         `json:"failure_reason,omitempty"`
	Prompt        json.RawMessage `json:"prompt"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

func toTaskResponse(t *models.GenerationTask) taskResponse {
	return taskResponse{
		TaskID:        t.ID,
		ActionType:    t.ActionType,
		ModelID:       t.ModelID,
		Status:        t.Status,
		CostCharged:   t.CostCharged,
		ArtifactURL:   t.ArtifactURL,
		FailureReason: t.FailureReason,
		Prompt:        t.Prompt,
		CreatedAt:     t.CreatedAt,
		UpdatedAt:     t.UpdatedAt,
	}
}

// Submit handles POST /v1/generations. Accepted submissions return 202 with
// the queued task; insufficient balance returns 402 with the shortfall.
func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	acc := middleware.AccountFromCtx(r.Context())
	if acc == nil {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}

	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid JSON body"}`, http.StatusBadRequest)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		http.Error(w, fmt.Sprintf(`{"error":"validation failed: %v"}`, err), http.StatusBadRequest)
		return
	}

	task, res, err := h.Service.Submit(r.Context(), acc.ID, SubmitInput{
		ActionType: req.ActionType,
		ModelID:    req.ModelID,
		Prompt:     req.Prompt,
	})
	if err != nil {
		switch {
		case errors.Is(err, pricing.ErrNotConfigured):
			http.Error(w, `{"error":"no cost configured for this action"}`, http.StatusUnprocessableEntity)
		case errors.Is(err, queue.ErrUnavailable):
			h.Logger.Error("queue unavailable", "account_id", acc.ID, "error", err)
			http.Error(w, `{"error":"generation queue unavailable, credits were not charged"}`, http.StatusServiceUnavailable)
		default:
			h.Logger.Error("submit generation", "account_id", acc.ID, "error", err)
			http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		}
		return
	}
	if task == nil {
		metrics.InsufficientFunds.Inc()
		writeJSON(w, http.StatusPaymentRequired, rejectionResponse{
			Error:          "insufficient credits",
			CurrentBalance: res.CurrentBalance,
			RequiredCost:   res.RequiredCost,
		})
		return
	}

	metrics.Debits.Inc()
	writeJSON(w, http.StatusAccepted, submitResponse{
		TaskID:      task.ID,
		Status:      task.Status,
		CostCharged: task.CostCharged,
		Balance:     res.NewBalance,
	})
}

// List handles GET /v1/generations.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	acc := middleware.AccountFromCtx(r.Context())
	if acc == nil {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}

	tasks, err := h.Service.ListByOwner(r.Context(), acc.ID)
	if err != nil {
		h.Logger.Error("list generations", "account_id", acc.ID, "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	out := make([]taskResponse, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, toTaskResponse(t))
	}
	writeJSON(w, http.StatusOK, map[string]any{"generations": out})
}

// Get handles GET /v1/generations/{id}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	acc := middleware.AccountFromCtx(r.Context())
	if acc == nil {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}

	task, ok := h.loadOwnedTask(w, r, acc.ID)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, toTaskResponse(task))
}

// StreamEvents handles GET /v1/generations/{id}/events as server-sent
// events. Subscription happens before the terminal check so an event landing
// between the two is not lost; a task already finished streams its final
// state immediately and closes.
func (h *Handler) StreamEvents(w http.ResponseWriter, r *http.Request) {
	acc := middleware.AccountFromCtx(r.Context())
	if acc == nil {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, `{"error":"streaming unsupported"}`, http.StatusInternalServerError)
		return
	}

	task, ok := h.loadOwnedTask(w, r, acc.ID)
	if !ok {
		return
	}

	sub, err := h.Relay.Subscribe(task.ID)
	if err != nil {
		h.Logger.Error("subscribe progress", "task_id", task.ID, "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	defer sub.Close()

	metrics.ActiveStreams.Inc()
	defer metrics.ActiveStreams.Dec()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	// Re-read after subscribing: a finalization racing the subscribe is
	// caught here instead of leaving the client hanging.
	if current, err := h.Service.Get(r.Context(), task.ID); err == nil && current.Terminal() {
		writeSSE(w, flusher, terminalEvent(current))
		return
	}

	ticker := time.NewTicker(h.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			writeSSE(w, flusher, progress.Event{Kind: progress.KindPing})
		case ev, open := <-sub.Events():
			if !open {
				return
			}
			writeSSE(w, flusher, ev)
			if ev.Terminal() {
				return
			}
		}
	}
}

func (h *Handler) loadOwnedTask(w http.ResponseWriter, r *http.Request, ownerID uuid.UUID) (*models.GenerationTask, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, `{"error":"invalid task id"}`, http.StatusBadRequest)
		return nil, false
	}
	task, err := h.Service.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			http.Error(w, `{"error":"task not found"}`, http.StatusNotFound)
			return nil, false
		}
		h.Logger.Error("load task", "task_id", id, "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return nil, false
	}
	if task.OwnerID != ownerID {
		// Existence of other owners' tasks is not disclosed.
		http.Error(w, `{"error":"task not found"}`, http.StatusNotFound)
		return nil, false
	}
	return task, true
}

func terminalEvent(task *models.GenerationTask) progress.Event {
	if task.Status == models.TaskStatusCompleted {
		data, _ := json.Marshal(map[string]any{
			"artifact_url": task.ArtifactURL,
			"storage_key":  task.StorageKey,
		})
		return progress.Event{Kind: progress.KindComplete, Data: data}
	}
	reason := "generation failed"
	if task.FailureReason != nil {
		reason = *task.FailureReason
	}
	data, _ := json.Marshal(map[string]any{"error": reason})
	return progress.Event{Kind: progress.KindError, Data: data}
}

func writeSSE(w http.ResponseWriter, flusher http.Flusher, ev progress.Event) {
	data := ev.Data
	if len(data) == 0 {
		data = json.RawMessage(`{}`)
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Kind, data)
	flusher.Flush()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
