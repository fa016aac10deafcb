package ledger

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/lumenart/backend/internal/middleware"
	"github.com/lumenart/backend/internal/models"
)

// Handler serves the credit balance and history endpoints.
type Handler struct {
	Service *Service
	Logger  *slog.Logger
}

func NewHandler(svc *Service, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{Service: svc, Logger: logger}
}

type creditsResponse struct {
	Balance int                   `json:"balance"`
	Entries []*models.LedgerEntry `json:"entries"`
}

// GetCredits handles GET /v1/credits: current balance plus ledger history.
func (h *Handler) GetCredits(w http.ResponseWriter, r *http.Request) {
	acc := middleware.AccountFromCtx(r.Context())
	if acc == nil {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}

	balance, err := h.Service.Balance(r.Context(), acc.ID)
	if err != nil {
		h.Logger.Error("read balance", "account_id", acc.ID, "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	entries, err := h.Service.Entries(r.Context(), acc.ID)
	if err != nil {
		h.Logger.Error("list ledger entries", "account_id", acc.ID, "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	if entries == nil {
		entries = []*models.LedgerEntry{}
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(creditsResponse{Balance: balance, Entries: entries})
}
