package models

import (
	"time"

	"github.com/google/uuid"
)

// Ledger entry reasons. One economic event, one entry.
const (
	ReasonGenerationCharge = "generation_charge"
	ReasonGenerationRefund = "generation_failure_refund"
	ReasonCreditPurchase   = "credit_purchase"
	ReasonGrant            = "grant"
)

// LedgerEntry is an immutable record of a balance change. Delta is signed:
// negative for debits, positive for credits. RefID links the entry to the
// generation task (or purchase) that caused it.
type LedgerEntry struct {
	ID           uuid.UUID  `json:"id"`
	AccountID    uuid.UUID  `json:"account_id"`
	Delta        int        `json:"delta"`
	Reason       string     `json:"reason"`
	RefID        *uuid.UUID `json:"ref_id,omitempty"`
	BalanceAfter int        `json:"balance_after"`
	CreatedAt    time.Time  `json:"created_at"`
}
