package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/lumenart/backend/internal/models"
)

// ErrInsufficientFunds is the underlying sentinel for a rejected debit.
// Callers normally inspect DebitResult.OK instead; the sentinel exists for
// code that talks to the repository directly.
var ErrInsufficientFunds = errInsufficientFunds

// AccountStore is the minimal balance interface the service needs.
type AccountStore interface {
	Balance(ctx context.Context, accountID uuid.UUID) (int, error)
	Deduct(ctx context.Context, tx pgx.Tx, accountID uuid.UUID, amount int) (int, error)
	Add(ctx context.Context, tx pgx.Tx, accountID uuid.UUID, amount int) (int, error)
}

// EntryStore appends immutable ledger entries.
type EntryStore interface {
	CreateEntry(ctx context.Context, tx pgx.Tx, e *models.LedgerEntry) error
	ListByAccount(ctx context.Context, accountID uuid.UUID) ([]*models.LedgerEntry, error)
}

// TxBeginner abstracts transaction creation so tests don't need a pool.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// DebitResult reports the outcome of a check-and-debit. A rejected debit is
// a normal business outcome, not an error: OK is false and CurrentBalance /
// RequiredCost carry enough detail to render an insufficient-balance response.
type DebitResult struct {
	OK             bool
	NewBalance     int
	CurrentBalance int
	RequiredCost   int
}

// Service mutates account balances exclusively through atomic
// debit/credit pairs, each paired with an append-only ledger entry in the
// same transaction.
type Service struct {
	accounts AccountStore
	entries  EntryStore
	beginner TxBeginner
}

func NewService(accounts AccountStore, entries EntryStore, beginner TxBeginner) *Service {
	return &Service{accounts: accounts, entries: entries, beginner: beginner}
}

// DebitTx checks the balance and debits cost inside the caller's
// transaction. Zero-cost actions short-circuit: no entry is written and the
// unchanged balance is reported. The balance update and the entry append
// share the transaction, so neither is ever observable without the other.
func (s *Service) DebitTx(ctx context.Context, tx pgx.Tx, accountID uuid.UUID, cost int, refID *uuid.UUID) (*DebitResult, error) {
	if cost == 0 {
		balance, err := s.accounts.Balance(ctx, accountID)
		if err != nil {
			return nil, fmt.Errorf("read balance: %w", err)
		}
		return &DebitResult{OK: true, NewBalance: balance}, nil
	}

	newBalance, err := s.accounts.Deduct(ctx, tx, accountID, cost)
	if err != nil {
		if errors.Is(err, errInsufficientFunds) {
			current, berr := s.accounts.Balance(ctx, accountID)
			if berr != nil {
				return nil, fmt.Errorf("read balance after rejection: %w", berr)
			}
			return &DebitResult{OK: false, CurrentBalance: current, RequiredCost: cost}, nil
		}
		return nil, fmt.Errorf("deduct: %w", err)
	}

	entry := &models.LedgerEntry{
		ID:           uuid.New(),
		AccountID:    accountID,
		Delta:        -cost,
		Reason:       models.ReasonGenerationCharge,
		RefID:        refID,
		BalanceAfter: newBalance,
	}
	if err := s.entries.CreateEntry(ctx, tx, entry); err != nil {
		return nil, fmt.Errorf("append debit entry: %w", err)
	}
	return &DebitResult{OK: true, NewBalance: newBalance}, nil
}

// CreditTx grants amount to the account inside the caller's transaction and
// appends the matching positive-delta entry. The caller is responsible for
// invoking it at most once per economic event (the worker pool guarantees
// this for failure refunds via its conditional status transition).
func (s *Service) CreditTx(ctx context.Context, tx pgx.Tx, accountID uuid.UUID, amount int, reason string, refID *uuid.UUID) (int, error) {
	if amount == 0 {
		return s.accounts.Balance(ctx, accountID)
	}
	newBalance, err := s.accounts.Add(ctx, tx, accountID, amount)
	if err != nil {
		return 0, fmt.Errorf("add credits: %w", err)
	}
	entry := &models.LedgerEntry{
		ID:           uuid.New(),
		AccountID:    accountID,
		Delta:        amount,
		Reason:       reason,
		RefID:        refID,
		BalanceAfter: newBalance,
	}
	if err := s.entries.CreateEntry(ctx, tx, entry); err != nil {
		return 0, fmt.Errorf("append credit entry: %w", err)
	}
	return newBalance, nil
}

// Credit runs CreditTx in its own transaction.
func (s *Service) Credit(ctx context.Context, accountID uuid.UUID, amount int, reason string, refID *uuid.UUID) (int, error) {
	tx, err := s.beginner.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin credit tx: %w", err)
	}
	defer tx.Rollback(ctx)
	newBalance, err := s.CreditTx(ctx, tx, accountID, amount, reason, refID)
	if err != nil {
		return 0, err
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit credit tx: %w", err)
	}
	return newBalance, nil
}

// Balance returns the account's current balance.
func (s *Service) Balance(ctx context.Context, accountID uuid.UUID) (int, error) {
	return s.accounts.Balance(ctx, accountID)
}

// Entries returns the account's ledger history, newest first.
func (s *Service) Entries(ctx context.Context, accountID uuid.UUID) ([]*models.LedgerEntry, error) {
	return s.entries.ListByAccount(ctx, accountID)
}
