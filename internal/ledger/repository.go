package ledger

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lumenart/backend/internal/models"
)

var errInsufficientFunds = errors.New("insufficient funds")

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) Begin(ctx context.Context) (pgx.Tx, error) {
	return r.pool.Begin(ctx)
}

// Balance reads the cached running balance for an account.
func (r *Repository) Balance(ctx context.Context, accountID uuid.UUID) (int, error) {
	var balance int
	err := r.pool.QueryRow(ctx,
		`SELECT credit_balance FROM accounts WHERE id = $1`, accountID).Scan(&balance)
	return balance, err
}

// Deduct atomically subtracts amount from the account iff the balance covers
// it. The condition in the UPDATE is the only synchronization point between
// concurrent debits; zero rows affected means insufficient funds.
func (r *Repository) Deduct(ctx context.Context, tx pgx.Tx, accountID uuid.UUID, amount int) (int, error) {
	var newBalance int
	err := tx.QueryRow(ctx, `
		UPDATE accounts SET credit_balance = credit_balance - $1, updated_at = now()
		WHERE id = $2 AND credit_balance >= $1
		RETURNING credit_balance
	`, amount, accountID).Scan(&newBalance)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, errInsufficientFunds
	}
	return newBalance, err
}

// Add increments the account balance and returns the new value.
func (r *Repository) Add(ctx context.Context, tx pgx.Tx, accountID uuid.UUID, amount int) (int, error) {
	var newBalance int
	err := tx.QueryRow(ctx, `
		UPDATE accounts SET credit_balance = credit_balance + $1, updated_at = now()
		WHERE id = $2
		RETURNING credit_balance
	`, amount, accountID).Scan(&newBalance)
	return newBalance, err
}

// CreateEntry appends a ledger entry inside the given transaction.
func (r *Repository) CreateEntry(ctx context.Context, tx pgx.Tx, e *models.LedgerEntry) error {
	return tx.QueryRow(ctx, `
		INSERT INTO credit_ledger (id, account_id, delta, reason, ref_id, balance_after)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at
	`, e.ID, e.AccountID, e.Delta, e.Reason, e.RefID, e.BalanceAfter).Scan(&e.CreatedAt)
}

// ListByAccount returns the account's entries, newest first.
func (r *Repository) ListByAccount(ctx context.Context, accountID uuid.UUID) ([]*models.LedgerEntry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, account_id, delta, reason, ref_id, balance_after, created_at
		FROM credit_ledger WHERE account_id = $1 ORDER BY created_at DESC
	`, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.LedgerEntry
	for rows.Next() {
		var e models.LedgerEntry
		if err := rows.Scan(&e.ID, &e.AccountID, &e.Delta, &e.Reason, &e.RefID, &e.BalanceAfter, &e.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, &e)
	}
	return list, rows.Err()
}
