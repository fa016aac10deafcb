package ledger

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/lumenart/backend/internal/models"
)

// ---------------------------------------------------------------------------
// In-memory mocks for AccountStore, EntryStore and TxBeginner.
// These let us test the real Service logic without a database.
// ---------------------------------------------------------------------------

type mockAccounts struct {
	mu       sync.Mutex
	balances map[uuid.UUID]int
}

func newMockAccounts() *mockAccounts {
	return &mockAccounts{balances: make(map[uuid.UUID]int)}
}

func (m *mockAccounts) Balance(_ context.Context, id uuid.UUID) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.balances[id]
	if !ok {
		return 0, fmt.Errorf("account %s not found", id)
	}
	return b, nil
}

func (m *mockAccounts) Deduct(_ context.Context, _ pgx.Tx, id uuid.UUID, amount int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.balances[id]
	if !ok {
		return 0, fmt.Errorf("account %s not found", id)
	}
	if b < amount {
		return 0, errInsufficientFunds
	}
	m.balances[id] = b - amount
	return m.balances[id], nil
}

func (m *mockAccounts) Add(_ context.Context, _ pgx.Tx, id uuid.UUID, amount int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.balances[id] += amount
	return m.balances[id], nil
}

// ---

type mockEntries struct {
	mu      sync.Mutex
	entries []*models.LedgerEntry
}

func (m *mockEntries) CreateEntry(_ context.Context, _ pgx.Tx, e *models.LedgerEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *e
	m.entries = append(m.entries, &cp)
	return nil
}

func (m *mockEntries) ListByAccount(_ context.Context, id uuid.UUID) ([]*models.LedgerEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.LedgerEntry
	for _, e := range m.entries {
		if e.AccountID == id {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *mockEntries) deltaSum(id uuid.UUID) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	sum := 0
	for _, e := range m.entries {
		if e.AccountID == id {
			sum += e.Delta
		}
	}
	return sum
}

// --- noopTx satisfies pgx.Tx for test use; only Commit/Rollback are called. ---

type noopTx struct{}

func (noopTx) Begin(context.Context) (pgx.Tx, error) { return noopTx{}, nil }
func (noopTx) Commit(context.Context) error          { return nil }
func (noopTx) Rollback(context.Context) error        { return nil }
func (noopTx) Exec(context.Context, string, ...any) (pgconn.CommandTag, error) {
	return pgconn.NewCommandTag(""), nil
}
func (noopTx) Query(context.Context, string, ...any) (pgx.Rows, error) { return nil, nil }
func (noopTx) QueryRow(context.Context, string, ...any) pgx.Row        { return nil }
func (noopTx) CopyFrom(context.Context, pgx.Identifier, []string, pgx.CopyFromSource) (int64, error) {
	return 0, nil
}
func (noopTx) SendBatch(context.Context, *pgx.Batch) pgx.BatchResults { return nil }
func (noopTx) LargeObjects() pgx.LargeObjects                         { return pgx.LargeObjects{} }
func (noopTx) Prepare(context.Context, string, string) (*pgconn.StatementDescription, error) {
	return nil, nil
}
func (noopTx) Conn() *pgx.Conn { return nil }

type mockBeginner struct{}

func (mockBeginner) Begin(context.Context) (pgx.Tx, error) { return noopTx{}, nil }

// ---------------------------------------------------------------------------
// 1. Debit success and rejection scenarios
// ---------------------------------------------------------------------------

func TestDebitTx_Success(t *testing.T) {
	owner := uuid.New()
	task := uuid.New()

	accounts := newMockAccounts()
	accounts.balances[owner] = 10
	entries := &mockEntries{}
	svc := NewService(accounts, entries, mockBeginner{})

	res, err := svc.DebitTx(context.Background(), nil, owner, 10, &task)
	if err != nil {
		t.Fatalf("DebitTx: %v", err)
	}
	if !res.OK {
		t.Fatal("debit should succeed with exact balance")
	}
	if res.NewBalance != 0 {
		t.Errorf("new balance: got %d, want 0", res.NewBalance)
	}

	list, _ := entries.ListByAccount(context.Background(), owner)
	if len(list) != 1 {
		t.Fatalf("entries: got %d, want 1", len(list))
	}
	e := list[0]
	if e.Delta != -10 {
		t.Errorf("delta: got %d, want -10", e.Delta)
	}
	if e.Reason != models.ReasonGenerationCharge {
		t.Errorf("reason: got %q", e.Reason)
	}
	if e.RefID == nil || *e.RefID != task {
		t.Error("entry should reference the task")
	}
	if e.BalanceAfter != 0 {
		t.Errorf("balance_after: got %d, want 0", e.BalanceAfter)
	}
}

func TestDebitTx_InsufficientFunds(t *testing.T) {
	owner := uuid.New()

	accounts := newMockAccounts()
	accounts.balances[owner] = 5
	entries := &mockEntries{}
	svc := NewService(accounts, entries, mockBeginner{})

	res, err := svc.DebitTx(context.Background(), nil, owner, 10, nil)
	if err != nil {
		t.Fatalf("a rejected debit is not an error: %v", err)
	}
	if res.OK {
		t.Fatal("debit should be rejected")
	}
	if res.CurrentBalance != 5 || res.RequiredCost != 10 {
		t.Errorf("rejection detail: got {%d, %d}, want {5, 10}", res.CurrentBalance, res.RequiredCost)
	}

	// Balance unchanged, no entry written.
	if b, _ := accounts.Balance(context.Background(), owner); b != 5 {
		t.Errorf("balance after rejection: got %d, want 5", b)
	}
	if list, _ := entries.ListByAccount(context.Background(), owner); len(list) != 0 {
		t.Errorf("entries after rejection: got %d, want 0", len(list))
	}
}

func TestDebitTx_ZeroCostShortCircuits(t *testing.T) {
	owner := uuid.New()

	accounts := newMockAccounts()
	accounts.balances[owner] = 7
	entries := &mockEntries{}
	svc := NewService(accounts, entries, mockBeginner{})

	res, err := svc.DebitTx(context.Background(), nil, owner, 0, nil)
	if err != nil {
		t.Fatalf("DebitTx: %v", err)
	}
	if !res.OK || res.NewBalance != 7 {
		t.Errorf("zero-cost debit: got {ok:%v, balance:%d}, want {ok:true, balance:7}", res.OK, res.NewBalance)
	}
	if list, _ := entries.ListByAccount(context.Background(), owner); len(list) != 0 {
		t.Error("zero-cost debit must not write an entry")
	}
}

// ---------------------------------------------------------------------------
// 2. Refund path
// ---------------------------------------------------------------------------

func TestCredit_RestoresBalance(t *testing.T) {
	owner := uuid.New()
	task := uuid.New()

	accounts := newMockAccounts()
	accounts.balances[owner] = 10
	entries := &mockEntries{}
	svc := NewService(accounts, entries, mockBeginner{})

	ctx := context.Background()
	if res, err := svc.DebitTx(ctx, nil, owner, 10, &task); err != nil || !res.OK {
		t.Fatalf("setup debit: res=%+v err=%v", res, err)
	}

	newBalance, err := svc.Credit(ctx, owner, 10, models.ReasonGenerationRefund, &task)
	if err != nil {
		t.Fatalf("Credit: %v", err)
	}
	if newBalance != 10 {
		t.Errorf("balance after refund: got %d, want 10", newBalance)
	}

	list, _ := entries.ListByAccount(ctx, owner)
	if len(list) != 2 {
		t.Fatalf("entries: got %d, want 2", len(list))
	}
	refund := list[1]
	if refund.Delta != 10 || refund.Reason != models.ReasonGenerationRefund {
		t.Errorf("refund entry: got delta=%d reason=%q", refund.Delta, refund.Reason)
	}
	if refund.RefID == nil || *refund.RefID != task {
		t.Error("refund entry should reference the task")
	}
}

// ---------------------------------------------------------------------------
// 3. Conservation under concurrent debits
//    With balance 10 and twenty concurrent 1-credit debits, exactly ten
//    succeed and the final balance equals the sum of all entry deltas.
// ---------------------------------------------------------------------------

func TestConcurrentDebits_Conservation(t *testing.T) {
	owner := uuid.New()

	const initial = 10
	const attempts = 20

	accounts := newMockAccounts()
	accounts.balances[owner] = initial
	entries := &mockEntries{}
	svc := NewService(accounts, entries, mockBeginner{})

	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := svc.DebitTx(context.Background(), nil, owner, 1, nil)
			if err != nil {
				t.Errorf("DebitTx: %v", err)
				return
			}
			if res.OK {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if succeeded != initial {
		t.Errorf("successful debits: got %d, want %d", succeeded, initial)
	}
	final, _ := accounts.Balance(context.Background(), owner)
	if final != 0 {
		t.Errorf("final balance: got %d, want 0", final)
	}
	if got := initial + entries.deltaSum(owner); got != final {
		t.Errorf("conservation violated: initial + sum(delta) = %d, balance = %d", got, final)
	}
}
