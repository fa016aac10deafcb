package pricing

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/lumenart/backend/internal/models"
)

// ---------------------------------------------------------------------------
// In-memory mock Store with the same conflict semantics as the unique index.
// ---------------------------------------------------------------------------

type configKey struct {
	action string
	model  string // "" is the wildcard row
}

type mockStore struct {
	mu    sync.Mutex
	rows  map[configKey]int
	seeds int // SeedDefault call count, including no-op conflicts
}

func newMockStore() *mockStore {
	return &mockStore{rows: make(map[configKey]int)}
}

func (m *mockStore) FindExact(_ context.Context, actionType, modelID string) (int, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cost, ok := m.rows[configKey{actionType, modelID}]
	return cost, ok, nil
}

func (m *mockStore) FindWildcard(_ context.Context, actionType string) (int, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cost, ok := m.rows[configKey{actionType, ""}]
	return cost, ok, nil
}

func (m *mockStore) SeedDefault(_ context.Context, actionType, modelID string, cost int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seeds++
	key := configKey{actionType, modelID}
	if _, exists := m.rows[key]; exists {
		return nil // first writer wins
	}
	m.rows[key] = cost
	return nil
}

func (m *mockStore) rowCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rows)
}

// ---------------------------------------------------------------------------
// Lookup order
// ---------------------------------------------------------------------------

func TestResolve_ExactBeforeWildcard(t *testing.T) {
	store := newMockStore()
	store.rows[configKey{models.ActionGenerateImage, "model-x"}] = 12
	store.rows[configKey{models.ActionGenerateImage, ""}] = 8
	svc := NewService(store)

	cost, err := svc.Resolve(context.Background(), models.ActionGenerateImage, "model-x")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if cost != 12 {
		t.Errorf("exact match should win: got %d, want 12", cost)
	}
}

func TestResolve_WildcardFallback(t *testing.T) {
	store := newMockStore()
	store.rows[configKey{models.ActionGenerateImage, ""}] = 8
	svc := NewService(store)

	cost, err := svc.Resolve(context.Background(), models.ActionGenerateImage, "model-y")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if cost != 8 {
		t.Errorf("wildcard fallback: got %d, want 8", cost)
	}
}

func TestResolve_ZeroCostIsConfigured(t *testing.T) {
	store := newMockStore()
	store.rows[configKey{models.ActionGenerateAvatar, ""}] = 0
	svc := NewService(store)

	cost, err := svc.Resolve(context.Background(), models.ActionGenerateAvatar, "")
	if err != nil {
		t.Fatalf("a configured cost of zero is not ErrNotConfigured: %v", err)
	}
	if cost != 0 {
		t.Errorf("cost: got %d, want 0", cost)
	}
}

// ---------------------------------------------------------------------------
// Auto-provisioning
// ---------------------------------------------------------------------------

func TestResolve_ProvisionsDefault(t *testing.T) {
	store := newMockStore()
	svc := NewService(store)

	cost, err := svc.Resolve(context.Background(), models.ActionGenerateImage, "model-x")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if cost != defaultCosts[models.ActionGenerateImage] {
		t.Errorf("provisioned cost: got %d, want %d", cost, defaultCosts[models.ActionGenerateImage])
	}
	if store.rowCount() != 1 {
		t.Errorf("rows after provisioning: got %d, want 1", store.rowCount())
	}

	// Second lookup hits the seeded row, no new seed.
	seeds := store.seeds
	again, err := svc.Resolve(context.Background(), models.ActionGenerateImage, "model-x")
	if err != nil {
		t.Fatalf("second Resolve: %v", err)
	}
	if again != cost {
		t.Errorf("second lookup: got %d, want %d", again, cost)
	}
	if store.seeds != seeds {
		t.Error("second lookup should not seed again")
	}
}

func TestResolve_ConcurrentProvisioning(t *testing.T) {
	store := newMockStore()
	svc := NewService(store)

	const callers = 16
	results := make([]int, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			cost, err := svc.Resolve(context.Background(), models.ActionGenerateImage, "model-x")
			if err != nil {
				t.Errorf("Resolve: %v", err)
				return
			}
			results[i] = cost
		}(i)
	}
	wg.Wait()

	want := defaultCosts[models.ActionGenerateImage]
	for i, got := range results {
		if got != want {
			t.Errorf("caller %d: got %d, want %d", i, got, want)
		}
	}
	if store.rowCount() != 1 {
		t.Errorf("rows after concurrent provisioning: got %d, want 1", store.rowCount())
	}
}

func TestResolve_UnknownActionNotConfigured(t *testing.T) {
	svc := NewService(newMockStore())

	_, err := svc.Resolve(context.Background(), "remix_video", "")
	if !errors.Is(err, ErrNotConfigured) {
		t.Errorf("expected ErrNotConfigured, got: %v", err)
	}
}
