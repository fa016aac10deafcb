package artifacts

import (
	"context"
	"fmt"
	"sync"
)

// MemoryStore keeps artifacts in process memory. Development and test use
// only; anything durable should use GCSStore.
type MemoryStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	baseURL string
	seq     int
}

func NewMemoryStore(baseURL string) *MemoryStore {
	if baseURL == "" {
		baseURL = "memory://artifacts"
	}
	return &MemoryStore{objects: make(map[string][]byte), baseURL: baseURL}
}

var _ Store = (*MemoryStore)(nil)

func (s *MemoryStore) Save(_ context.Context, data []byte, _ string, suggestedName string) (*Stored, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	key := fmt.Sprintf("%d-%s", s.seq, suggestedName)
	cp := make([]byte, len(data))
	copy(cp, data)
	s.objects[key] = cp
	return &Stored{
		PublicURL:  s.baseURL + "/" + key,
		StorageKey: key,
	}, nil
}

// Get returns a stored object's bytes, for tests.
func (s *MemoryStore) Get(key string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.objects[key]
	return data, ok
}
