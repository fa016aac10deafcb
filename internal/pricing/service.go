package pricing

import (
	"context"
	"errors"
	"fmt"

	"github.com/lumenart/backend/internal/models"
)

// ErrNotConfigured means no cost row exists and the action type has no
// documented default. Distinct from a configured cost of zero: zero means
// "this is free", ErrNotConfigured means "this is misconfigured".
var ErrNotConfigured = errors.New("cost not configured")

// defaultCosts are the documented auto-provisioning defaults. The first
// lookup of an unconfigured (action, model) pair for these action types
// seeds an exact-match row with this cost.
var defaultCosts = map[string]int{
	models.ActionGenerateImage:  10,
	models.ActionGenerateAvatar: 5,
}

// Store is the minimal config-row interface the resolver needs.
type Store interface {
	FindExact(ctx context.Context, actionType, modelID string) (int, bool, error)
	FindWildcard(ctx context.Context, actionType string) (int, bool, error)
	SeedDefault(ctx context.Context, actionType, modelID string, cost int) error
}

// Service resolves an action's credit cost.
type Service struct {
	store Store
}

func NewService(store Store) *Service {
	return &Service{store: store}
}

// Resolve returns the cost for (actionType, modelID). Lookup order: exact
// match, then the action type's wildcard row, then auto-provisioning for
// known action types. Concurrent first-time lookups of the same pair race on
// the insert; both resolve to the same seeded value either way.
func (s *Service) Resolve(ctx context.Context, actionType, modelID string) (int, error) {
	if modelID != "" {
		cost, ok, err := s.store.FindExact(ctx, actionType, modelID)
		if err != nil {
			return 0, fmt.Errorf("exact cost lookup: %w", err)
		}
		if ok {
			return cost, nil
		}
	}

	cost, ok, err := s.store.FindWildcard(ctx, actionType)
	if err != nil {
		return 0, fmt.Errorf("wildcard cost lookup: %w", err)
	}
	if ok {
		return cost, nil
	}

	def, known := defaultCosts[actionType]
	if !known {
		return 0, ErrNotConfigured
	}
	if err := s.store.SeedDefault(ctx, actionType, modelID, def); err != nil {
		return 0, fmt.Errorf("seed default cost: %w", err)
	}
	// Re-read after the seed: whoever won the insert race, the row exists now.
	if modelID != "" {
		cost, ok, err = s.store.FindExact(ctx, actionType, modelID)
	} else {
		cost, ok, err = s.store.FindWildcard(ctx, actionType)
	}
	if err != nil {
		return 0, fmt.Errorf("cost lookup after seed: %w", err)
	}
	if !ok {
		return 0, fmt.Errorf("cost row missing after seed for %s/%s", actionType, modelID)
	}
	return cost, nil
}
