// Package artifacts persists generated output and hands back a public
// reference. The worker treats a nil result or an error identically: the
// task fails and the debit is refunded.
package artifacts

import "context"

// Stored is the reference to a persisted artifact.
type Stored struct {
	PublicURL  string `json:"public_url"`
	StorageKey string `json:"storage_key"`
}

// Store persists artifact bytes under a suggested name.
type Store interface {
	Save(ctx context.Context, data []byte, mimeType, suggestedName string) (*Stored, error)
}
