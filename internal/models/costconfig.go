package models

import "time"

// Priced action types.
const (
	ActionGenerateImage  = "generate_image"
	ActionGenerateAvatar = "generate_avatar"
)

// CostConfig maps an action type (plus optional model) to a credit cost.
// A nil ModelID is the wildcard/default row for the action type.
type CostConfig struct {
	ActionType string    `json:"action_type"`
	ModelID    *string   `json:"model_id,omitempty"`
	Cost       int       `json:"cost"`
	CreatedAt  time.Time `json:"created_at"`
}
