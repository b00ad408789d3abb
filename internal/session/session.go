package session

import (
	"context"
	"time"

	"techsupport.dev/assistant/internal/core"
	"techsupport.dev/assistant/internal/store"
)

// DefaultIdentityTTL matches the lifetime of an issued token.
const DefaultIdentityTTL = 24 * time.Hour

// Identity is the signed-in user behind a token id.
type Identity struct {
	UserID int64      `json:"user_id"`
	Email  string     `json:"email"`
	Name   string     `json:"name"`
	Role   store.Role `json:"role"`
}

func (i *Identity) IsAdmin() bool {
	return i != nil && i.Role == store.RoleAdmin
}

// Store keeps chat state and signed-in identities. Lookups of unknown keys
// return (nil, nil).
type Store interface {
	core.StateStore

	SetIdentity(ctx context.Context, tokenID string, id Identity, ttl time.Duration) error
	GetIdentity(ctx context.Context, tokenID string) (*Identity, error)
	ClearIdentity(ctx context.Context, tokenID string) error
}
