package identity

import (
	"context"
	"errors"
)

// ErrInvalidToken is returned for tokens that fail signature, expiry or claim checks.
var ErrInvalidToken = errors.New("invalid identity token")

// Identity is the verified subject of a token.
type Identity struct {
	UserID string
	Email  string
	Name   string
}

// Verifier validates identity-provider tokens.
type Verifier interface {
	Verify(ctx context.Context, token string) (Identity, error)
}
