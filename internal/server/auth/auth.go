package auth

import (
	"context"
	"errors"
)

// Common authentication errors
var (
	// ErrInvalidToken indicates that the presented token was rejected;
	// terminal for the connection attempt
	ErrInvalidToken = errors.New("invalid token")
)

// Identity is the verified result of authenticating a connection token
type Identity struct {
	Metadata map[string]string `json:"metadata,omitempty"` // Metadata произвольные атрибуты (устройство, версия клиента)
	UserID   string            `json:"user_id"`            // UserID проверенная идентичность
}

// Authenticator verifies an opaque connection token.
// Injected into the server; rejection is treated as connection refusal.
type Authenticator interface {
	// Authenticate verifies the token and returns the identity.
	// Returns ErrInvalidToken (possibly wrapped) on rejection.
	Authenticate(ctx context.Context, token string) (*Identity, error)
}

// Func adapts a plain function to the Authenticator interface
type Func func(ctx context.Context, token string) (*Identity, error)

// Authenticate implements Authenticator
func (f Func) Authenticate(ctx context.Context, token string) (*Identity, error) {
	return f(ctx, token)
}
