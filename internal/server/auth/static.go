package auth

import (
	"context"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// StaticAuthenticator verifies tokens against a fixed table of bcrypt
// hashes. Suited for small deployments and tests; the token table is
// immutable after construction.
type StaticAuthenticator struct {
	credentials []staticCredential
}

type staticCredential struct {
	metadata  map[string]string
	userID    string
	tokenHash []byte
}

// NewStatic creates an empty static authenticator
func NewStatic() *StaticAuthenticator {
	return &StaticAuthenticator{}
}

// AddToken registers a token for the identity, storing only its bcrypt hash
func (a *StaticAuthenticator) AddToken(userID, token string, metadata map[string]string) error {
	if userID == "" {
		return fmt.Errorf("user id cannot be empty")
	}
	if token == "" {
		return fmt.Errorf("token cannot be empty")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(token), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash token: %w", err)
	}

	a.credentials = append(a.credentials, staticCredential{
		userID:    userID,
		tokenHash: hash,
		metadata:  metadata,
	})
	return nil
}

// Authenticate checks the token against every registered hash
func (a *StaticAuthenticator) Authenticate(ctx context.Context, token string) (*Identity, error) {
	if token == "" {
		return nil, ErrInvalidToken
	}

	for _, cred := range a.credentials {
		if bcrypt.CompareHashAndPassword(cred.tokenHash, []byte(token)) == nil {
			return &Identity{UserID: cred.userID, Metadata: cred.metadata}, nil
		}
	}

	return nil, ErrInvalidToken
}
