package storage

import (
	"context"
)

// Fixed key names used by durable backends.
const (
	KeyAccessToken  = "access_token"
	KeyRefreshToken = "refresh_token"
)

// CredentialStorage defines interface for storing session credentials on client.
// This is the lowest storage layer - it persists raw strings and knows nothing
// about renewal or policies.
type CredentialStorage interface {
	// SaveCredentials stores both credentials, replacing previous ones.
	// An empty RefreshToken removes the stored refresh token.
	SaveCredentials(ctx context.Context, creds Credentials) error

	// GetCredentials retrieves stored credentials.
	// Returns ErrCredentialsNotFound if no access token is stored.
	GetCredentials(ctx context.Context) (Credentials, error)

	// DeleteCredentials removes stored credentials (logout).
	// Deleting already absent credentials is not an error.
	DeleteCredentials(ctx context.Context) error
}

// Credentials is the pair of opaque bearer strings the client holds.
// The client never inspects their contents.
type Credentials struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
}

// IsZero reports whether no credential is held.
func (c Credentials) IsZero() bool {
	return c.AccessToken == "" && c.RefreshToken == ""
}
