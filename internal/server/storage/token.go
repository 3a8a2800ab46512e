package storage

import (
	"context"
	"time"

	"github.com/iudanet/pidash/internal/models"
)

// TokenStorage defines interface for refresh token persistence
type TokenStorage interface {
	// SaveRefreshToken stores a new refresh token
	// If token with same token value exists, it will be replaced
	SaveRefreshToken(ctx context.Context, token *models.RefreshToken) error

	// GetRefreshToken retrieves refresh token by token value
	// Returns ErrTokenNotFound if token doesn't exist
	GetRefreshToken(ctx context.Context, token string) (*models.RefreshToken, error)

	// RotateRefreshToken atomically replaces old with next.
	// Returns ErrTokenNotFound if old was already used or revoked.
	RotateRefreshToken(ctx context.Context, old string, next *models.RefreshToken) error

	// DeleteRefreshToken deletes refresh token by token value
	// Returns ErrTokenNotFound if token doesn't exist
	DeleteRefreshToken(ctx context.Context, token string) error

	// DeleteUserTokens deletes all refresh tokens for a user
	// Returns number of deleted tokens
	DeleteUserTokens(ctx context.Context, username string) (int, error)

	// DeleteExpiredTokens removes all tokens expired before now
	// Returns number of deleted tokens
	DeleteExpiredTokens(ctx context.Context, now time.Time) (int, error)
}

// SampleStorage persists metric samples for the history endpoint
type SampleStorage interface {
	// SaveSample appends a sample
	SaveSample(ctx context.Context, sample *models.Sample) error

	// ListSamples returns samples not older than since, oldest first
	ListSamples(ctx context.Context, since time.Time) ([]*models.Sample, error)

	// DeleteSamplesBefore removes samples older than cutoff
	DeleteSamplesBefore(ctx context.Context, cutoff time.Time) (int, error)
}
