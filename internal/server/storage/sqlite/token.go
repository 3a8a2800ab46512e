package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/iudanet/pidash/internal/models"
	"github.com/iudanet/pidash/internal/server/storage"
)

var _ storage.TokenStorage = (*Storage)(nil)

// SaveRefreshToken stores a new refresh token
func (s *Storage) SaveRefreshToken(ctx context.Context, token *models.RefreshToken) error {
	if err := insertToken(ctx, s.db, token); err != nil {
		return fmt.Errorf("failed to save refresh token: %w", err)
	}
	return nil
}

// GetRefreshToken retrieves refresh token by token value
func (s *Storage) GetRefreshToken(ctx context.Context, token string) (*models.RefreshToken, error) {
	query := `
		SELECT id, token, username, expires_at, created_at
		FROM refresh_tokens
		WHERE token = ?
	`

	var (
		refreshToken         models.RefreshToken
		expiresAt, createdAt int64
	)

	err := s.db.QueryRowContext(ctx, query, token).Scan(
		&refreshToken.ID,
		&refreshToken.Token,
		&refreshToken.Username,
		&expiresAt,
		&createdAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrTokenNotFound
		}
		return nil, fmt.Errorf("failed to get refresh token: %w", err)
	}

	refreshToken.ExpiresAt = time.UnixMilli(expiresAt)
	refreshToken.CreatedAt = time.UnixMilli(createdAt)

	return &refreshToken, nil
}

// RotateRefreshToken deletes old and inserts next in one transaction.
// A refresh token can be rotated only once.
func (s *Storage) RotateRefreshToken(ctx context.Context, old string, next *models.RefreshToken) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	result, err := tx.ExecContext(ctx, `DELETE FROM refresh_tokens WHERE token = ?`, old)
	if err != nil {
		return fmt.Errorf("failed to delete refresh token: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return storage.ErrTokenNotFound
	}

	if err := insertToken(ctx, tx, next); err != nil {
		return fmt.Errorf("failed to save refresh token: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit rotation: %w", err)
	}
	return nil
}

// DeleteRefreshToken deletes refresh token by token value
func (s *Storage) DeleteRefreshToken(ctx context.Context, token string) error {
	query := `DELETE FROM refresh_tokens WHERE token = ?`

	result, err := s.db.ExecContext(ctx, query, token)
	if err != nil {
		return fmt.Errorf("failed to delete refresh token: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rows == 0 {
		return storage.ErrTokenNotFound
	}

	return nil
}

// DeleteUserTokens deletes all refresh tokens for a user
func (s *Storage) DeleteUserTokens(ctx context.Context, username string) (int, error) {
	query := `DELETE FROM refresh_tokens WHERE username = ?`

	result, err := s.db.ExecContext(ctx, query, username)
	if err != nil {
		return 0, fmt.Errorf("failed to delete user tokens: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return int(rows), nil
}

// DeleteExpiredTokens removes all tokens expired at now
func (s *Storage) DeleteExpiredTokens(ctx context.Context, now time.Time) (int, error) {
	query := `DELETE FROM refresh_tokens WHERE expires_at <= ?`

	result, err := s.db.ExecContext(ctx, query, now.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired tokens: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return int(rows), nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertToken(ctx context.Context, db execer, token *models.RefreshToken) error {
	query := `
		INSERT OR REPLACE INTO refresh_tokens (id, token, username, expires_at, created_at)
		VALUES (?, ?, ?, ?, ?)
	`

	_, err := db.ExecContext(ctx, query,
		token.ID,
		token.Token,
		token.Username,
		token.ExpiresAt.UnixMilli(),
		token.CreatedAt.UnixMilli(),
	)
	return err
}
