package auth

import (
	"context"
	"log/slog"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	"github.com/iudanet/pidash/internal/client/api"
)

const renewKey = "renew"

// Renewer exchanges the refresh credential for a new access token.
// Concurrent callers share one in-flight exchange; a new exchange starts
// only after the previous one settled.
type Renewer struct {
	client   AuthClient
	store    *Store
	logger   *slog.Logger
	group    singleflight.Group
	renewals atomic.Int64
}

var _ api.Renewer = (*Renewer)(nil)

// NewRenewer creates a renewer writing results to store
func NewRenewer(client AuthClient, store *Store, logger *slog.Logger) *Renewer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Renewer{
		client: client,
		store:  store,
		logger: logger,
	}
}

// Renew returns a fresh access token, or "" when none could be obtained.
// A non-nil error means the new credentials could not be written locally.
//
// Rejection by the server clears the store after a best-effort server
// logout; a network failure leaves it untouched so the next attempt can
// try again.
func (r *Renewer) Renew(ctx context.Context) (string, error) {
	// общий вызов не должен зависеть от отмены контекста первого вызывающего
	shared := context.WithoutCancel(ctx)

	v, err, joined := r.group.Do(renewKey, func() (any, error) {
		return r.renew(shared)
	})
	if joined {
		r.logger.DebugContext(ctx, "joined in-flight token renewal")
	}
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// Renewals returns the number of refresh exchanges sent to the server
func (r *Renewer) Renewals() int64 {
	return r.renewals.Load()
}

func (r *Renewer) renew(ctx context.Context) (string, error) {
	refresh := r.store.RefreshToken()
	if r.store.Policy().RequiresRefreshToken() && refresh == "" {
		r.logger.DebugContext(ctx, "no refresh token, skipping renewal")
		return "", nil
	}

	r.renewals.Add(1)
	resp, err := r.client.Refresh(ctx, refresh)
	if err != nil {
		if api.IsStatusError(err) {
			r.logger.WarnContext(ctx, "refresh token rejected, clearing credentials", "error", err)
			// сервер отзывает токен и сбрасывает cookie; ответ не важен
			if logoutErr := r.client.Logout(ctx, r.store.AccessToken(), refresh); logoutErr != nil {
				r.logger.WarnContext(ctx, "server logout after rejected renewal failed", "error", logoutErr)
			}
			if clearErr := r.store.Clear(ctx); clearErr != nil {
				r.logger.ErrorContext(ctx, "failed to clear credentials", "error", clearErr)
				return "", clearErr
			}
			return "", nil
		}

		r.logger.WarnContext(ctx, "token renewal failed, keeping credentials", "error", err)
		return "", nil
	}

	// сервер может не ротировать refresh token
	newRefresh := resp.RefreshToken
	if newRefresh == "" {
		newRefresh = refresh
	}

	if err := r.store.Set(ctx, resp.AccessToken, newRefresh); err != nil {
		r.logger.ErrorContext(ctx, "failed to store renewed credentials", "error", err)
		return "", err
	}

	r.logger.DebugContext(ctx, "access token renewed")
	return resp.AccessToken, nil
}
