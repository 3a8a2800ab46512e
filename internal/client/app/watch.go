package app

import (
	"context"
	"errors"

	"github.com/iudanet/pidash/internal/client/auth"
	"github.com/iudanet/pidash/internal/client/realtime"
	pkgapi "github.com/iudanet/pidash/pkg/api"
)

var (
	// ErrNotAuthenticated is returned when a command needs a session and there is none
	ErrNotAuthenticated = errors.New("not logged in")
	// ErrSessionEnded is returned by Watch when the server rejected the session
	ErrSessionEnded = errors.New("session ended, please log in again")
)

// expiringRenewer ends the session when a renewal leaves no credentials behind
type expiringRenewer struct {
	app *App
}

func (r expiringRenewer) Renew(ctx context.Context) (string, error) {
	token, err := r.app.Renewer.Renew(ctx)
	if err == nil && token == "" && r.app.Store.AccessToken() == "" {
		_ = r.app.Session.Expire(ctx)
	}
	return token, err
}

// Watch restores the session and streams samples to onSample until ctx is
// done or the session ends.
func (a *App) Watch(ctx context.Context, onSample func(pkgapi.SystemStats), opts ...realtime.Option) error {
	if a.Session.Restore(ctx) != auth.StateAuthenticated {
		return ErrNotAuthenticated
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	a.Session.Subscribe(func(s auth.State) {
		if s == auth.StateUnauthenticated {
			cancel()
		}
	})

	manager := a.NewRealtime(opts...)
	manager.OnSample(onSample)

	if err := manager.Start(ctx); err != nil {
		return err
	}

	<-ctx.Done()
	_ = manager.Close()

	if a.Session.State() == auth.StateUnauthenticated {
		return ErrSessionEnded
	}
	return nil
}
