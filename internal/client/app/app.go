// Package app wires the session lifecycle components from config.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/iudanet/pidash/internal/client/api"
	"github.com/iudanet/pidash/internal/client/auth"
	"github.com/iudanet/pidash/internal/client/config"
	"github.com/iudanet/pidash/internal/client/realtime"
	"github.com/iudanet/pidash/internal/client/storage"
	"github.com/iudanet/pidash/internal/client/storage/boltdb"
	"github.com/iudanet/pidash/internal/client/storage/keyring"
	"github.com/iudanet/pidash/internal/client/storage/memory"
	pkgapi "github.com/iudanet/pidash/pkg/api"
)

// App holds the wired client components
type App struct {
	Config  *config.Config
	Logger  *slog.Logger
	Client  *api.Client
	Store   *auth.Store
	Renewer *auth.Renewer
	Gateway *api.Gateway
	Session *auth.Session

	closers []io.Closer
}

// Option настраивает App
type Option func(*options)

type options struct {
	backend    storage.CredentialStorage
	clientOpts []api.Option
}

// WithCredentialStorage подменяет backend (тесты)
func WithCredentialStorage(backend storage.CredentialStorage) Option {
	return func(o *options) { o.backend = backend }
}

// WithClientOptions передает опции api клиенту
func WithClientOptions(opts ...api.Option) Option {
	return func(o *options) { o.clientOpts = append(o.clientOpts, opts...) }
}

// New builds the components and loads cached credentials
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts ...Option) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var o options
	for _, opt := range opts {
		opt(&o)
	}

	a := &App{Config: cfg, Logger: logger}

	clientOpts := []api.Option{api.WithLogger(logger)}
	if cfg.Auth.Mode == config.ModeCookie {
		clientOpts = append(clientOpts, api.WithCookieJar())
	}
	clientOpts = append(clientOpts, o.clientOpts...)
	a.Client = api.NewClient(cfg.Server.URL, clientOpts...)

	backend := o.backend
	if backend == nil {
		b, err := a.openBackend(ctx)
		if err != nil {
			return nil, err
		}
		backend = b
	}

	var policy auth.Policy
	if cfg.Auth.Mode == config.ModeCookie {
		policy = auth.NewCookiePolicy(backend)
	} else {
		policy = auth.NewDurablePolicy(backend)
	}

	a.Store = auth.NewStore(policy, logger)
	if err := a.Store.Load(ctx); err != nil {
		_ = a.Close()
		return nil, err
	}

	a.Renewer = auth.NewRenewer(a.Client, a.Store, logger)
	a.Gateway = api.NewGateway(a.Client, a.Store, a.Renewer)
	a.Session = auth.NewSession(a.Client, a.Store, a.Renewer, logger)

	logger.DebugContext(ctx, "client initialized",
		"server", cfg.Server.URL,
		"auth_mode", cfg.Auth.Mode,
		"storage", cfg.Auth.Storage)

	return a, nil
}

func (a *App) openBackend(ctx context.Context) (storage.CredentialStorage, error) {
	cfg := a.Config.Auth
	if cfg.Mode == config.ModeCookie {
		return memory.New(), nil
	}

	switch cfg.Storage {
	case config.StorageKeyring:
		kr, err := keyring.New(cfg.KeyringDir)
		if err != nil {
			return nil, err
		}
		return kr, nil
	default:
		if dir := filepath.Dir(cfg.DBPath); dir != "" {
			if err := os.MkdirAll(dir, 0o700); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}

		var boltOpts []boltdb.Option
		if cfg.Passphrase != "" {
			boltOpts = append(boltOpts, boltdb.WithPassphrase(cfg.Passphrase))
		}

		db, err := boltdb.New(ctx, cfg.DBPath, boltOpts...)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		a.closers = append(a.closers, db)
		return db, nil
	}
}

// NewRealtime creates a stream manager bound to the app's credentials
func (a *App) NewRealtime(opts ...realtime.Option) *realtime.Manager {
	base := []realtime.Option{
		realtime.WithLogger(a.Logger),
		realtime.WithReconnectDelay(a.Config.Realtime.ReconnectDelay),
	}
	return realtime.NewManager(a.Store, expiringRenewer{app: a}, a.Client, append(base, opts...)...)
}

// Stats fetches the current sample. A definitive 401 expires the session.
func (a *App) Stats(ctx context.Context) (*pkgapi.SystemStats, error) {
	stats, err := a.Gateway.Stats(ctx)
	if err != nil {
		return nil, a.checkUnauthorized(ctx, err)
	}
	return stats, nil
}

// History fetches samples for a range. A definitive 401 expires the session.
func (a *App) History(ctx context.Context, rng string) (*pkgapi.HistoryResponse, error) {
	history, err := a.Gateway.History(ctx, rng)
	if err != nil {
		return nil, a.checkUnauthorized(ctx, err)
	}
	return history, nil
}

// checkUnauthorized expires the session after a final 401 only when the
// renewal left nothing to retry with. A renewal that failed on the network
// keeps the credentials for the next attempt.
func (a *App) checkUnauthorized(ctx context.Context, err error) error {
	if errors.Is(err, api.ErrUnauthorized) && a.credentialsLost() {
		a.Logger.WarnContext(ctx, "session rejected by server", "error", err)
		if expireErr := a.Session.Expire(ctx); expireErr != nil {
			return errors.Join(err, expireErr)
		}
	}
	return err
}

// credentialsLost reports whether no renewal can succeed with what the store holds
func (a *App) credentialsLost() bool {
	if a.Store.AccessToken() == "" {
		return true
	}
	return a.Store.Policy().RequiresRefreshToken() && a.Store.RefreshToken() == ""
}

// Close releases storage handles
func (a *App) Close() error {
	var errs []error
	for _, c := range a.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
