package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/iudanet/pidash/internal/client/storage"
	"github.com/iudanet/pidash/internal/client/storage/memory"
)

// Policy names accepted by config
const (
	PolicyCookie  = "cookie"
	PolicyDurable = "durable"
)

// Policy decides where credentials live between process restarts.
//
// cookie: refresh token is an HttpOnly cookie in the http client's jar,
// access token is kept in memory only.
// durable: both tokens are persisted by a CredentialStorage backend.
type Policy interface {
	// Load reads previously stored credentials. Absence is not an error.
	Load(ctx context.Context) (storage.Credentials, error)
	// Save persists credentials
	Save(ctx context.Context, creds storage.Credentials) error
	// Clear removes persisted credentials
	Clear(ctx context.Context) error
	// RequiresRefreshToken reports whether renewal needs a stored refresh token
	RequiresRefreshToken() bool
	// Name returns PolicyCookie or PolicyDurable
	Name() string
}

type backendPolicy struct {
	backend storage.CredentialStorage
	name    string
	durable bool
}

// NewCookiePolicy creates the cookie-backed policy. backend may be nil,
// then a fresh memory storage is used.
func NewCookiePolicy(backend storage.CredentialStorage) Policy {
	if backend == nil {
		backend = memory.New()
	}
	return &backendPolicy{backend: backend, name: PolicyCookie}
}

// NewDurablePolicy creates the policy persisting both tokens in backend
func NewDurablePolicy(backend storage.CredentialStorage) Policy {
	return &backendPolicy{backend: backend, name: PolicyDurable, durable: true}
}

func (p *backendPolicy) Load(ctx context.Context) (storage.Credentials, error) {
	creds, err := p.backend.GetCredentials(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrCredentialsNotFound) {
			return storage.Credentials{}, nil
		}
		return storage.Credentials{}, fmt.Errorf("failed to load credentials: %w", err)
	}
	if !p.durable {
		creds.RefreshToken = ""
	}
	return creds, nil
}

func (p *backendPolicy) Save(ctx context.Context, creds storage.Credentials) error {
	if !p.durable {
		// refresh token принадлежит cookie jar
		creds.RefreshToken = ""
	}
	if err := p.backend.SaveCredentials(ctx, creds); err != nil {
		return fmt.Errorf("failed to save credentials: %w", err)
	}
	return nil
}

func (p *backendPolicy) Clear(ctx context.Context) error {
	if err := p.backend.DeleteCredentials(ctx); err != nil {
		return fmt.Errorf("failed to clear credentials: %w", err)
	}
	return nil
}

func (p *backendPolicy) RequiresRefreshToken() bool {
	return p.durable
}

func (p *backendPolicy) Name() string {
	return p.name
}
