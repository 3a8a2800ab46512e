package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/iudanet/pidash/internal/client/api"
	"github.com/iudanet/pidash/internal/validation"
	pkgapi "github.com/iudanet/pidash/pkg/api"
)

// State of the session
type State int

const (
	// StateChecking - начальное состояние до завершения Restore
	StateChecking State = iota
	// StateUnauthenticated - нужен логин
	StateUnauthenticated
	// StateAuthenticated - есть действующий access token
	StateAuthenticated
)

func (s State) String() string {
	switch s {
	case StateChecking:
		return "checking"
	case StateUnauthenticated:
		return "unauthenticated"
	case StateAuthenticated:
		return "authenticated"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Listener is notified after every state transition
type Listener func(State)

// Session owns the authentication state and its transitions.
type Session struct {
	client    AuthClient
	store     *Store
	renewer   TokenRenewer
	logger    *slog.Logger
	listeners []Listener
	state     State
	mu        sync.Mutex
	restoreMu sync.Mutex
	restored  bool
}

// NewSession creates a session in StateChecking
func NewSession(client AuthClient, store *Store, renewer TokenRenewer, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{
		client:  client,
		store:   store,
		renewer: renewer,
		logger:  logger,
		state:   StateChecking,
	}
}

// State returns the current state
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Subscribe registers fn for state changes
func (s *Session) Subscribe(fn Listener) {
	s.mu.Lock()
	s.listeners = append(s.listeners, fn)
	s.mu.Unlock()
}

// Restore decides the initial state from the cached credentials.
// Only the first call does any work.
func (s *Session) Restore(ctx context.Context) State {
	s.restoreMu.Lock()
	defer s.restoreMu.Unlock()

	if s.restored {
		return s.State()
	}
	s.restored = true

	next := s.restore(ctx)
	s.setState(ctx, next)
	return next
}

func (s *Session) restore(ctx context.Context) State {
	token := s.store.AccessToken()

	if token != "" {
		// durable: токен проверится на первом запросе через gateway
		if s.store.Policy().RequiresRefreshToken() {
			return StateAuthenticated
		}

		if err := s.client.CheckAuth(ctx, token); err != nil {
			s.logger.WarnContext(ctx, "cached session is not valid", "error", err)
			if clearErr := s.store.Clear(ctx); clearErr != nil {
				s.logger.ErrorContext(ctx, "failed to clear credentials", "error", clearErr)
			}
			return StateUnauthenticated
		}
		return StateAuthenticated
	}

	token, err := s.renewer.Renew(ctx)
	if err != nil {
		s.logger.ErrorContext(ctx, "session restore failed", "error", err)
		return StateUnauthenticated
	}
	if token == "" {
		return StateUnauthenticated
	}
	return StateAuthenticated
}

// Login exchanges username and password for credentials.
// On failure the store and the state are left unchanged.
func (s *Session) Login(ctx context.Context, username, password string) error {
	if err := validation.ValidateUsername(username); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	if err := validation.ValidatePassword(password); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}

	resp, err := s.client.Login(ctx, pkgapi.LoginRequest{Username: username, Password: password})
	if err != nil {
		var statusErr *api.StatusError
		if errors.As(err, &statusErr) &&
			(statusErr.StatusCode == http.StatusUnauthorized || statusErr.StatusCode == http.StatusForbidden) {
			return ErrInvalidCredentials
		}
		return fmt.Errorf("login failed: %w", err)
	}
	if resp.AccessToken == "" {
		return fmt.Errorf("login failed: empty access token in response")
	}

	if err := s.store.Set(ctx, resp.AccessToken, resp.RefreshToken); err != nil {
		return fmt.Errorf("failed to store credentials: %w", err)
	}

	// свежие токены заменяют кэш, проверять его больше незачем
	s.markRestored()

	s.logger.InfoContext(ctx, "logged in", "username", username)
	s.setState(ctx, StateAuthenticated)
	return nil
}

// Logout notifies the server (best effort), then clears local credentials
// unconditionally.
func (s *Session) Logout(ctx context.Context) error {
	creds := s.store.Credentials()

	if err := s.client.Logout(ctx, creds.AccessToken, creds.RefreshToken); err != nil {
		s.logger.WarnContext(ctx, "server logout failed", "error", err)
	}

	return s.Expire(ctx)
}

// Expire drops local credentials without contacting the server and returns
// to StateUnauthenticated. Used when the server definitively rejected the
// session mid-flight; the rejected renewal has already notified the server.
func (s *Session) Expire(ctx context.Context) error {
	s.markRestored()

	err := s.store.Clear(ctx)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to clear credentials", "error", err)
	}

	s.setState(ctx, StateUnauthenticated)
	return err
}

func (s *Session) markRestored() {
	s.restoreMu.Lock()
	s.restored = true
	s.restoreMu.Unlock()
}

// setState notifies listeners only on an actual transition
func (s *Session) setState(ctx context.Context, next State) {
	s.mu.Lock()
	prev := s.state
	if prev == next {
		s.mu.Unlock()
		return
	}
	s.state = next
	listeners := make([]Listener, len(s.listeners))
	copy(listeners, s.listeners)
	s.mu.Unlock()

	s.logger.DebugContext(ctx, "session state", "from", prev, "to", next)

	for _, fn := range listeners {
		fn(next)
	}
}
