package auth

import (
	"context"
	"log/slog"
	"sync"

	"github.com/iudanet/pidash/internal/client/storage"
)

// Store holds the current credential pair. Reads are served from memory,
// writes go through the Policy before the in-memory copy is replaced.
// Store does no network I/O.
type Store struct {
	policy Policy
	logger *slog.Logger
	creds  storage.Credentials
	mu     sync.RWMutex
}

// NewStore creates an empty store over policy. Call Load to read persisted credentials.
func NewStore(policy Policy, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		policy: policy,
		logger: logger,
	}
}

// Load reads persisted credentials into memory
func (s *Store) Load(ctx context.Context) error {
	creds, err := s.policy.Load(ctx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.creds = creds
	s.mu.Unlock()

	s.logger.DebugContext(ctx, "credentials loaded",
		"policy", s.policy.Name(),
		"has_access_token", creds.AccessToken != "",
		"has_refresh_token", creds.RefreshToken != "")
	return nil
}

// Set atomically replaces both credentials. In cookie mode refresh is ignored.
func (s *Store) Set(ctx context.Context, access, refresh string) error {
	if !s.policy.RequiresRefreshToken() {
		refresh = ""
	}
	creds := storage.Credentials{AccessToken: access, RefreshToken: refresh}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.policy.Save(ctx, creds); err != nil {
		return err
	}
	s.creds = creds
	return nil
}

// AccessToken returns the current access token, "" if absent
func (s *Store) AccessToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.creds.AccessToken
}

// RefreshToken returns the stored refresh token, "" if absent or cookie mode
func (s *Store) RefreshToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.creds.RefreshToken
}

// Credentials returns a copy of the current pair
func (s *Store) Credentials() storage.Credentials {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.creds
}

// Clear removes both credentials. The in-memory copy is always dropped;
// an error from the backend is returned after that.
// Clearing an empty store is a no-op.
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.creds.IsZero() {
		return nil
	}
	s.creds = storage.Credentials{}

	return s.policy.Clear(ctx)
}

// Policy returns the credential policy
func (s *Store) Policy() Policy {
	return s.policy
}
