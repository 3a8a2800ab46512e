// Package memory implements a volatile credential backend. Nothing survives
// process exit; used by the cookie-backed policy.
package memory

import (
	"context"
	"sync"

	"github.com/iudanet/pidash/internal/client/storage"
)

// Storage keeps credentials in process memory.
type Storage struct {
	mu    sync.RWMutex
	creds storage.Credentials
}

var _ storage.CredentialStorage = (*Storage)(nil)

// New creates an empty memory storage.
func New() *Storage {
	return &Storage{}
}

// NewWithCredentials creates a memory storage seeded with credentials,
// e.g. an access token passed on the command line.
func NewWithCredentials(creds storage.Credentials) *Storage {
	return &Storage{creds: creds}
}

// SaveCredentials stores credentials in memory.
func (s *Storage) SaveCredentials(_ context.Context, creds storage.Credentials) error {
	s.mu.Lock()
	s.creds = creds
	s.mu.Unlock()
	return nil
}

// GetCredentials returns stored credentials.
func (s *Storage) GetCredentials(_ context.Context) (storage.Credentials, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.creds.AccessToken == "" {
		return storage.Credentials{}, storage.ErrCredentialsNotFound
	}
	return s.creds, nil
}

// DeleteCredentials forgets credentials.
func (s *Storage) DeleteCredentials(_ context.Context) error {
	s.mu.Lock()
	s.creds = storage.Credentials{}
	s.mu.Unlock()
	return nil
}
