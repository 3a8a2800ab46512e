// Package keyring stores session credentials in the OS keyring
// (macOS Keychain, Secret Service, Windows Credential Manager) with an
// encrypted-file fallback for headless Linux.
package keyring

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/99designs/keyring"

	"github.com/iudanet/pidash/internal/client/storage"
)

const (
	// ServiceName is the keyring service name for pidash
	ServiceName = "pidash"
	// PasswordEnvVarName sets the file keyring passphrase for non-interactive setups
	PasswordEnvVarName = "PIDASH_KEYRING_PASSWORD"
	// DBUSSessionAddressEnvVarName is used to detect Linux headless mode
	DBUSSessionAddressEnvVarName = "DBUS_SESSION_BUS_ADDRESS"
)

// Provider defines the subset of keyring operations the storage needs.
// Tests substitute an in-memory implementation.
type Provider interface {
	Get(key string) (keyring.Item, error)
	Set(item keyring.Item) error
	Remove(key string) error
}

// Storage implements storage.CredentialStorage on top of a keyring Provider
type Storage struct {
	provider Provider
}

var _ storage.CredentialStorage = (*Storage)(nil)

// New opens the OS keyring
func New(fileDir string) (*Storage, error) {
	provider, err := openOSKeyring(fileDir)
	if err != nil {
		return nil, fmt.Errorf("failed to open keyring: %w", err)
	}
	return NewWithProvider(provider), nil
}

// NewWithProvider wraps an existing provider
func NewWithProvider(provider Provider) *Storage {
	return &Storage{provider: provider}
}

func openOSKeyring(fileDir string) (Provider, error) {
	if fileDir == "" {
		fileDir = defaultFileDir()
	}

	cfg := keyring.Config{
		ServiceName:                    ServiceName,
		KeychainTrustApplication:       true,
		KeychainSynchronizable:         false,
		KeychainAccessibleWhenUnlocked: true,
		FileDir:                        fileDir,
		FilePasswordFunc: func(_ string) (string, error) {
			if password := strings.TrimSpace(os.Getenv(PasswordEnvVarName)); password != "" {
				return password, nil
			}
			return ServiceName, nil
		},
	}

	// без D-Bus Secret Service недоступен
	if runtime.GOOS == "linux" && strings.TrimSpace(os.Getenv(DBUSSessionAddressEnvVarName)) == "" {
		cfg.AllowedBackends = []keyring.BackendType{keyring.FileBackend}
	}

	return keyring.Open(cfg)
}

func defaultFileDir() string {
	configDir, err := os.UserConfigDir()
	if err != nil || strings.TrimSpace(configDir) == "" {
		configDir = os.Getenv("HOME")
	}
	return filepath.Join(configDir, ServiceName, "keyring")
}

// SaveCredentials stores both credentials under fixed keys
func (s *Storage) SaveCredentials(_ context.Context, creds storage.Credentials) error {
	if err := s.provider.Set(keyring.Item{
		Key:   storage.KeyAccessToken,
		Label: "pidash access token",
		Data:  []byte(creds.AccessToken),
	}); err != nil {
		return fmt.Errorf("failed to store access token in keyring: %w", err)
	}

	if creds.RefreshToken == "" {
		return s.remove(storage.KeyRefreshToken)
	}

	if err := s.provider.Set(keyring.Item{
		Key:   storage.KeyRefreshToken,
		Label: "pidash refresh token",
		Data:  []byte(creds.RefreshToken),
	}); err != nil {
		return fmt.Errorf("failed to store refresh token in keyring: %w", err)
	}

	return nil
}

// GetCredentials reads credentials from the keyring
func (s *Storage) GetCredentials(_ context.Context) (storage.Credentials, error) {
	access, err := s.get(storage.KeyAccessToken)
	if err != nil {
		return storage.Credentials{}, err
	}
	if access == "" {
		return storage.Credentials{}, storage.ErrCredentialsNotFound
	}

	refresh, err := s.get(storage.KeyRefreshToken)
	if err != nil {
		return storage.Credentials{}, err
	}

	return storage.Credentials{AccessToken: access, RefreshToken: refresh}, nil
}

// DeleteCredentials removes both keyring items. Missing items are ignored.
func (s *Storage) DeleteCredentials(_ context.Context) error {
	if err := s.remove(storage.KeyAccessToken); err != nil {
		return err
	}
	return s.remove(storage.KeyRefreshToken)
}

func (s *Storage) get(key string) (string, error) {
	item, err := s.provider.Get(key)
	if err != nil {
		if errors.Is(err, keyring.ErrKeyNotFound) {
			return "", nil
		}
		return "", fmt.Errorf("failed to read %s from keyring: %w", key, err)
	}
	return string(item.Data), nil
}

func (s *Storage) remove(key string) error {
	if err := s.provider.Remove(key); err != nil && !errors.Is(err, keyring.ErrKeyNotFound) {
		return fmt.Errorf("failed to delete %s from keyring: %w", key, err)
	}
	return nil
}
