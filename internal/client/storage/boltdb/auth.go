package boltdb

import (
	"context"
	"fmt"

	"go.etcd.io/bbolt"

	"github.com/iudanet/pidash/internal/client/storage"
	"github.com/iudanet/pidash/internal/crypto"
)

var (
	keyAccessToken  = []byte(storage.KeyAccessToken)
	keyRefreshToken = []byte(storage.KeyRefreshToken)
)

var _ storage.CredentialStorage = (*Storage)(nil)

// SaveCredentials stores both credentials in one transaction
func (s *Storage) SaveCredentials(ctx context.Context, creds storage.Credentials) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketAuth)
		if bucket == nil {
			return fmt.Errorf("auth bucket not found")
		}

		if err := s.put(bucket, keyAccessToken, creds.AccessToken); err != nil {
			return fmt.Errorf("failed to save access token: %w", err)
		}
		if err := s.put(bucket, keyRefreshToken, creds.RefreshToken); err != nil {
			return fmt.Errorf("failed to save refresh token: %w", err)
		}

		return nil
	})
}

// GetCredentials retrieves stored credentials
func (s *Storage) GetCredentials(ctx context.Context) (storage.Credentials, error) {
	var creds storage.Credentials

	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketAuth)
		if bucket == nil {
			return fmt.Errorf("auth bucket not found")
		}

		access, err := s.get(bucket, keyAccessToken)
		if err != nil {
			return fmt.Errorf("failed to read access token: %w", err)
		}
		if access == "" {
			return storage.ErrCredentialsNotFound
		}

		refresh, err := s.get(bucket, keyRefreshToken)
		if err != nil {
			return fmt.Errorf("failed to read refresh token: %w", err)
		}

		creds = storage.Credentials{AccessToken: access, RefreshToken: refresh}
		return nil
	})

	if err != nil {
		return storage.Credentials{}, err
	}

	return creds, nil
}

// DeleteCredentials removes stored credentials (logout)
func (s *Storage) DeleteCredentials(ctx context.Context) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketAuth)
		if bucket == nil {
			return fmt.Errorf("auth bucket not found")
		}

		// Delete на отсутствующем ключе - no-op
		if err := bucket.Delete(keyAccessToken); err != nil {
			return fmt.Errorf("failed to delete access token: %w", err)
		}
		if err := bucket.Delete(keyRefreshToken); err != nil {
			return fmt.Errorf("failed to delete refresh token: %w", err)
		}

		return nil
	})
}

// put сохраняет значение (шифруя его при наличии ключа); пустое значение удаляет ключ
func (s *Storage) put(bucket *bbolt.Bucket, key []byte, value string) error {
	if value == "" {
		return bucket.Delete(key)
	}

	data := []byte(value)
	if s.key != nil {
		sealed, err := crypto.Seal(data, s.key)
		if err != nil {
			return err
		}
		data = sealed
	}

	return bucket.Put(key, data)
}

func (s *Storage) get(bucket *bbolt.Bucket, key []byte) (string, error) {
	data := bucket.Get(key)
	if data == nil {
		return "", nil
	}

	if s.key == nil {
		return string(data), nil
	}

	plaintext, err := crypto.Open(data, s.key)
	if err != nil {
		return "", err
	}
	return string(plaintext), nil
}
