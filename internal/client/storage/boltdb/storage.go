package boltdb

import (
	"context"
	"fmt"

	"go.etcd.io/bbolt"

	"github.com/iudanet/pidash/internal/crypto"
)

var (
	// BoltDB bucket names
	bucketAuth = []byte("auth")
	bucketMeta = []byte("meta")

	keySalt = []byte("salt")
)

// Storage represents BoltDB credential storage for the dashboard client
type Storage struct {
	db  *bbolt.DB
	key []byte // ключ шифрования значений, nil - без шифрования
}

// Option настраивает Storage
type Option func(*options)

type options struct {
	passphrase string
}

// WithPassphrase включает шифрование токенов на диске ключом,
// выведенным из passphrase (Argon2id + AES-256-GCM)
func WithPassphrase(passphrase string) Option {
	return func(o *options) {
		o.passphrase = passphrase
	}
}

// New creates a new BoltDB storage instance
// dbPath is the path to the BoltDB database file
func New(ctx context.Context, dbPath string, opts ...Option) (*Storage, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	// Открываем BoltDB
	db, err := bbolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open boltdb: %w", err)
	}

	storage := &Storage{db: db}

	// Инициализируем buckets
	if err := storage.initBuckets(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize buckets: %w", err)
	}

	if o.passphrase != "" {
		if err := storage.initKey(o.passphrase); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to initialize encryption key: %w", err)
		}
	}

	return storage, nil
}

// Close closes the database connection
func (s *Storage) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Encrypted сообщает, шифруются ли значения на диске
func (s *Storage) Encrypted() bool {
	return s.key != nil
}

// initBuckets создает необходимые buckets если они не существуют
func (s *Storage) initBuckets() error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{bucketAuth, bucketMeta} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("failed to create %s bucket: %w", name, err)
			}
		}
		return nil
	})
}

// initKey читает соль из meta bucket (или создает ее) и выводит ключ
func (s *Storage) initKey(passphrase string) error {
	var salt []byte

	err := s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketMeta)
		if existing := bucket.Get(keySalt); existing != nil {
			// bbolt отдает память, валидную только внутри транзакции
			salt = append([]byte(nil), existing...)
			return nil
		}

		generated, err := crypto.GenerateSalt()
		if err != nil {
			return err
		}
		salt = generated
		return bucket.Put(keySalt, salt)
	})
	if err != nil {
		return err
	}

	key, err := crypto.DeriveKey(passphrase, salt)
	if err != nil {
		return err
	}
	s.key = key
	return nil
}
