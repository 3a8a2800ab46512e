package storage

import "errors"

// Common client storage errors
var (
	// ErrCredentialsNotFound indicates that no credentials are stored
	ErrCredentialsNotFound = errors.New("credentials not found")

	// ErrStorageClosed indicates that storage is closed
	ErrStorageClosed = errors.New("storage is closed")
)
