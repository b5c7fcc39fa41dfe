package storage

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Retrieve when no value exists for a key
var ErrNotFound = errors.New("storage: key not found")

// StorageInterface defines the contract for durable key-value operations.
// Delete of a missing key is not an error.
type StorageInterface interface {
	Store(ctx context.Context, key string, data []byte) error
	Retrieve(ctx context.Context, key string) ([]byte, error)
	List(ctx context.Context, prefix string) ([]string, error)
	Delete(ctx context.Context, key string) error
}
