// Package credentials persists the runtime OAuth tokens in three named slots.
package credentials

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/hashtags/hashtag-timeline/internal/models"
	"github.com/hashtags/hashtag-timeline/internal/storage"
)

// Slot names
const (
	KeyAppAccessToken        = "AppAccessToken"
	KeyUserAccessToken       = "UserAccessToken"
	KeyUserAccessTokenSecret = "UserAccessTokenSecret"
)

// PersistenceError wraps a failed durable read or write
type PersistenceError struct {
	Op  string
	Key string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("credentials %s %s: %v", e.Op, e.Key, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// Store is a durability adapter for models.TokenState. It keeps an
// in-memory mirror of the last loaded or saved state.
type Store struct {
	backend storage.StorageInterface

	mu     sync.RWMutex
	mirror models.TokenState
}

func NewStore(backend storage.StorageInterface) *Store {
	return &Store{backend: backend}
}

// Load reads all slots. Missing slots yield the empty string.
func (s *Store) Load(ctx context.Context) (models.TokenState, error) {
	var state models.TokenState
	var errs []error

	for key, dst := range s.slots(&state) {
		data, err := s.backend.Retrieve(ctx, key)
		switch {
		case err == nil:
			*dst = string(data)
		case errors.Is(err, storage.ErrNotFound):
			*dst = ""
		default:
			errs = append(errs, &PersistenceError{Op: "load", Key: key, Err: err})
		}
	}

	s.mu.Lock()
	s.mirror = state
	s.mu.Unlock()

	return state, errors.Join(errs...)
}

// Save writes all three slots. The mirror is updated even when a write
// fails so that the process keeps using the newest tokens.
func (s *Store) Save(ctx context.Context, state models.TokenState) error {
	s.mu.Lock()
	s.mirror = state
	s.mu.Unlock()

	var errs []error
	for key, src := range s.slots(&state) {
		if err := s.backend.Store(ctx, key, []byte(*src)); err != nil {
			errs = append(errs, &PersistenceError{Op: "save", Key: key, Err: err})
		}
	}
	return errors.Join(errs...)
}

// Clear erases all persisted slots and the mirror
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	s.mirror = models.TokenState{}
	s.mu.Unlock()

	var errs []error
	for _, key := range []string{KeyAppAccessToken, KeyUserAccessToken, KeyUserAccessTokenSecret} {
		if err := s.backend.Delete(ctx, key); err != nil {
			errs = append(errs, &PersistenceError{Op: "clear", Key: key, Err: err})
		}
	}
	return errors.Join(errs...)
}

// Current returns the in-memory mirror
func (s *Store) Current() models.TokenState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.mirror
}

func (s *Store) slots(state *models.TokenState) map[string]*string {
	return map[string]*string{
		KeyAppAccessToken:        &state.AppAccessToken,
		KeyUserAccessToken:       &state.UserAccessToken,
		KeyUserAccessTokenSecret: &state.UserAccessTokenSecret,
	}
}
