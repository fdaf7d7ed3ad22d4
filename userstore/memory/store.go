// Package memory is an in-process authcache.UserProvider for tests, demos
// and the load generator.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/MrEthical07/authcache"
	"github.com/google/uuid"
)

// Store keeps users in maps guarded by a single RWMutex.
type Store struct {
	mu           sync.RWMutex
	now          func() time.Time
	byID         map[string]authcache.UserRecord
	byIdentifier map[string]string
}

// New returns an empty Store. A nil clock uses time.Now.
func New(clock func() time.Time) *Store {
	if clock == nil {
		clock = time.Now
	}
	return &Store{
		now:          clock,
		byID:         make(map[string]authcache.UserRecord),
		byIdentifier: make(map[string]string),
	}
}

func (s *Store) GetUserByIdentifier(_ context.Context, identifier string) (authcache.UserRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byIdentifier[identifier]
	if !ok {
		return authcache.UserRecord{}, authcache.ErrUserNotFound
	}
	return s.byID[id], nil
}

func (s *Store) GetUserByID(_ context.Context, userID string) (authcache.UserRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.byID[userID]
	if !ok {
		return authcache.UserRecord{}, authcache.ErrUserNotFound
	}
	return rec, nil
}

func (s *Store) CreateUser(_ context.Context, in authcache.CreateUserInput) (authcache.UserRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byIdentifier[in.Identifier]; exists {
		return authcache.UserRecord{}, authcache.ErrAccountExists
	}

	now := s.now()
	rec := authcache.UserRecord{
		UserID:       uuid.NewString(),
		Identifier:   in.Identifier,
		PasswordHash: in.PasswordHash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	s.byID[rec.UserID] = rec
	s.byIdentifier[rec.Identifier] = rec.UserID
	return rec, nil
}

func (s *Store) UpdatePasswordHash(_ context.Context, userID, hash string) (authcache.UserRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.byID[userID]
	if !ok {
		return authcache.UserRecord{}, authcache.ErrUserNotFound
	}
	now := s.now()
	rec.PasswordHash = hash
	rec.PasswordChangedAt = now
	rec.UpdatedAt = now
	s.byID[userID] = rec
	return rec, nil
}

// Len returns the number of stored users.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}

var _ authcache.UserProvider = (*Store)(nil)
