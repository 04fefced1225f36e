package twofa

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-memory implementation of Store for demo/test use.
type MemoryStore struct {
	mu      sync.RWMutex
	secrets map[string]*Secret
	codes   map[string][]*BackupCode // userID -> codes
}

// NewMemoryStore creates an in-memory 2FA store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		secrets: make(map[string]*Secret),
		codes:   make(map[string][]*BackupCode),
	}
}

func (s *MemoryStore) SaveSecret(ctx context.Context, secret *Secret) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := *secret
	s.secrets[secret.UserID] = &copied
	return nil
}

func (s *MemoryStore) GetSecret(ctx context.Context, userID string) (*Secret, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	secret, ok := s.secrets[userID]
	if !ok {
		return nil, ErrNotEnrolled
	}
	copied := *secret
	return &copied, nil
}

func (s *MemoryStore) DeleteSecret(ctx context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.secrets, userID)
	return nil
}

func (s *MemoryStore) ReplaceBackupCodes(ctx context.Context, userID string, codes []*BackupCode) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := make([]*BackupCode, len(codes))
	for i, c := range codes {
		cc := *c
		copied[i] = &cc
	}
	s.codes[userID] = copied
	return nil
}

func (s *MemoryStore) ListBackupCodes(ctx context.Context, userID string) ([]*BackupCode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	codes := s.codes[userID]
	result := make([]*BackupCode, len(codes))
	for i, c := range codes {
		cc := *c
		result[i] = &cc
	}
	return result, nil
}

func (s *MemoryStore) MarkBackupCodeUsed(ctx context.Context, id string, usedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, codes := range s.codes {
		for _, c := range codes {
			if c.ID == id {
				c.Used = true
				t := usedAt
				c.UsedAt = &t
				return nil
			}
		}
	}
	return nil
}

func (s *MemoryStore) DeleteBackupCodes(ctx context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.codes, userID)
	return nil
}
