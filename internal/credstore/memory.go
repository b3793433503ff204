package credstore

import (
	"context"
	"sync"
	"time"

	"github.com/forgeflow/forgeflow/internal/provider"
)

type memoryKey struct {
	subjectID  string
	providerID provider.ID
}

// MemoryStore holds tokens in process memory. Used in tests and in the
// egress daemon's standalone mode.
type MemoryStore struct {
	mu     sync.RWMutex
	tokens map[memoryKey]Token
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{tokens: make(map[memoryKey]Token)}
}

func (s *MemoryStore) Save(_ context.Context, token Token) error {
	token.UpdatedAt = time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[memoryKey{token.SubjectID, token.Provider}] = token
	return nil
}

func (s *MemoryStore) Get(_ context.Context, subjectID string, providerID provider.ID) (*Token, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	token, ok := s.tokens[memoryKey{subjectID, providerID}]
	if !ok {
		return nil, ErrTokenNotFound
	}
	return &token, nil
}

func (s *MemoryStore) Delete(_ context.Context, subjectID string, providerID provider.ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tokens, memoryKey{subjectID, providerID})
	return nil
}
