package ticket

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

type memoryEntry struct {
	subjectID string
	secret    string
	createdAt time.Time
	expiresAt time.Time
	used      bool
}

// MemoryStore keeps tickets in process memory. Suitable for a single
// server instance; use the Redis store when several instances share
// tickets.
type MemoryStore struct {
	mu      sync.Mutex
	tickets map[string]*memoryEntry
	ttl     time.Duration
}

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		tickets: make(map[string]*memoryEntry),
		ttl:     ttl,
	}
}

func (s *MemoryStore) Issue(_ context.Context, subjectID, secret string) (*Ticket, error) {
	token, err := generateToken()
	if err != nil {
		return nil, err
	}

	now := time.Now()
	s.mu.Lock()
	s.tickets[token] = &memoryEntry{
		subjectID: subjectID,
		secret:    secret,
		createdAt: now,
		expiresAt: now.Add(s.ttl),
	}
	s.mu.Unlock()

	slog.Info("Provisioning ticket issued", "subject_id", subjectID, "expires_at", now.Add(s.ttl))
	return &Ticket{
		Token:     token,
		SubjectID: subjectID,
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	}, nil
}

func (s *MemoryStore) Redeem(_ context.Context, token string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.tickets[token]
	if !ok {
		return "", ErrNotFound
	}
	if entry.used {
		return "", ErrAlreadyUsed
	}
	if time.Now().After(entry.expiresAt) {
		return "", ErrExpired
	}

	entry.used = true
	secret := entry.secret
	entry.secret = ""
	return secret, nil
}

// StartCleanup drops used and expired tickets periodically until ctx ends.
func (s *MemoryStore) StartCleanup(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.cleanup()
		}
	}
}

func (s *MemoryStore) cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	removed := 0
	for token, entry := range s.tickets {
		if entry.used || now.After(entry.expiresAt) {
			delete(s.tickets, token)
			removed++
		}
	}
	if removed > 0 {
		slog.Debug("Cleaned up provisioning tickets", "removed", removed)
	}
}
