package session

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps sessions in process memory. Suitable for a single node.
type MemoryStore struct {
	mu    sync.Mutex
	items map[string]memoryItem
	now   func() time.Time
}

type memoryItem struct {
	sess      Session
	expiresAt time.Time
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: make(map[string]memoryItem), now: time.Now}
}

// Get returns a copy of the stored session or ErrNotFound.
func (s *MemoryStore) Get(_ context.Context, token string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.items[token]
	if !ok {
		return nil, ErrNotFound
	}
	if !item.expiresAt.IsZero() && !s.now().Before(item.expiresAt) {
		delete(s.items, token)
		return nil, ErrNotFound
	}
	sess := item.sess
	return &sess, nil
}

// Save stores a copy of sess. A nil sess deletes the token.
func (s *MemoryStore) Save(_ context.Context, token string, sess *Session, ttl time.Duration) error {
	if sess == nil {
		return s.Delete(context.Background(), token)
	}
	item := memoryItem{sess: *sess}
	if ttl > 0 {
		item.expiresAt = s.now().Add(ttl)
	}
	s.mu.Lock()
	s.items[token] = item
	s.mu.Unlock()
	return nil
}

// Delete removes the token. Missing tokens are not an error.
func (s *MemoryStore) Delete(_ context.Context, token string) error {
	s.mu.Lock()
	delete(s.items, token)
	s.mu.Unlock()
	return nil
}

// Touch replaces an existing, unexpired session.
func (s *MemoryStore) Touch(_ context.Context, token string, sess *Session, ttl time.Duration) error {
	if sess == nil {
		return ErrNotFound
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	item, ok := s.items[token]
	if !ok {
		return ErrNotFound
	}
	if !item.expiresAt.IsZero() && !now.Before(item.expiresAt) {
		delete(s.items, token)
		return ErrNotFound
	}
	item = memoryItem{sess: *sess}
	if ttl > 0 {
		item.expiresAt = now.Add(ttl)
	}
	s.items[token] = item
	return nil
}

// Sweep drops expired sessions and returns how many were removed.
func (s *MemoryStore) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	removed := 0
	for token, item := range s.items {
		if !item.expiresAt.IsZero() && !now.Before(item.expiresAt) {
			delete(s.items, token)
			removed++
		}
	}
	return removed
}

// Len reports the number of stored sessions, expired or not.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

// StartSweeper runs Sweep on every tick until ctx is done.
func (s *MemoryStore) StartSweeper(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.Sweep()
			}
		}
	}()
}
