// Package session keeps short-lived per-conversation history in memory.
// Entries expire after a TTL and the store sweeps them on a ticker so
// idle conversations never accumulate.
package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"relaybot/internal/domain"
)

type entry struct {
	messages   []domain.Message
	lastAccess time.Time
}

// Store is a TTL-bounded conversation store keyed by chat id.
type Store struct {
	mu      sync.Mutex
	entries map[string]*entry

	ttl           time.Duration
	maxMessages   int
	sweepInterval time.Duration
	logger        *slog.Logger

	stopOnce sync.Once
	done     chan struct{}
}

// NewStore creates a Store. The sweep interval must be shorter than the
// TTL; callers get that from config validation.
func NewStore(ttl, sweepInterval time.Duration, maxMessages int, logger *slog.Logger) *Store {
	return &Store{
		entries:       make(map[string]*entry),
		ttl:           ttl,
		maxMessages:   maxMessages,
		sweepInterval: sweepInterval,
		logger:        logger,
		done:          make(chan struct{}),
	}
}

// Get returns a copy of the conversation for chatID, refreshing its last
// access time. An absent or expired conversation yields an empty slice;
// expiry removes the whole entry.
func (s *Store) Get(chatID string) []domain.Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[chatID]
	if !ok {
		return nil
	}
	if time.Since(e.lastAccess) > s.ttl {
		delete(s.entries, chatID)
		return nil
	}
	e.lastAccess = time.Now()

	out := make([]domain.Message, len(e.messages))
	copy(out, e.messages)
	return out
}

// Put replaces the conversation for chatID, keeping only the most recent
// maxMessages entries.
func (s *Store) Put(chatID string, messages []domain.Message) {
	if len(messages) > s.maxMessages {
		messages = messages[len(messages)-s.maxMessages:]
	}
	stored := make([]domain.Message, len(messages))
	copy(stored, messages)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[chatID] = &entry{messages: stored, lastAccess: time.Now()}
}

// Clear removes the conversation for chatID.
func (s *Store) Clear(chatID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, chatID)
}

// Len returns the number of live conversations.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Start launches the sweep loop. It returns immediately.
func (s *Store) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(s.sweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if n := s.sweep(); n > 0 {
					s.logger.Debug("session sweep", "evicted", n)
				}
			case <-ctx.Done():
				return
			case <-s.done:
				return
			}
		}
	}()
}

// Stop terminates the sweep loop.
func (s *Store) Stop() {
	s.stopOnce.Do(func() { close(s.done) })
}

func (s *Store) sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	var evicted int
	for id, e := range s.entries {
		if time.Since(e.lastAccess) > s.ttl {
			delete(s.entries, id)
			evicted++
		}
	}
	return evicted
}
