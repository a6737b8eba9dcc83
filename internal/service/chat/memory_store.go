package chat

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/animo-app/animo/backend/internal/model/chat"
)

// MemoryStore is the process-local session registry. With a positive ttl a
// session idle for longer than ttl is treated as absent and later removed
// by Sweep; a zero ttl keeps sessions until the process exits.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*chat.Session
	ttl      time.Duration
	now      func() time.Time
}

// NewMemoryStore builds an empty store.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]*chat.Session),
		ttl:      ttl,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *MemoryStore) expired(session *chat.Session, now time.Time) bool {
	return s.ttl > 0 && now.Sub(session.UpdatedAt) > s.ttl
}

// Get returns a copy of the stored session.
func (s *MemoryStore) Get(_ context.Context, chatID string) (chat.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.sessions[chatID]
	if !ok || s.expired(session, s.now()) {
		return chat.Session{}, ErrSessionNotFound
	}
	return session.Clone(), nil
}

// CreateOrReset seeds chatID with a single priming line.
func (s *MemoryStore) CreateOrReset(_ context.Context, chatID, characterName, primingLine string) (chat.Session, error) {
	if chatID == "" {
		return chat.Session{}, errEmptyChatID
	}
	if primingLine == "" {
		return chat.Session{}, errEmptyPrimingLine
	}

	now := s.now()
	session := &chat.Session{
		ChatID:        chatID,
		CharacterName: characterName,
		Transcript:    make([]string, 1, 16),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	session.Transcript[0] = primingLine

	s.mu.Lock()
	s.sessions[chatID] = session
	s.mu.Unlock()

	return session.Clone(), nil
}

// Append adds line to the end of the transcript.
func (s *MemoryStore) Append(_ context.Context, chatID, line string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	session, ok := s.sessions[chatID]
	if !ok || s.expired(session, now) {
		return ErrSessionNotFound
	}

	session.Transcript = append(session.Transcript, line)
	session.UpdatedAt = now
	return nil
}

// Len reports the number of live sessions.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := s.now()
	count := 0
	for _, session := range s.sessions {
		if !s.expired(session, now) {
			count++
		}
	}
	return count
}

// Sweep drops expired sessions and returns how many were removed.
func (s *MemoryStore) Sweep(now time.Time) int {
	if s.ttl <= 0 {
		return 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, session := range s.sessions {
		if s.expired(session, now) {
			delete(s.sessions, id)
			removed++
		}
	}
	return removed
}

// Run sweeps every interval until ctx is done. It returns nil on shutdown.
func (s *MemoryStore) Run(ctx context.Context, interval time.Duration) error {
	if s.ttl <= 0 || interval <= 0 {
		<-ctx.Done()
		return nil
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if removed := s.Sweep(s.now()); removed > 0 {
				log.Printf("[chat] evicted %d idle sessions", removed)
			}
		}
	}
}
