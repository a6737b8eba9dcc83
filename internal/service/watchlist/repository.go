package watchlist

import (
	"context"
	"sort"
	"sync"

	"github.com/animo-app/animo/backend/internal/model/watchlist"
)

// Repository persists watch-list entries, unique per (user, anime).
type Repository interface {
	// Upsert inserts entry or updates the status of the existing
	// (UserID, AnimeID) row, returning the stored entry.
	Upsert(ctx context.Context, entry watchlist.Entry) (watchlist.Entry, bool, error)
	ListByUser(ctx context.Context, userID string) ([]watchlist.Entry, error)
}

type entryKey struct {
	userID  string
	animeID string
}

// MemoryRepository keeps entries in process memory.
type MemoryRepository struct {
	mu      sync.RWMutex
	entries map[entryKey]watchlist.Entry
}

// NewMemoryRepository creates an empty repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{entries: make(map[entryKey]watchlist.Entry)}
}

func (r *MemoryRepository) Upsert(_ context.Context, entry watchlist.Entry) (watchlist.Entry, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := entryKey{userID: entry.UserID, animeID: entry.AnimeID}
	if existing, ok := r.entries[key]; ok {
		existing.Status = entry.Status
		existing.UpdatedAt = entry.UpdatedAt
		r.entries[key] = existing
		return existing, false, nil
	}

	r.entries[key] = entry
	return entry, true, nil
}

func (r *MemoryRepository) ListByUser(_ context.Context, userID string) ([]watchlist.Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entries := make([]watchlist.Entry, 0)
	for key, entry := range r.entries {
		if key.userID == userID {
			entries = append(entries, entry)
		}
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].CreatedAt.Equal(entries[j].CreatedAt) {
			return entries[i].ID < entries[j].ID
		}
		return entries[i].CreatedAt.Before(entries[j].CreatedAt)
	})
	return entries, nil
}
