package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/animo-app/animo/backend/internal/model/watchlist"
	watchlistservice "github.com/animo-app/animo/backend/internal/service/watchlist"
)

var _ watchlistservice.Repository = (*WatchlistRepository)(nil)

// WatchlistRepository stores anime list entries in Postgres.
type WatchlistRepository struct {
	db DBTX
}

// NewWatchlistRepository creates a repository over db.
func NewWatchlistRepository(db DBTX) *WatchlistRepository {
	return &WatchlistRepository{db: db}
}

// Upsert relies on xmax = 0 to tell a fresh insert from a conflict update.
func (r *WatchlistRepository) Upsert(ctx context.Context, entry watchlist.Entry) (watchlist.Entry, bool, error) {
	var (
		stored   watchlist.Entry
		status   string
		inserted bool
	)
	err := r.db.QueryRow(ctx, `
		INSERT INTO anime_list (id, user_id, anime_id, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (user_id, anime_id) DO UPDATE SET
			status = EXCLUDED.status,
			updated_at = EXCLUDED.updated_at
		RETURNING id, user_id, anime_id, status, created_at, updated_at, (xmax = 0) AS inserted
	`, entry.ID, entry.UserID, entry.AnimeID, string(entry.Status), entry.CreatedAt, entry.UpdatedAt).Scan(
		&stored.ID,
		&stored.UserID,
		&stored.AnimeID,
		&status,
		&stored.CreatedAt,
		&stored.UpdatedAt,
		&inserted,
	)
	if err != nil {
		return watchlist.Entry{}, false, fmt.Errorf("upsert anime list entry: %w", err)
	}
	stored.Status = watchlist.Status(status)
	return stored, inserted, nil
}

func (r *WatchlistRepository) ListByUser(ctx context.Context, userID string) ([]watchlist.Entry, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, user_id, anime_id, status, created_at, updated_at
		FROM anime_list
		WHERE user_id = $1
		ORDER BY created_at, id
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list anime entries: %w", err)
	}

	entries, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (watchlist.Entry, error) {
		var (
			entry  watchlist.Entry
			status string
		)
		err := row.Scan(&entry.ID, &entry.UserID, &entry.AnimeID, &status, &entry.CreatedAt, &entry.UpdatedAt)
		entry.Status = watchlist.Status(status)
		return entry, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan anime entries: %w", err)
	}
	if entries == nil {
		entries = []watchlist.Entry{}
	}
	return entries, nil
}
