package postgres

import (
	"context"
	"fmt"

	"github.com/animo-app/animo/backend/internal/model/account"
	accountservice "github.com/animo-app/animo/backend/internal/service/account"
)

var _ accountservice.Repository = (*AccountRepository)(nil)

// AccountRepository stores users and preferences in Postgres.
type AccountRepository struct {
	db DBTX
}

// NewAccountRepository creates a repository over db.
func NewAccountRepository(db DBTX) *AccountRepository {
	return &AccountRepository{db: db}
}

const userColumns = `id, username, email, password_hash, avatar, country, birth_date, created_at`

func (r *AccountRepository) CreateUser(ctx context.Context, user account.User) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO users (`+userColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, user.ID, user.Username, user.Email, user.PasswordHash, user.Avatar, user.Country, user.BirthDate, user.CreatedAt)
	if err != nil {
		if IsPgDuplicateError(err) {
			return accountservice.ErrAlreadyExists
		}
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

func (r *AccountRepository) UserByID(ctx context.Context, id string) (account.User, error) {
	return r.scanUser(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
}

func (r *AccountRepository) UserByEmail(ctx context.Context, email string) (account.User, error) {
	return r.scanUser(ctx, `SELECT `+userColumns+` FROM users WHERE lower(email) = lower($1)`, email)
}

func (r *AccountRepository) scanUser(ctx context.Context, query string, arg string) (account.User, error) {
	var user account.User
	err := r.db.QueryRow(ctx, query, arg).Scan(
		&user.ID,
		&user.Username,
		&user.Email,
		&user.PasswordHash,
		&user.Avatar,
		&user.Country,
		&user.BirthDate,
		&user.CreatedAt,
	)
	if err != nil {
		if IsPgNoRowsError(err) {
			return account.User{}, accountservice.ErrNotFound
		}
		return account.User{}, fmt.Errorf("get user: %w", err)
	}
	return user, nil
}

func (r *AccountRepository) UpdateUser(ctx context.Context, user account.User) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE users
		SET username = $2, avatar = $3, country = $4, birth_date = $5
		WHERE id = $1
	`, user.ID, user.Username, user.Avatar, user.Country, user.BirthDate)
	if err != nil {
		if IsPgDuplicateError(err) {
			return accountservice.ErrAlreadyExists
		}
		return fmt.Errorf("update user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return accountservice.ErrNotFound
	}
	return nil
}

func (r *AccountRepository) SavePreferences(ctx context.Context, prefs account.Preferences) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO user_preferences (user_id, selected_genres, favorite_animes, recommended_features, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id) DO UPDATE SET
			selected_genres = EXCLUDED.selected_genres,
			favorite_animes = EXCLUDED.favorite_animes,
			recommended_features = EXCLUDED.recommended_features,
			updated_at = EXCLUDED.updated_at
	`, prefs.UserID, prefs.SelectedGenres, prefs.FavoriteAnimes, prefs.RecommendedFeatures, prefs.UpdatedAt)
	if err != nil {
		if IsPgForeignKeyError(err) {
			return accountservice.ErrNotFound
		}
		return fmt.Errorf("save preferences: %w", err)
	}
	return nil
}

func (r *AccountRepository) Preferences(ctx context.Context, userID string) (account.Preferences, error) {
	var prefs account.Preferences
	err := r.db.QueryRow(ctx, `
		SELECT user_id, selected_genres, favorite_animes, recommended_features, updated_at
		FROM user_preferences
		WHERE user_id = $1
	`, userID).Scan(
		&prefs.UserID,
		&prefs.SelectedGenres,
		&prefs.FavoriteAnimes,
		&prefs.RecommendedFeatures,
		&prefs.UpdatedAt,
	)
	if err != nil {
		if IsPgNoRowsError(err) {
			return account.Preferences{}, accountservice.ErrNotFound
		}
		return account.Preferences{}, fmt.Errorf("get preferences: %w", err)
	}
	return prefs, nil
}
