package account

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/animo-app/animo/backend/internal/model/account"
)

var (
	// ErrNotFound is returned when a user or preference record is missing.
	ErrNotFound = errors.New("user not found")
	// ErrAlreadyExists is returned when the email or username is taken.
	ErrAlreadyExists = errors.New("email or username is already in use")
	// ErrInvalidCredentials is returned by Login for an unknown email or a wrong password.
	ErrInvalidCredentials = errors.New("invalid email or password")
	// ErrInvalidInput wraps validation failures.
	ErrInvalidInput = errors.New("invalid input")
)

// Repository persists users and their preferences.
type Repository interface {
	CreateUser(ctx context.Context, user account.User) error
	UserByID(ctx context.Context, id string) (account.User, error)
	UserByEmail(ctx context.Context, email string) (account.User, error)
	UpdateUser(ctx context.Context, user account.User) error
	SavePreferences(ctx context.Context, prefs account.Preferences) error
	Preferences(ctx context.Context, userID string) (account.Preferences, error)
}

// MemoryRepository keeps accounts in process memory.
type MemoryRepository struct {
	mu    sync.RWMutex
	users map[string]account.User
	prefs map[string]account.Preferences
}

// NewMemoryRepository creates an empty repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		users: make(map[string]account.User),
		prefs: make(map[string]account.Preferences),
	}
}

func (r *MemoryRepository) CreateUser(_ context.Context, user account.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.users {
		if strings.EqualFold(existing.Email, user.Email) || existing.Username == user.Username {
			return ErrAlreadyExists
		}
	}
	r.users[user.ID] = user
	return nil
}

func (r *MemoryRepository) UserByID(_ context.Context, id string) (account.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	user, ok := r.users[id]
	if !ok {
		return account.User{}, ErrNotFound
	}
	return user, nil
}

func (r *MemoryRepository) UserByEmail(_ context.Context, email string) (account.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, user := range r.users {
		if strings.EqualFold(user.Email, email) {
			return user, nil
		}
	}
	return account.User{}, ErrNotFound
}

func (r *MemoryRepository) UpdateUser(_ context.Context, user account.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.users[user.ID]; !ok {
		return ErrNotFound
	}
	for id, existing := range r.users {
		if id != user.ID && existing.Username == user.Username {
			return ErrAlreadyExists
		}
	}
	r.users[user.ID] = user
	return nil
}

func (r *MemoryRepository) SavePreferences(_ context.Context, prefs account.Preferences) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.users[prefs.UserID]; !ok {
		return ErrNotFound
	}
	r.prefs[prefs.UserID] = prefs
	return nil
}

func (r *MemoryRepository) Preferences(_ context.Context, userID string) (account.Preferences, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	prefs, ok := r.prefs[userID]
	if !ok {
		return account.Preferences{}, ErrNotFound
	}
	return prefs, nil
}
