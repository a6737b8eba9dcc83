package watchlist

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/google/uuid"

	"github.com/animo-app/animo/backend/internal/model/watchlist"
)

// ErrInvalidInput wraps validation failures.
var ErrInvalidInput = errors.New("invalid watch list entry")

// Service tracks what each user is watching.
type Service struct {
	repo Repository
	now  func() time.Time
}

// NewService wires a repository.
func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// Save sets the status of animeID on the user's list. created reports
// whether a new entry was added.
func (s *Service) Save(ctx context.Context, userID, animeID string, status watchlist.Status) (watchlist.Entry, bool, error) {
	userID = strings.TrimSpace(userID)
	animeID = strings.TrimSpace(animeID)

	err := validation.Errors{
		"userId":  validation.Validate(userID, validation.Required),
		"animeId": validation.Validate(animeID, validation.Required),
		"status":  validation.Validate(string(status), validation.Required, validation.By(knownStatus)),
	}.Filter()
	if err != nil {
		return watchlist.Entry{}, false, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}

	now := s.now().UTC()
	return s.repo.Upsert(ctx, watchlist.Entry{
		ID:        uuid.NewString(),
		UserID:    userID,
		AnimeID:   animeID,
		Status:    status,
		CreatedAt: now,
		UpdatedAt: now,
	})
}

// List returns the user's entries oldest first.
func (s *Service) List(ctx context.Context, userID string) ([]watchlist.Entry, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, fmt.Errorf("%w: userId is required", ErrInvalidInput)
	}
	return s.repo.ListByUser(ctx, userID)
}

func knownStatus(value interface{}) error {
	raw, _ := value.(string)
	if !watchlist.Status(raw).Valid() {
		return fmt.Errorf("must be one of %v", watchlist.Statuses())
	}
	return nil
}
