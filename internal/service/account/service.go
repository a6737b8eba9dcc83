package account

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/mail"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/animo-app/animo/backend/internal/model/account"
)

// RegisterInput is the payload of a sign-up.
type RegisterInput struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// ProfileUpdate changes only the fields that are set.
type ProfileUpdate struct {
	Username  string     `json:"username"`
	Country   string     `json:"country"`
	BirthDate *time.Time `json:"birthDate"`
}

// PreferencesInput is the onboarding questionnaire.
type PreferencesInput struct {
	UserID              string   `json:"userId"`
	SelectedGenres      []string `json:"selectedGenres"`
	FavoriteAnimes      []string `json:"favoriteAnimes"`
	RecommendedFeatures []string `json:"recommendedFeatures"`
}

// AuthResult is returned by Register and Login.
type AuthResult struct {
	User  account.User `json:"user"`
	Token string       `json:"token"`
}

// Service implements sign-up, login and profile management.
type Service struct {
	repo   Repository
	tokens *TokenIssuer
	cost   int
	now    func() time.Time
}

// NewService wires a repository and token issuer.
func NewService(repo Repository, tokens *TokenIssuer) *Service {
	return &Service{
		repo:   repo,
		tokens: tokens,
		cost:   bcrypt.DefaultCost,
		now:    time.Now,
	}
}

// Register creates a user with a hashed password and the default avatar.
func (s *Service) Register(ctx context.Context, in RegisterInput) (AuthResult, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))

	err := validation.ValidateStruct(&in,
		validation.Field(&in.Username, validation.Required, validation.Length(1, 64)),
		validation.Field(&in.Email, validation.Required, validation.By(emailFormat)),
		validation.Field(&in.Password, validation.Required, validation.Length(6, 72)),
	)
	if err != nil {
		return AuthResult{}, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.cost)
	if err != nil {
		return AuthResult{}, fmt.Errorf("hash password: %w", err)
	}

	user := account.User{
		ID:           uuid.NewString(),
		Username:     in.Username,
		Email:        in.Email,
		PasswordHash: string(hash),
		Avatar:       account.DefaultAvatar,
		CreatedAt:    s.now().UTC(),
	}
	if err := s.repo.CreateUser(ctx, user); err != nil {
		return AuthResult{}, err
	}

	log.Printf("[account] registered user=%s", user.ID)
	return s.authResult(user)
}

// Login checks the password for email and issues a token.
func (s *Service) Login(ctx context.Context, email, password string) (AuthResult, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return AuthResult{}, fmt.Errorf("%w: email and password are required", ErrInvalidInput)
	}

	user, err := s.repo.UserByEmail(ctx, email)
	if errors.Is(err, ErrNotFound) {
		return AuthResult{}, ErrInvalidCredentials
	}
	if err != nil {
		return AuthResult{}, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return AuthResult{}, ErrInvalidCredentials
	}
	return s.authResult(user)
}

// Profile returns the user record.
func (s *Service) Profile(ctx context.Context, userID string) (account.User, error) {
	if strings.TrimSpace(userID) == "" {
		return account.User{}, fmt.Errorf("%w: userId is required", ErrInvalidInput)
	}
	return s.repo.UserByID(ctx, userID)
}

// UpdateProfile applies the non-empty fields of update.
func (s *Service) UpdateProfile(ctx context.Context, userID string, update ProfileUpdate) (account.User, error) {
	user, err := s.Profile(ctx, userID)
	if err != nil {
		return account.User{}, err
	}

	if username := strings.TrimSpace(update.Username); username != "" {
		if err := validation.Validate(username, validation.Length(1, 64)); err != nil {
			return account.User{}, fmt.Errorf("%w: username: %w", ErrInvalidInput, err)
		}
		user.Username = username
	}
	if country := strings.TrimSpace(update.Country); country != "" {
		user.Country = country
	}
	if update.BirthDate != nil {
		if update.BirthDate.After(s.now()) {
			return account.User{}, fmt.Errorf("%w: birthDate is in the future", ErrInvalidInput)
		}
		birth := update.BirthDate.UTC()
		user.BirthDate = &birth
	}

	if err := s.repo.UpdateUser(ctx, user); err != nil {
		return account.User{}, err
	}
	return user, nil
}

// UpdateAvatar replaces the avatar URL.
func (s *Service) UpdateAvatar(ctx context.Context, userID, avatar string) (account.User, error) {
	avatar = strings.TrimSpace(avatar)
	if avatar == "" {
		return account.User{}, fmt.Errorf("%w: avatar is required", ErrInvalidInput)
	}

	user, err := s.Profile(ctx, userID)
	if err != nil {
		return account.User{}, err
	}

	user.Avatar = avatar
	if err := s.repo.UpdateUser(ctx, user); err != nil {
		return account.User{}, err
	}
	return user, nil
}

// SavePreferences upserts the onboarding choices of a user.
func (s *Service) SavePreferences(ctx context.Context, in PreferencesInput) (account.Preferences, error) {
	err := validation.ValidateStruct(&in,
		validation.Field(&in.UserID, validation.Required),
		validation.Field(&in.SelectedGenres, validation.NotNil),
		validation.Field(&in.FavoriteAnimes, validation.NotNil),
	)
	if err != nil {
		return account.Preferences{}, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}

	features := in.RecommendedFeatures
	if features == nil {
		features = []string{}
	}

	prefs := account.Preferences{
		UserID:              in.UserID,
		SelectedGenres:      in.SelectedGenres,
		FavoriteAnimes:      in.FavoriteAnimes,
		RecommendedFeatures: features,
		UpdatedAt:           s.now().UTC(),
	}
	if err := s.repo.SavePreferences(ctx, prefs); err != nil {
		return account.Preferences{}, err
	}
	return prefs, nil
}

// Preferences returns the stored onboarding choices.
func (s *Service) Preferences(ctx context.Context, userID string) (account.Preferences, error) {
	return s.repo.Preferences(ctx, userID)
}

func (s *Service) authResult(user account.User) (AuthResult, error) {
	token, err := s.tokens.Issue(user.ID, user.Email)
	if err != nil {
		return AuthResult{}, err
	}
	return AuthResult{User: user, Token: token}, nil
}

func emailFormat(value interface{}) error {
	email, _ := value.(string)
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return errors.New("must be a valid email address")
	}
	return nil
}
