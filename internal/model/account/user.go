package account

import "time"

// DefaultAvatar is assigned to new users until they pick one.
const DefaultAvatar = "https://robohash.org/default.png?set=set5"

// User is a registered account. PasswordHash never leaves the server.
type User struct {
	ID           string     `json:"id"`
	Username     string     `json:"username"`
	Email        string     `json:"email"`
	PasswordHash string     `json:"-"`
	Avatar       string     `json:"avatar"`
	Country      string     `json:"country,omitempty"`
	BirthDate    *time.Time `json:"birthDate,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
}

// Preferences captures onboarding choices used for recommendations.
type Preferences struct {
	UserID              string    `json:"userId"`
	SelectedGenres      []string  `json:"selectedGenres"`
	FavoriteAnimes      []string  `json:"favoriteAnimes"`
	RecommendedFeatures []string  `json:"recommendedFeatures"`
	UpdatedAt           time.Time `json:"updatedAt"`
}
