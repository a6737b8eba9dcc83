package watchlist

import "time"

// Status is the user's progress on a show.
type Status string

const (
	WantToWatch      Status = "want_to_watch"
	WatchingNow      Status = "watching_now"
	DoneWatching     Status = "done_watching"
	CompleteLater    Status = "complete_later"
	DontWantToFinish Status = "dont_want"
)

// Statuses lists every accepted status in display order.
func Statuses() []Status {
	return []Status{WantToWatch, WatchingNow, DoneWatching, CompleteLater, DontWantToFinish}
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	for _, known := range Statuses() {
		if s == known {
			return true
		}
	}
	return false
}

// Entry is one anime on a user's list. AnimeID refers to the external
// catalog id the client received from the anime database API.
type Entry struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	AnimeID   string    `json:"animeId"`
	Status    Status    `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}
