package chat

import "time"

// Session is one character conversation. Transcript[0] is always the
// priming line written when the session was created or reset.
type Session struct {
	ChatID        string    `json:"chatId"`
	CharacterName string    `json:"characterName"`
	Transcript    []string  `json:"transcript"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// PrimingLine returns the persona instruction, or "" for an empty session.
func (s Session) PrimingLine() string {
	if len(s.Transcript) == 0 {
		return ""
	}
	return s.Transcript[0]
}

// Clone returns a copy that does not share the transcript slice.
func (s Session) Clone() Session {
	s.Transcript = append([]string(nil), s.Transcript...)
	return s
}

// Transition names how a turn found its session.
type Transition string

const (
	// TransitionCreated marks the first turn of a previously unseen chat.
	TransitionCreated Transition = "created"
	// TransitionContinued marks a turn appended to an active session.
	TransitionContinued Transition = "continued"
	// TransitionReset marks a turn whose character differed from the stored one;
	// the old transcript was discarded and the session reseeded.
	TransitionReset Transition = "reset"
)
