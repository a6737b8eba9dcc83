package chat

import (
	"context"
	"errors"

	"github.com/animo-app/animo/backend/internal/model/chat"
)

var (
	ErrInvalidRequest   = errors.New("invalid chat turn")
	ErrGenerationFailed = errors.New("failed to generate response")
	ErrSessionNotFound  = errors.New("session not found")
	ErrGeneratorMissing = errors.New("generator not configured")
	errEmptyChatID      = errors.New("chat id is required")
	errEmptyPrimingLine = errors.New("priming line is required")
)

// Store keeps chat transcripts keyed by chat id.
//
// Implementations must make every call atomic on its own; serializing whole
// turns for one chat id is the Service's job.
type Store interface {
	// Get returns a copy of the session or ErrSessionNotFound.
	Get(ctx context.Context, chatID string) (chat.Session, error)
	// CreateOrReset replaces any existing session with one holding only
	// the priming line.
	CreateOrReset(ctx context.Context, chatID, characterName, primingLine string) (chat.Session, error)
	// Append adds a line to an existing session or fails with ErrSessionNotFound.
	Append(ctx context.Context, chatID, line string) error
}
