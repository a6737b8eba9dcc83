package chat

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/animo-app/animo/backend/internal/model/chat"
	"github.com/animo-app/animo/backend/internal/observability"
)

// Generator produces a reply for a newline-joined transcript.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// GeneratorFunc adapts a plain function to Generator.
type GeneratorFunc func(ctx context.Context, prompt string) (string, error)

// Generate calls f.
func (f GeneratorFunc) Generate(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

// Service runs conversational turns against a session store.
//
// A turn is committed in two phases: the user line is appended before the
// generator is called and stays recorded if generation fails; the character
// line is appended only on success. Turns for one chat id are serialized;
// turns for different chat ids run in parallel.
type Service struct {
	store     Store
	generator Generator
	locks     *keyLocker
	metrics   *observability.Metrics
	timeout   time.Duration
}

// Option customises a Service.
type Option func(*Service)

// WithMetrics records turn and generation metrics.
func WithMetrics(m *observability.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithGenerationTimeout bounds each generation call.
func WithGenerationTimeout(d time.Duration) Option {
	return func(s *Service) { s.timeout = d }
}

// NewService wires a store and generator. gen may be nil, in which case
// Converse fails with ErrGeneratorMissing.
func NewService(store Store, gen Generator, opts ...Option) *Service {
	s := &Service{
		store:     store,
		generator: gen,
		locks:     newKeyLocker(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Enabled reports whether a generator is configured.
func (s *Service) Enabled() bool {
	return s != nil && s.generator != nil
}

// Converse validates req, brings the session into the right state, records
// the user line, generates a reply from the full transcript and records it.
func (s *Service) Converse(ctx context.Context, req chat.TurnRequest) (chat.TurnResult, error) {
	if err := ValidateTurn(req); err != nil {
		s.metrics.ObserveTurn("", "invalid")
		return chat.TurnResult{}, err
	}
	if s.generator == nil {
		return chat.TurnResult{}, ErrGeneratorMissing
	}

	unlock, err := s.locks.Lock(ctx, req.ChatID)
	if err != nil {
		return chat.TurnResult{}, fmt.Errorf("wait for chat %s: %w", req.ChatID, err)
	}
	defer unlock()

	transition, err := s.ensureSession(ctx, req)
	if err != nil {
		return chat.TurnResult{}, err
	}

	if err := s.store.Append(ctx, req.ChatID, UserLine(req.UserMessage)); err != nil {
		return chat.TurnResult{}, fmt.Errorf("record user line: %w", err)
	}

	session, err := s.store.Get(ctx, req.ChatID)
	if err != nil {
		return chat.TurnResult{}, fmt.Errorf("load transcript: %w", err)
	}
	prompt := strings.Join(session.Transcript, "\n")

	reply, err := s.generate(ctx, prompt)
	if err != nil {
		s.metrics.ObserveTurn(string(transition), "generation_failed")
		log.Printf("[chat] generation failed chat=%s character=%s transition=%s: %v", req.ChatID, req.CharacterName, transition, err)
		return chat.TurnResult{}, fmt.Errorf("%w: %w", ErrGenerationFailed, err)
	}

	// The reply exists now; record it even if the caller has gone away.
	if err := s.store.Append(context.WithoutCancel(ctx), req.ChatID, CharacterLine(req.CharacterName, reply)); err != nil {
		return chat.TurnResult{}, fmt.Errorf("record character line: %w", err)
	}

	s.metrics.ObserveTurn(string(transition), "ok")
	log.Printf("[chat] turn complete chat=%s character=%s transition=%s lines=%d reply_len=%d",
		req.ChatID, req.CharacterName, transition, len(session.Transcript)+1, len(reply))

	return chat.TurnResult{
		Reply:            reply,
		ChatID:           req.ChatID,
		Transition:       transition,
		TranscriptLength: len(session.Transcript) + 1,
	}, nil
}

// ensureSession creates the session on first use and reseeds it when the
// stored character differs from the requested one.
func (s *Service) ensureSession(ctx context.Context, req chat.TurnRequest) (chat.Transition, error) {
	session, err := s.store.Get(ctx, req.ChatID)
	var transition chat.Transition
	switch {
	case errors.Is(err, ErrSessionNotFound):
		transition = chat.TransitionCreated
	case err != nil:
		return "", fmt.Errorf("load session: %w", err)
	case session.CharacterName != req.CharacterName:
		transition = chat.TransitionReset
		log.Printf("[chat] character changed chat=%s from=%s to=%s, resetting", req.ChatID, session.CharacterName, req.CharacterName)
	default:
		return chat.TransitionContinued, nil
	}

	if _, err := s.store.CreateOrReset(ctx, req.ChatID, req.CharacterName, PrimingLine(req.CharacterName, req.Biography)); err != nil {
		return "", fmt.Errorf("seed session: %w", err)
	}
	return transition, nil
}

func (s *Service) generate(ctx context.Context, prompt string) (string, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	start := time.Now()
	reply, err := s.generator.Generate(ctx, prompt)
	s.metrics.ObserveGeneration(time.Since(start), err)
	return reply, err
}

// Transcript returns a copy of the stored transcript for chatID.
func (s *Service) Transcript(ctx context.Context, chatID string) ([]string, error) {
	session, err := s.store.Get(ctx, chatID)
	if err != nil {
		return nil, err
	}
	return session.Transcript, nil
}

// ValidateTurn reports ErrInvalidRequest when any field of req is empty.
func ValidateTurn(req chat.TurnRequest) error {
	err := validation.ValidateStruct(&req,
		validation.Field(&req.ChatID, validation.Required),
		validation.Field(&req.CharacterName, validation.Required),
		validation.Field(&req.Biography, validation.Required),
		validation.Field(&req.UserMessage, validation.Required),
	)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	return nil
}
