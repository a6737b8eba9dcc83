package ai

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/animo-app/animo/backend/internal/config"
)

var (
	// ErrNotConfigured is returned by New when the selected provider has no credentials.
	ErrNotConfigured = errors.New("ai provider not configured")
	// ErrEmptyResponse is returned when a model answers with no text.
	ErrEmptyResponse = errors.New("model returned an empty response")
)

const defaultRetryDelay = 500 * time.Millisecond

// Generator turns a newline-joined transcript into the next character line.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// New builds the generator selected by cfg.Provider, wrapped with retries.
func New(ctx context.Context, cfg config.AIConfig) (Generator, error) {
	if !cfg.Enabled() {
		return nil, fmt.Errorf("%w: provider=%s", ErrNotConfigured, cfg.Provider)
	}

	var (
		gen Generator
		err error
	)
	switch cfg.Provider {
	case config.ProviderGemini:
		gen, err = NewGeminiGenerator(ctx, cfg.Gemini)
	case config.ProviderArk:
		gen, err = NewArkGenerator(ctx, cfg.Ark)
	case config.ProviderOpenAI:
		gen = NewOpenAIGenerator(cfg.OpenAI)
	default:
		return nil, fmt.Errorf("unknown ai provider %q", cfg.Provider)
	}
	if err != nil {
		return nil, err
	}

	log.Printf("[ai] generator ready: provider=%s retries=%d", cfg.Provider, cfg.MaxRetries)
	return WithRetry(gen, cfg.MaxRetries, defaultRetryDelay), nil
}
