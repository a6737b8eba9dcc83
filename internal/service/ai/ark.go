package ai

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/animo-app/animo/backend/internal/config"
)

// ArkGenerator runs the transcript through an eino chain ending in an Ark chat model.
type ArkGenerator struct {
	chain compose.Runnable[string, *schema.Message]
}

// NewArkGenerator builds the chat model from cfg and compiles the chain.
func NewArkGenerator(ctx context.Context, cfg config.ArkConfig) (*ArkGenerator, error) {
	chatModel, err := cfg.NewChatModel(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat model: %w", err)
	}
	return newArkGenerator(ctx, chatModel)
}

func newArkGenerator(ctx context.Context, chatModel model.BaseChatModel) (*ArkGenerator, error) {
	// The transcript is passed through verbatim; a format template would
	// trip over braces typed by the user.
	toMessages := compose.InvokableLambda(func(_ context.Context, transcript string) ([]*schema.Message, error) {
		return []*schema.Message{schema.UserMessage(transcript)}, nil
	})

	chain := compose.NewChain[string, *schema.Message]()
	chain.AppendLambda(toMessages)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile chat chain: %w", err)
	}

	return &ArkGenerator{chain: runnable}, nil
}

// Generate implements Generator.
func (g *ArkGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	response, err := g.chain.Invoke(ctx, prompt)
	if err != nil {
		return "", fmt.Errorf("failed to run AI chain: %w", err)
	}
	if response == nil || strings.TrimSpace(response.Content) == "" {
		return "", ErrEmptyResponse
	}
	return response.Content, nil
}
