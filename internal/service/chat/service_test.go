package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/animo-app/animo/backend/internal/model/chat"
)

type recordingGenerator struct {
	mu      sync.Mutex
	prompts []string
	reply   func(prompt string) (string, error)
}

func (g *recordingGenerator) Generate(_ context.Context, prompt string) (string, error) {
	g.mu.Lock()
	g.prompts = append(g.prompts, prompt)
	g.mu.Unlock()
	if g.reply == nil {
		return "reply", nil
	}
	return g.reply(prompt)
}

func (g *recordingGenerator) lastPrompt() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.prompts) == 0 {
		return ""
	}
	return g.prompts[len(g.prompts)-1]
}

func turn(chatID, name, msg string) chat.TurnRequest {
	return chat.TurnRequest{
		ChatID:        chatID,
		CharacterName: name,
		Biography:     name + " is a swordsman from the east.",
		UserMessage:   msg,
	}
}

func TestConverseGrowsTranscript(t *testing.T) {
	store := NewMemoryStore(0)
	gen := &recordingGenerator{}
	svc := NewService(store, gen)
	ctx := context.Background()

	for i := 1; i <= 4; i++ {
		res, err := svc.Converse(ctx, turn("chat-1", "Zoro", fmt.Sprintf("message %d", i)))
		require.NoError(t, err)
		assert.Equal(t, "reply", res.Reply)
		assert.Equal(t, 1+2*i, res.TranscriptLength)

		lines, err := svc.Transcript(ctx, "chat-1")
		require.NoError(t, err)
		assert.Len(t, lines, 1+2*i)
	}

	lines, _ := svc.Transcript(ctx, "chat-1")
	assert.Equal(t, PrimingLine("Zoro", "Zoro is a swordsman from the east."), lines[0])
	assert.Equal(t, "User: message 1", lines[1])
	assert.Equal(t, "AI (Zoro): reply", lines[2])
}

func TestConversePromptIsWholeTranscript(t *testing.T) {
	store := NewMemoryStore(0)
	gen := &recordingGenerator{reply: func(string) (string, error) { return "(hmm) [nods] Hi.", nil }}
	svc := NewService(store, gen)
	ctx := context.Background()

	_, err := svc.Converse(ctx, turn("c", "Zoro", "hello"))
	require.NoError(t, err)
	_, err = svc.Converse(ctx, turn("c", "Zoro", "again"))
	require.NoError(t, err)

	want := strings.Join([]string{
		PrimingLine("Zoro", "Zoro is a swordsman from the east."),
		"User: hello",
		"AI (Zoro): (hmm) [nods] Hi.",
		"User: again",
	}, "\n")
	assert.Equal(t, want, gen.lastPrompt())
}

func TestConverseTransitions(t *testing.T) {
	svc := NewService(NewMemoryStore(0), &recordingGenerator{})
	ctx := context.Background()

	res, err := svc.Converse(ctx, turn("c", "Zoro", "one"))
	require.NoError(t, err)
	assert.Equal(t, chat.TransitionCreated, res.Transition)

	res, err = svc.Converse(ctx, turn("c", "Zoro", "two"))
	require.NoError(t, err)
	assert.Equal(t, chat.TransitionContinued, res.Transition)

	res, err = svc.Converse(ctx, turn("c", "Sanji", "three"))
	require.NoError(t, err)
	assert.Equal(t, chat.TransitionReset, res.Transition)
}

func TestConverseResetsOnCharacterMismatch(t *testing.T) {
	store := NewMemoryStore(0)
	gen := &recordingGenerator{}
	svc := NewService(store, gen)
	ctx := context.Background()

	for _, msg := range []string{"a", "b"} {
		_, err := svc.Converse(ctx, turn("shared", "Zoro", msg))
		require.NoError(t, err)
	}

	_, err := svc.Converse(ctx, turn("shared", "Sanji", "who are you?"))
	require.NoError(t, err)

	assert.Equal(t, PrimingLine("Sanji", "Sanji is a swordsman from the east.")+"\nUser: who are you?", gen.lastPrompt())

	lines, err := svc.Transcript(ctx, "shared")
	require.NoError(t, err)
	require.Len(t, lines, 3)
	assert.Equal(t, "AI (Sanji): reply", lines[2])
}

func TestConverseMismatchUsesStoredNameNotSubstring(t *testing.T) {
	svc := NewService(NewMemoryStore(0), &recordingGenerator{})
	ctx := context.Background()

	_, err := svc.Converse(ctx, turn("c", "Levi Ackerman", "hi"))
	require.NoError(t, err)

	// "Levi" is a substring of the priming line but not the stored name.
	res, err := svc.Converse(ctx, turn("c", "Levi", "hi"))
	require.NoError(t, err)
	assert.Equal(t, chat.TransitionReset, res.Transition)
}

func TestConverseInvalidRequestLeavesTranscript(t *testing.T) {
	store := NewMemoryStore(0)
	gen := &recordingGenerator{}
	svc := NewService(store, gen)
	ctx := context.Background()

	_, err := svc.Converse(ctx, turn("c", "Zoro", "first"))
	require.NoError(t, err)
	before, _ := svc.Transcript(ctx, "c")

	bad := turn("c", "Zoro", "")
	_, err = svc.Converse(ctx, bad)
	require.ErrorIs(t, err, ErrInvalidRequest)
	assert.Contains(t, err.Error(), "userMessage")

	after, _ := svc.Transcript(ctx, "c")
	assert.Equal(t, before, after)
	assert.Len(t, gen.prompts, 1)
}

func TestConverseInvalidRequestFields(t *testing.T) {
	svc := NewService(NewMemoryStore(0), &recordingGenerator{})
	cases := map[string]chat.TurnRequest{
		"chatId":        {CharacterName: "a", Biography: "b", UserMessage: "c"},
		"characterName": {ChatID: "x", Biography: "b", UserMessage: "c"},
		"biography":     {ChatID: "x", CharacterName: "a", UserMessage: "c"},
		"userMessage":   {ChatID: "x", CharacterName: "a", Biography: "b"},
	}
	for field, req := range cases {
		t.Run(field, func(t *testing.T) {
			_, err := svc.Converse(context.Background(), req)
			require.ErrorIs(t, err, ErrInvalidRequest)
			assert.Contains(t, err.Error(), field)
		})
	}

	_, err := svc.Transcript(context.Background(), "x")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestConverseGenerationFailureKeepsUserLine(t *testing.T) {
	store := NewMemoryStore(0)
	fail := true
	gen := &recordingGenerator{reply: func(string) (string, error) {
		if fail {
			return "", errors.New("quota exceeded")
		}
		return "back again", nil
	}}
	svc := NewService(store, gen)
	ctx := context.Background()

	_, err := svc.Converse(ctx, turn("c", "Zoro", "are you there?"))
	require.ErrorIs(t, err, ErrGenerationFailed)

	lines, _ := svc.Transcript(ctx, "c")
	require.Len(t, lines, 2)
	assert.Equal(t, "User: are you there?", lines[1])

	fail = false
	res, err := svc.Converse(ctx, turn("c", "Zoro", "hello?"))
	require.NoError(t, err)
	assert.Equal(t, "back again", res.Reply)

	prompt := gen.lastPrompt()
	assert.Equal(t, 1, strings.Count(prompt, "User: are you there?"))
	assert.True(t, strings.HasSuffix(prompt, "User: are you there?\nUser: hello?"))

	lines, _ = svc.Transcript(ctx, "c")
	assert.Len(t, lines, 4)
}

func TestConverseWithoutGenerator(t *testing.T) {
	svc := NewService(NewMemoryStore(0), nil)
	assert.False(t, svc.Enabled())

	_, err := svc.Converse(context.Background(), turn("c", "Zoro", "hi"))
	require.ErrorIs(t, err, ErrGeneratorMissing)
}

func TestConverseGenerationTimeout(t *testing.T) {
	gen := GeneratorFunc(func(ctx context.Context, _ string) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	})
	svc := NewService(NewMemoryStore(0), gen, WithGenerationTimeout(10*time.Millisecond))

	_, err := svc.Converse(context.Background(), turn("c", "Zoro", "hi"))
	require.ErrorIs(t, err, ErrGenerationFailed)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestConverseSerializesSameChat(t *testing.T) {
	store := NewMemoryStore(0)
	var inflight, peak int32
	gen := GeneratorFunc(func(_ context.Context, prompt string) (string, error) {
		n := atomic.AddInt32(&inflight, 1)
		defer atomic.AddInt32(&inflight, -1)
		for {
			p := atomic.LoadInt32(&peak)
			if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
				break
			}
		}
		time.Sleep(2 * time.Millisecond)
		lines := strings.Split(prompt, "\n")
		return "echo " + lines[len(lines)-1], nil
	})
	svc := NewService(store, gen)
	ctx := context.Background()

	const turns = 12
	var wg sync.WaitGroup
	for i := 0; i < turns; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := svc.Converse(ctx, turn("busy", "Zoro", fmt.Sprintf("m%d", i)))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&peak))

	lines, err := svc.Transcript(ctx, "busy")
	require.NoError(t, err)
	require.Len(t, lines, 1+2*turns)
	for i := 1; i < len(lines); i += 2 {
		require.True(t, strings.HasPrefix(lines[i], "User: "), lines[i])
		assert.Equal(t, CharacterLine("Zoro", "echo "+lines[i]), lines[i+1])
	}
	assert.Zero(t, svc.locks.size())
}

func TestConverseDifferentChatsRunInParallel(t *testing.T) {
	var entered sync.WaitGroup
	entered.Add(2)
	release := make(chan struct{})
	go func() {
		entered.Wait()
		close(release)
	}()

	gen := GeneratorFunc(func(ctx context.Context, _ string) (string, error) {
		entered.Done()
		select {
		case <-release:
			return "together", nil
		case <-time.After(2 * time.Second):
			return "", errors.New("chats were serialized")
		}
	})
	svc := NewService(NewMemoryStore(0), gen)

	var wg sync.WaitGroup
	for _, id := range []string{"left", "right"} {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			res, err := svc.Converse(context.Background(), turn(id, "Zoro", "hi"))
			assert.NoError(t, err)
			assert.Equal(t, "together", res.Reply)
		}(id)
	}
	wg.Wait()
}

func TestConverseRecordsReplyAfterCallerCancels(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	gen := GeneratorFunc(func(context.Context, string) (string, error) {
		cancel()
		return "finished anyway", nil
	})
	svc := NewService(NewMemoryStore(0), gen)

	_, err := svc.Converse(ctx, turn("c", "Zoro", "hi"))
	require.NoError(t, err)

	lines, err := svc.Transcript(context.Background(), "c")
	require.NoError(t, err)
	assert.Equal(t, "AI (Zoro): finished anyway", lines[len(lines)-1])
}
