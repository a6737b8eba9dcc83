package ws

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	chatservice "github.com/animo-app/animo/backend/internal/service/chat"
)

type frame struct {
	Type   string         `json:"type"`
	ChatID string         `json:"chatId"`
	Data   map[string]any `json:"data"`
}

func dial(t *testing.T, gen chatservice.Generator, cadence time.Duration) *websocket.Conn {
	t.Helper()
	chatSvc := chatservice.NewService(chatservice.NewMemoryStore(0), gen)
	r := chi.NewRouter()
	New(chatSvc, cadence).RegisterRoutes(r)

	server := httptest.NewServer(r)
	t.Cleanup(server.Close)

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws/character-chat"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	var hello frame
	require.NoError(t, conn.ReadJSON(&hello))
	require.Equal(t, "result", hello.Type)
	require.Equal(t, "connected", hello.Data["type"])
	require.NotEmpty(t, hello.ChatID)
	return conn
}

func sendTurn(t *testing.T, conn *websocket.Conn, chatID string) {
	t.Helper()
	data, _ := json.Marshal(map[string]string{
		"chatId":        chatID,
		"characterName": "Spike",
		"biography":     "A bounty hunter",
		"userMessage":   "hey",
	})
	require.NoError(t, conn.WriteJSON(map[string]any{"type": "turn", "data": json.RawMessage(data)}))
}

func readUntilMessage(t *testing.T, conn *websocket.Conn) (deltas []string, message frame) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	for {
		var f frame
		require.NoError(t, conn.ReadJSON(&f))
		require.Equal(t, "result", f.Type, "unexpected frame %+v", f)
		switch f.Data["type"] {
		case "delta":
			deltas = append(deltas, f.Data["delta"].(string))
		case "message":
			return deltas, f
		}
	}
}

func TestTurnStreamsDeltasThenMessage(t *testing.T) {
	conn := dial(t, chatservice.GeneratorFunc(func(context.Context, string) (string, error) {
		return "(sigh) Whatever.", nil
	}), 0)

	sendTurn(t, conn, "bebop")
	deltas, message := readUntilMessage(t, conn)

	assert.Equal(t, "(sigh) Whatever.", strings.Join(deltas, ""))
	assert.Equal(t, "bebop", message.ChatID)
	assert.Equal(t, "(sigh) Whatever.", message.Data["response"])
	assert.Equal(t, false, message.Data["cancelled"])
	assert.Len(t, message.Data["segments"], 2)
}

func TestCancelStopsRevealButDeliversReply(t *testing.T) {
	release := make(chan struct{})
	conn := dial(t, chatservice.GeneratorFunc(func(ctx context.Context, _ string) (string, error) {
		select {
		case <-release:
		case <-ctx.Done():
			return "", ctx.Err()
		}
		return "See you, space cowboy.", nil
	}), time.Second)

	sendTurn(t, conn, "")
	require.NoError(t, conn.WriteJSON(map[string]any{"type": "cancel"}))
	// Give the read loop a moment to handle the cancel before the reply exists.
	time.Sleep(50 * time.Millisecond)
	close(release)

	deltas, message := readUntilMessage(t, conn)
	assert.Empty(t, deltas)
	assert.Equal(t, "See you, space cowboy.", message.Data["response"])
	assert.Equal(t, true, message.Data["cancelled"])
}

func TestSecondTurnWhileBusyIsRejected(t *testing.T) {
	release := make(chan struct{})
	conn := dial(t, chatservice.GeneratorFunc(func(ctx context.Context, _ string) (string, error) {
		<-release
		return "ok", nil
	}), 0)

	sendTurn(t, conn, "c1")
	sendTurn(t, conn, "c1")

	var busy frame
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	require.NoError(t, conn.ReadJSON(&busy))
	assert.Equal(t, "error", busy.Type)
	assert.Contains(t, busy.Data["message"], "already in progress")

	close(release)
	_, message := readUntilMessage(t, conn)
	assert.Equal(t, "ok", message.Data["response"])
}

func TestUnknownAndInvalidMessages(t *testing.T) {
	conn := dial(t, chatservice.GeneratorFunc(func(context.Context, string) (string, error) {
		return "x", nil
	}), 0)

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "dance"}))
	var f frame
	require.NoError(t, conn.ReadJSON(&f))
	assert.Equal(t, "error", f.Type)

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "cancel"}))
	require.NoError(t, conn.ReadJSON(&f))
	assert.Equal(t, "error", f.Type)
	assert.Equal(t, "no turn in progress", f.Data["message"])

	data, _ := json.Marshal(map[string]string{"chatId": "c1"})
	require.NoError(t, conn.WriteJSON(map[string]any{"type": "turn", "data": json.RawMessage(data)}))
	require.NoError(t, conn.ReadJSON(&f))
	assert.Equal(t, "error", f.Type)
	assert.Contains(t, f.Data["message"], "invalid chat turn")
}

func TestGenerationFailureSendsFallback(t *testing.T) {
	conn := dial(t, chatservice.GeneratorFunc(func(context.Context, string) (string, error) {
		return "", assert.AnError
	}), 0)

	sendTurn(t, conn, "c1")

	var f frame
	require.NoError(t, conn.ReadJSON(&f))
	assert.Equal(t, "error", f.Type)
	assert.Equal(t, chatservice.FallbackReply, f.Data["fallback"])

	_, message := readUntilMessage(t, conn)
	assert.Equal(t, chatservice.FallbackReply, message.Data["response"])
}
