package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/animo-app/animo/backend/internal/analysis/markup"
	chatservice "github.com/animo-app/animo/backend/internal/service/chat"
)

func setupRouter(gen chatservice.Generator) (*chi.Mux, *chatservice.Service) {
	chatSvc := chatservice.NewService(chatservice.NewMemoryStore(0), gen)
	handler := New(chatSvc)

	r := chi.NewRouter()
	handler.RegisterRoutes(r)
	return r, chatSvc
}

func postTurn(r http.Handler, body any) *httptest.ResponseRecorder {
	payload, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, "/character-chat", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	return resp
}

func validTurn() map[string]string {
	return map[string]string{
		"chatId":        "chat-1",
		"characterName": "Naruto",
		"biography":     "A ninja",
		"userMessage":   "hi",
	}
}

func TestTurnReturnsReplyAndSegments(t *testing.T) {
	r, _ := setupRouter(chatservice.GeneratorFunc(func(context.Context, string) (string, error) {
		return "(Hmm) [waves] Hey!", nil
	}))

	resp := postTurn(r, validTurn())
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}

	var body TurnResponse
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Response != "(Hmm) [waves] Hey!" {
		t.Fatalf("unexpected response %q", body.Response)
	}

	want := []markup.Segment{
		{Text: "(Hmm)", Kind: markup.Thought},
		{Text: " ", Kind: markup.Normal},
		{Text: "[waves]", Kind: markup.Action},
		{Text: " Hey!", Kind: markup.Normal},
	}
	if len(body.Segments) != len(want) {
		t.Fatalf("expected %d segments, got %+v", len(want), body.Segments)
	}
	for i := range want {
		if body.Segments[i] != want[i] {
			t.Fatalf("segment %d: expected %+v, got %+v", i, want[i], body.Segments[i])
		}
	}
	if body.Transition != "created" {
		t.Fatalf("expected created transition, got %q", body.Transition)
	}
}

func TestTurnMissingFields(t *testing.T) {
	r, _ := setupRouter(chatservice.GeneratorFunc(func(context.Context, string) (string, error) {
		t.Fatal("generator must not be called")
		return "", nil
	}))

	body := validTurn()
	delete(body, "userMessage")
	resp := postTurn(r, body)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
}

func TestTurnInvalidJSON(t *testing.T) {
	r, _ := setupRouter(nil)

	req := httptest.NewRequest(http.MethodPost, "/character-chat", bytes.NewReader([]byte("{")))
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
}

func TestTurnWithoutGenerator(t *testing.T) {
	r, _ := setupRouter(nil)

	resp := postTurn(r, validTurn())
	if resp.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", resp.Code)
	}
}

func TestTurnGenerationFailureReturnsFallback(t *testing.T) {
	r, chatSvc := setupRouter(chatservice.GeneratorFunc(func(context.Context, string) (string, error) {
		return "", errors.New("upstream down")
	}))

	resp := postTurn(r, validTurn())
	if resp.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", resp.Code)
	}

	var body map[string]string
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["fallback"] != chatservice.FallbackReply {
		t.Fatalf("unexpected fallback %q", body["fallback"])
	}
	if body["error"] != "Failed to generate response" {
		t.Fatalf("unexpected error %q", body["error"])
	}

	transcript, err := chatSvc.Transcript(context.Background(), "chat-1")
	if err != nil {
		t.Fatalf("Transcript err: %v", err)
	}
	if len(transcript) != 2 || transcript[1] != "User: hi" {
		t.Fatalf("expected the user line to stay recorded, got %v", transcript)
	}
}

func TestTranscriptIsNotServed(t *testing.T) {
	r, chatSvc := setupRouter(chatservice.GeneratorFunc(func(context.Context, string) (string, error) {
		return "Believe it!", nil
	}))
	turn := validTurn()
	turn["userMessage"] = "my secret"
	if resp := postTurn(r, turn); resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/character-chat/chat-1/transcript", nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.Code)
	}
	if strings.Contains(resp.Body.String(), "my secret") {
		t.Fatalf("transcript leaked: %s", resp.Body.String())
	}

	transcript, err := chatSvc.Transcript(context.Background(), "chat-1")
	if err != nil {
		t.Fatalf("Transcript err: %v", err)
	}
	if len(transcript) != 3 || transcript[2] != "AI (Naruto): Believe it!" {
		t.Fatalf("unexpected transcript %v", transcript)
	}
}
