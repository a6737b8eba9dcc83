package stream

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	chatservice "github.com/animo-app/animo/backend/internal/service/chat"
)

type event struct {
	name string
	data string
}

func readEvents(t *testing.T, body string) []event {
	t.Helper()
	var (
		events  []event
		current event
	)
	scanner := bufio.NewScanner(strings.NewReader(body))
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "event: "):
			current.name = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			current.data = strings.TrimPrefix(line, "data: ")
		case line == "":
			events = append(events, current)
			current = event{}
		}
	}
	return events
}

func serve(gen chatservice.Generator, body string) *httptest.ResponseRecorder {
	chatSvc := chatservice.NewService(chatservice.NewMemoryStore(0), gen)
	r := chi.NewRouter()
	New(chatSvc, 0).RegisterRoutes(r)

	req := httptest.NewRequest(http.MethodPost, "/character-chat/stream", strings.NewReader(body))
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	return resp
}

const turnBody = `{"chatId":"c1","characterName":"Mikasa","biography":"A soldier","userMessage":"hi"}`

func TestStreamRevealsReply(t *testing.T) {
	resp := serve(chatservice.GeneratorFunc(func(context.Context, string) (string, error) {
		return "[nods] Ok", nil
	}), turnBody)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	if ct := resp.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("unexpected content type %q", ct)
	}

	events := readEvents(t, resp.Body.String())
	var names []string
	var revealed strings.Builder
	for _, ev := range events {
		names = append(names, ev.name)
		if ev.name == "delta" {
			var frame struct {
				Delta string `json:"delta"`
			}
			if err := json.Unmarshal([]byte(ev.data), &frame); err != nil {
				t.Fatalf("decode delta: %v", err)
			}
			revealed.WriteString(frame.Delta)
		}
	}

	if names[0] != "start" || names[len(names)-2] != "message" || names[len(names)-1] != "end" {
		t.Fatalf("unexpected event order %v", names)
	}
	if len(names) != 2+len("[nods] Ok")+1 {
		t.Fatalf("expected one delta per rune, got %v", names)
	}
	if revealed.String() != "[nods] Ok" {
		t.Fatalf("deltas reassemble to %q", revealed.String())
	}

	var message struct {
		Response string `json:"response"`
		Segments []struct {
			Kind string `json:"kind"`
		} `json:"segments"`
	}
	if err := json.Unmarshal([]byte(events[len(events)-2].data), &message); err != nil {
		t.Fatalf("decode message: %v", err)
	}
	if message.Response != "[nods] Ok" || len(message.Segments) != 2 || message.Segments[0].Kind != "action" {
		t.Fatalf("unexpected message %+v", message)
	}
}

func TestStreamGenerationFailureSendsFallback(t *testing.T) {
	resp := serve(chatservice.GeneratorFunc(func(context.Context, string) (string, error) {
		return "", errors.New("boom")
	}), turnBody)

	events := readEvents(t, resp.Body.String())
	if events[0].name != "start" || events[1].name != "error" {
		t.Fatalf("expected start then error, got %+v", events[:2])
	}

	last := events[len(events)-2]
	if last.name != "message" || !strings.Contains(last.data, "having trouble understanding") {
		t.Fatalf("expected fallback message, got %+v", last)
	}
	if events[len(events)-1].name != "end" {
		t.Fatal("expected end event")
	}
}

func TestStreamRejectsInvalidRequestBeforeStreaming(t *testing.T) {
	resp := serve(chatservice.GeneratorFunc(func(context.Context, string) (string, error) {
		return "x", nil
	}), `{"chatId":"c1"}`)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
	if strings.Contains(resp.Body.String(), "event:") {
		t.Fatal("no events expected for a rejected request")
	}
}

func TestStreamWithoutGenerator(t *testing.T) {
	resp := serve(nil, turnBody)
	if resp.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", resp.Code)
	}
}

func TestStreamStopsWhenClientDisconnects(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	chatSvc := chatservice.NewService(chatservice.NewMemoryStore(0), chatservice.GeneratorFunc(func(context.Context, string) (string, error) {
		cancel()
		return "a long reply that will never be fully typed", nil
	}))
	r := chi.NewRouter()
	New(chatSvc, 0).RegisterRoutes(r)

	req := httptest.NewRequest(http.MethodPost, "/character-chat/stream", strings.NewReader(turnBody)).WithContext(ctx)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	for _, ev := range readEvents(t, resp.Body.String()) {
		if ev.name == "delta" || ev.name == "message" || ev.name == "end" {
			t.Fatalf("unexpected %s event after disconnect", ev.name)
		}
	}

	transcript, err := chatSvc.Transcript(context.Background(), "c1")
	if err != nil {
		t.Fatalf("Transcript err: %v", err)
	}
	if len(transcript) != 3 {
		t.Fatalf("the reply must still be recorded, got %v", transcript)
	}
}
