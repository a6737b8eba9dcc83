package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/animo-app/animo/backend/internal/analysis/markup"
	chatHandler "github.com/animo-app/animo/backend/internal/handler/chat"
	"github.com/animo-app/animo/backend/internal/model/chat"
	chatService "github.com/animo-app/animo/backend/internal/service/chat"
)

const (
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
	writeWait  = 10 * time.Second
)

// Handler runs chat turns over a websocket so clients can cancel the
// typing reveal of a reply mid-way.
type Handler struct {
	chatSvc  *chatService.Service
	cadence  time.Duration
	upgrader websocket.Upgrader
}

// New creates a websocket chat handler.
func New(chatSvc *chatService.Service, cadence time.Duration) *Handler {
	return &Handler{
		chatSvc: chatSvc,
		cadence: cadence,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// RegisterRoutes mounts the websocket route on r.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/ws/character-chat", h.handleWebSocket)
}

type inboundMessage struct {
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data"`
	Timestamp int64           `json:"timestamp"`
}

type outgoingMessage struct {
	Type      string      `json:"type"`
	ChatID    string      `json:"chatId,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp int64       `json:"timestamp"`
}

// connection serializes writes and tracks the turn in flight.
type connection struct {
	conn    *websocket.Conn
	chatID  string
	writeMu sync.Mutex

	turnMu     sync.Mutex
	busy       bool
	stopReveal context.CancelFunc
}

func (c *connection) write(msg outgoingMessage) {
	msg.Timestamp = time.Now().Unix()

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.conn.WriteJSON(msg); err != nil {
		log.Printf("[websocket] write %s failed: %v", msg.Type, err)
	}
}

func (c *connection) sendResult(chatID string, data map[string]any) {
	c.write(outgoingMessage{Type: "result", ChatID: chatID, Data: data})
}

func (c *connection) sendError(chatID, message string, extra map[string]any) {
	data := map[string]any{"message": message}
	for k, v := range extra {
		data[k] = v
	}
	c.write(outgoingMessage{Type: "error", ChatID: chatID, Data: data})
}

// beginTurn claims the connection for one turn and returns the context
// that bounds its reveal.
func (c *connection) beginTurn(ctx context.Context) (context.Context, bool) {
	c.turnMu.Lock()
	defer c.turnMu.Unlock()

	if c.busy {
		return nil, false
	}
	revealCtx, cancel := context.WithCancel(ctx)
	c.busy = true
	c.stopReveal = cancel
	return revealCtx, true
}

func (c *connection) endTurn() {
	c.turnMu.Lock()
	defer c.turnMu.Unlock()

	if c.stopReveal != nil {
		c.stopReveal()
	}
	c.busy = false
	c.stopReveal = nil
}

// cancelReveal stops the running reveal, reporting whether one was running.
func (c *connection) cancelReveal() bool {
	c.turnMu.Lock()
	defer c.turnMu.Unlock()

	if !c.busy || c.stopReveal == nil {
		return false
	}
	c.stopReveal()
	return true
}

func (h *Handler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if !h.chatSvc.Enabled() {
		http.Error(w, "character chat is not configured", http.StatusServiceUnavailable)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[websocket] upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	c := &connection{conn: conn, chatID: uuid.NewString()}
	log.Printf("[websocket] new connection chat=%s", c.chatID)

	ctx, cancel := context.WithCancel(r.Context())
	var turns sync.WaitGroup
	defer func() {
		cancel()
		turns.Wait()
	}()

	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	go h.pingLoop(ctx, c)

	c.sendResult(c.chatID, map[string]any{"type": "connected"})

	for {
		var msg inboundMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("[websocket] read error: %v", err)
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))

		switch msg.Type {
		case "turn":
			var req chat.TurnRequest
			if err := json.Unmarshal(msg.Data, &req); err != nil {
				c.sendError("", "invalid turn payload", nil)
				continue
			}
			if req.ChatID == "" {
				req.ChatID = c.chatID
			}

			revealCtx, ok := c.beginTurn(ctx)
			if !ok {
				c.sendError(req.ChatID, "a turn is already in progress", nil)
				continue
			}

			turns.Add(1)
			go func() {
				defer turns.Done()
				defer c.endTurn()
				h.runTurn(ctx, revealCtx, c, req)
			}()
		case "cancel":
			if !c.cancelReveal() {
				c.sendError("", "no turn in progress", nil)
			}
		case "ping":
			c.sendResult("", map[string]any{"type": "pong"})
		default:
			c.sendError("", "unknown message type: "+msg.Type, nil)
		}
	}
}

// runTurn generates under ctx and reveals under revealCtx; cancelling the
// reveal still delivers the complete reply.
func (h *Handler) runTurn(ctx, revealCtx context.Context, c *connection, req chat.TurnRequest) {
	result, err := h.chatSvc.Converse(ctx, req)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		_, message := chatHandler.ErrorStatus(err)
		if !errors.Is(err, chatService.ErrGenerationFailed) {
			c.sendError(req.ChatID, message, nil)
			return
		}
		c.sendError(req.ChatID, message, map[string]any{"fallback": chatService.FallbackReply})
		result = chat.TurnResult{Reply: chatService.FallbackReply, ChatID: req.ChatID}
	}

	err = markup.Reveal(revealCtx, result.Reply, h.cadence, func(frame markup.Frame) error {
		c.sendResult(req.ChatID, map[string]any{
			"type":  "delta",
			"index": frame.Index,
			"delta": frame.Delta,
		})
		return nil
	})
	if err != nil && ctx.Err() != nil {
		return
	}

	response := chatHandler.NewTurnResponse(result)
	c.sendResult(req.ChatID, map[string]any{
		"type":       "message",
		"response":   response.Response,
		"segments":   response.Segments,
		"transition": response.Transition,
		"cancelled":  err != nil,
	})
}

func (h *Handler) pingLoop(ctx context.Context, c *connection) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}
