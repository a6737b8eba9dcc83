package stream

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/animo-app/animo/backend/internal/analysis/markup"
	chatHandler "github.com/animo-app/animo/backend/internal/handler/chat"
	"github.com/animo-app/animo/backend/internal/model/chat"
	chatService "github.com/animo-app/animo/backend/internal/service/chat"
	"github.com/animo-app/animo/backend/pkg/utils"
)

// Handler streams a chat turn over Server-Sent Events, typing the reply
// out one rune at a time.
type Handler struct {
	chatSvc *chatService.Service
	cadence time.Duration
}

// New creates a stream handler revealing replies at cadence.
func New(chatSvc *chatService.Service, cadence time.Duration) *Handler {
	return &Handler{chatSvc: chatSvc, cadence: cadence}
}

// RegisterRoutes mounts the SSE route on r.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/character-chat/stream", h.handleStream)
}

// StreamResponse is the payload of start, end and error events.
type StreamResponse struct {
	ChatID        string `json:"chatId"`
	CharacterName string `json:"characterName,omitempty"`
	Error         string `json:"error,omitempty"`
	Finished      bool   `json:"finished,omitempty"`
}

func (h *Handler) handleStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.RespondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	var req chat.TurnRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := chatService.ValidateTurn(req); err != nil {
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !h.chatSvc.Enabled() {
		status, message := chatHandler.ErrorStatus(chatService.ErrGeneratorMissing)
		utils.RespondError(w, status, message)
		return
	}

	ctx := r.Context()
	utils.SetupSSEHeaders(w)
	w.WriteHeader(http.StatusOK)

	if err := utils.SendSSEEvent(w, flusher, "start", StreamResponse{ChatID: req.ChatID, CharacterName: req.CharacterName}); err != nil {
		log.Printf("[stream] chat=%s: %v", req.ChatID, err)
		return
	}

	result, err := h.chatSvc.Converse(ctx, req)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		_, message := chatHandler.ErrorStatus(err)
		if sendErr := utils.SendSSEEvent(w, flusher, "error", StreamResponse{ChatID: req.ChatID, Error: message}); sendErr != nil {
			return
		}
		if !errors.Is(err, chatService.ErrGenerationFailed) {
			return
		}
		result = chat.TurnResult{Reply: chatService.FallbackReply, ChatID: req.ChatID}
	}

	if err := h.reveal(ctx, w, flusher, result); err != nil {
		if !errors.Is(err, context.Canceled) {
			log.Printf("[stream] reveal aborted chat=%s: %v", req.ChatID, err)
		}
		return
	}

	_ = utils.SendSSEEvent(w, flusher, "end", StreamResponse{ChatID: req.ChatID, Finished: true})
}

// reveal sends delta frames followed by the complete message.
func (h *Handler) reveal(ctx context.Context, w http.ResponseWriter, flusher http.Flusher, result chat.TurnResult) error {
	err := markup.Reveal(ctx, result.Reply, h.cadence, func(frame markup.Frame) error {
		return utils.SendSSEEvent(w, flusher, "delta", frame)
	})
	if err != nil {
		return err
	}
	return utils.SendSSEEvent(w, flusher, "message", chatHandler.NewTurnResponse(result))
}
