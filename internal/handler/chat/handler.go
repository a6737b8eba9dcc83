package chat

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/animo-app/animo/backend/internal/analysis/markup"
	"github.com/animo-app/animo/backend/internal/model/chat"
	chatService "github.com/animo-app/animo/backend/internal/service/chat"
	"github.com/animo-app/animo/backend/pkg/utils"
)

// Handler serves character chat turns over plain request/response.
type Handler struct {
	chatSvc *chatService.Service
}

// New creates a chat handler.
func New(chatSvc *chatService.Service) *Handler {
	return &Handler{chatSvc: chatSvc}
}

// RegisterRoutes mounts the chat routes on r.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/character-chat", h.handleTurn)
}

// TurnResponse is the body of a successful turn.
type TurnResponse struct {
	Response   string           `json:"response"`
	Segments   []markup.Segment `json:"segments"`
	ChatID     string           `json:"chatId"`
	Transition chat.Transition  `json:"transition"`
}

// NewTurnResponse pairs a reply with its parsed segments.
func NewTurnResponse(result chat.TurnResult) TurnResponse {
	segments := markup.Parse(result.Reply)
	if segments == nil {
		segments = []markup.Segment{}
	}
	return TurnResponse{
		Response:   result.Reply,
		Segments:   segments,
		ChatID:     result.ChatID,
		Transition: result.Transition,
	}
}

// ErrorStatus maps a chat service error to an HTTP status and a client message.
func ErrorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, chatService.ErrInvalidRequest):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, chatService.ErrGeneratorMissing):
		return http.StatusServiceUnavailable, "character chat is not configured"
	case errors.Is(err, chatService.ErrGenerationFailed):
		return http.StatusInternalServerError, "Failed to generate response"
	case errors.Is(err, chatService.ErrSessionNotFound):
		return http.StatusNotFound, "chat not found"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "timed out waiting for the chat"
	default:
		return http.StatusInternalServerError, "internal server error"
	}
}

func (h *Handler) handleTurn(w http.ResponseWriter, r *http.Request) {
	var req chat.TurnRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := h.chatSvc.Converse(r.Context(), req)
	if err != nil {
		status, message := ErrorStatus(err)
		if errors.Is(err, chatService.ErrGenerationFailed) {
			utils.RespondJSON(w, status, map[string]string{
				"error":    message,
				"fallback": chatService.FallbackReply,
			})
			return
		}
		utils.RespondError(w, status, message)
		return
	}

	utils.RespondJSON(w, http.StatusOK, NewTurnResponse(result))
}
