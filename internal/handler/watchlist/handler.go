package watchlist

import (
	"errors"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/animo-app/animo/backend/internal/middleware"
	"github.com/animo-app/animo/backend/internal/model/watchlist"
	watchlistService "github.com/animo-app/animo/backend/internal/service/watchlist"
	"github.com/animo-app/animo/backend/pkg/utils"
)

// Handler serves a user's anime list.
type Handler struct {
	lists *watchlistService.Service
}

// New creates a watch-list handler.
func New(lists *watchlistService.Service) *Handler {
	return &Handler{lists: lists}
}

// RegisterRoutes mounts the list routes; they expect RequireAuth upstream.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/list", h.handleSave)
	r.Get("/list/{userId}", h.handleList)
}

func (h *Handler) handleSave(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		UserID  string           `json:"userId"`
		AnimeID string           `json:"animeId"`
		Status  watchlist.Status `json:"status"`
	}
	if err := utils.DecodeJSON(r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	userID, ok := authorize(w, r, payload.UserID)
	if !ok {
		return
	}

	entry, created, err := h.lists.Save(r.Context(), userID, payload.AnimeID, payload.Status)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	if created {
		utils.RespondJSON(w, http.StatusCreated, map[string]any{
			"message": "Anime added to the list successfully.",
			"anime":   entry,
		})
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]any{
		"message": "Anime list updated successfully.",
		"anime":   entry,
	})
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	userID, ok := authorize(w, r, chi.URLParam(r, "userId"))
	if !ok {
		return
	}

	entries, err := h.lists.List(r.Context(), userID)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	utils.RespondJSON(w, http.StatusOK, map[string]any{"animeList": entries})
}

func authorize(w http.ResponseWriter, r *http.Request, claimed string) (string, bool) {
	userID, err := middleware.ResolveUser(r.Context(), claimed)
	switch {
	case errors.Is(err, middleware.ErrForbidden):
		utils.RespondError(w, http.StatusForbidden, err.Error())
		return "", false
	case err != nil:
		utils.RespondError(w, http.StatusUnauthorized, err.Error())
		return "", false
	}
	return userID, true
}

func respondServiceError(w http.ResponseWriter, err error) {
	if errors.Is(err, watchlistService.ErrInvalidInput) {
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	log.Printf("[watchlist] request failed: %v", err)
	utils.RespondError(w, http.StatusInternalServerError, "internal server error")
}
