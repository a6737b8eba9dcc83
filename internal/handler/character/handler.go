package character

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/animo-app/animo/backend/internal/model/character"
	"github.com/animo-app/animo/backend/pkg/utils"
)

// Handler serves the character catalog.
type Handler struct {
	characters character.Store
}

// New creates a catalog handler.
func New(characters character.Store) *Handler {
	return &Handler{characters: characters}
}

// RegisterRoutes mounts the catalog routes on r.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/characters", h.handleList)
	r.Get("/characters/{id}", h.handleGet)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, h.characters.List())
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	item, ok := h.characters.FindByID(chi.URLParam(r, "id"))
	if !ok {
		utils.RespondError(w, http.StatusNotFound, "character not found")
		return
	}
	utils.RespondJSON(w, http.StatusOK, item)
}
