package account

import (
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/animo-app/animo/backend/internal/middleware"
	accountService "github.com/animo-app/animo/backend/internal/service/account"
	"github.com/animo-app/animo/backend/pkg/utils"
)

// Handler serves sign-up, login and profile routes.
type Handler struct {
	accounts *accountService.Service
}

// New creates an account handler.
func New(accounts *accountService.Service) *Handler {
	return &Handler{accounts: accounts}
}

// RegisterPublicRoutes mounts the routes that need no token.
func (h *Handler) RegisterPublicRoutes(r chi.Router) {
	r.Post("/register", h.handleRegister)
	r.Post("/login", h.handleLogin)
}

// RegisterProtectedRoutes mounts the routes behind RequireAuth.
func (h *Handler) RegisterProtectedRoutes(r chi.Router) {
	r.Get("/data", h.handleData)
	r.Put("/update-profile", h.handleUpdateProfile)
	r.Put("/avatar", h.handleAvatar)
	r.Post("/save-preferences", h.handleSavePreferences)
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var in accountService.RegisterInput
	if err := utils.DecodeJSON(r, &in); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	res, err := h.accounts.Register(r.Context(), in)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	utils.RespondJSON(w, http.StatusCreated, map[string]any{
		"message": "User registered successfully",
		"token":   res.Token,
		"user":    res.User,
	})
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := utils.DecodeJSON(r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	res, err := h.accounts.Login(r.Context(), payload.Email, payload.Password)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	utils.RespondJSON(w, http.StatusOK, map[string]any{
		"message": "Login successful!",
		"token":   res.Token,
		"user":    res.User,
	})
}

func (h *Handler) handleData(w http.ResponseWriter, r *http.Request) {
	userID, ok := resolveUser(w, r, r.URL.Query().Get("userId"))
	if !ok {
		return
	}

	user, err := h.accounts.Profile(r.Context(), userID)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	utils.RespondJSON(w, http.StatusOK, map[string]any{"userData": user})
}

func (h *Handler) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		UserID    string `json:"userId"`
		Username  string `json:"username"`
		Country   string `json:"country"`
		BirthDate string `json:"birthDate"`
	}
	if err := utils.DecodeJSON(r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	userID, ok := resolveUser(w, r, payload.UserID)
	if !ok {
		return
	}

	update := accountService.ProfileUpdate{Username: payload.Username, Country: payload.Country}
	if strings.TrimSpace(payload.BirthDate) != "" {
		birth, err := parseDate(payload.BirthDate)
		if err != nil {
			utils.RespondError(w, http.StatusBadRequest, "birthDate must be YYYY-MM-DD or RFC 3339")
			return
		}
		update.BirthDate = &birth
	}

	user, err := h.accounts.UpdateProfile(r.Context(), userID, update)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	utils.RespondJSON(w, http.StatusOK, map[string]any{
		"message": "Profile updated successfully",
		"user":    user,
	})
}

func (h *Handler) handleAvatar(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		UserID string `json:"userId"`
		Avatar string `json:"avatar"`
	}
	if err := utils.DecodeJSON(r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	userID, ok := resolveUser(w, r, payload.UserID)
	if !ok {
		return
	}

	user, err := h.accounts.UpdateAvatar(r.Context(), userID, payload.Avatar)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	utils.RespondJSON(w, http.StatusOK, user)
}

func (h *Handler) handleSavePreferences(w http.ResponseWriter, r *http.Request) {
	var in accountService.PreferencesInput
	if err := utils.DecodeJSON(r, &in); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	userID, ok := resolveUser(w, r, in.UserID)
	if !ok {
		return
	}
	in.UserID = userID

	prefs, err := h.accounts.SavePreferences(r.Context(), in)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	utils.RespondJSON(w, http.StatusOK, map[string]any{
		"message":     "Preferences saved successfully",
		"preferences": prefs,
	})
}

func resolveUser(w http.ResponseWriter, r *http.Request, claimed string) (string, bool) {
	userID, err := middleware.ResolveUser(r.Context(), strings.TrimSpace(claimed))
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
	switch {
	case errors.Is(err, accountService.ErrInvalidInput):
		utils.RespondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, accountService.ErrAlreadyExists):
		utils.RespondError(w, http.StatusConflict, err.Error())
	case errors.Is(err, accountService.ErrInvalidCredentials):
		utils.RespondError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, accountService.ErrNotFound):
		utils.RespondError(w, http.StatusNotFound, err.Error())
	default:
		log.Printf("[account] request failed: %v", err)
		utils.RespondError(w, http.StatusInternalServerError, "internal server error")
	}
}

func parseDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if t, err := time.Parse(time.DateOnly, raw); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, raw)
}
