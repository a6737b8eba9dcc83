package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/animo-app/animo/backend/internal/handler/account"
	"github.com/animo-app/animo/backend/internal/handler/character"
	"github.com/animo-app/animo/backend/internal/handler/chat"
	"github.com/animo-app/animo/backend/internal/handler/stream"
	"github.com/animo-app/animo/backend/internal/handler/watchlist"
	"github.com/animo-app/animo/backend/internal/handler/ws"
	middlewarePkg "github.com/animo-app/animo/backend/internal/middleware"
	characterModel "github.com/animo-app/animo/backend/internal/model/character"
	"github.com/animo-app/animo/backend/internal/observability"
	accountService "github.com/animo-app/animo/backend/internal/service/account"
	chatService "github.com/animo-app/animo/backend/internal/service/chat"
	watchlistService "github.com/animo-app/animo/backend/internal/service/watchlist"
	"github.com/animo-app/animo/backend/pkg/utils"
)

// Dependencies are the services the router exposes.
type Dependencies struct {
	Characters characterModel.Store
	Chat       *chatService.Service
	Accounts   *accountService.Service
	Tokens     middlewarePkg.TokenVerifier
	Watchlist  *watchlistService.Service
	Metrics    *observability.Metrics
	// RateLimiter guards the chat routes; nil disables limiting.
	RateLimiter   *middlewarePkg.RateLimiter
	CORSOrigins   []string
	RevealCadence time.Duration
}

// NewRouter wires HTTP routes to core services.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	r.Use(middlewarePkg.CapturePeer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS(deps.CORSOrigins))
	r.Use(middlewarePkg.Metrics(deps.Metrics))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		utils.RespondJSON(w, http.StatusOK, map[string]any{
			"status":      "ok",
			"chatEnabled": deps.Chat.Enabled(),
		})
	})
	r.Method(http.MethodGet, "/metrics", deps.Metrics.Handler())

	r.Route("/api", func(api chi.Router) {
		character.New(deps.Characters).RegisterRoutes(api)

		api.Group(func(chatRoutes chi.Router) {
			if deps.RateLimiter != nil {
				chatRoutes.Use(deps.RateLimiter.Middleware)
			}
			chat.New(deps.Chat).RegisterRoutes(chatRoutes)
			stream.New(deps.Chat, deps.RevealCadence).RegisterRoutes(chatRoutes)
			ws.New(deps.Chat, deps.RevealCadence).RegisterRoutes(chatRoutes)
		})

		accountHandler := account.New(deps.Accounts)
		api.Group(func(public chi.Router) {
			if deps.RateLimiter != nil {
				public.Use(deps.RateLimiter.Middleware)
			}
			accountHandler.RegisterPublicRoutes(public)
		})

		api.Group(func(protected chi.Router) {
			protected.Use(middlewarePkg.RequireAuth(deps.Tokens))
			accountHandler.RegisterProtectedRoutes(protected)
			watchlist.New(deps.Watchlist).RegisterRoutes(protected)
		})
	})

	return r
}
