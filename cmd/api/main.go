package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/animo-app/animo/backend/internal/config"
	"github.com/animo-app/animo/backend/internal/handler"
	"github.com/animo-app/animo/backend/internal/middleware"
	"github.com/animo-app/animo/backend/internal/model/character"
	"github.com/animo-app/animo/backend/internal/observability"
	"github.com/animo-app/animo/backend/internal/repository/postgres"
	"github.com/animo-app/animo/backend/internal/service/account"
	"github.com/animo-app/animo/backend/internal/service/ai"
	"github.com/animo-app/animo/backend/internal/service/chat"
	"github.com/animo-app/animo/backend/internal/service/watchlist"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Printf("warning: failed to load .env file: %v", err)
		log.Println("continuing with system environment variables only")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	if err := run(ctx, cfg); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	metrics := observability.NewMetrics()
	g, ctx := errgroup.WithContext(ctx)

	characters, err := loadCharacters(cfg.Server.CharactersFile)
	if err != nil {
		return err
	}

	store, err := newSessionStore(ctx, g, cfg.Session, metrics)
	if err != nil {
		return err
	}

	var generator chat.Generator
	gen, err := ai.New(ctx, cfg.AI)
	switch {
	case errors.Is(err, ai.ErrNotConfigured):
		log.Printf("AI provider %q has no credentials, character chat disabled", cfg.AI.Provider)
	case err != nil:
		log.Printf("warning: failed to initialize AI provider: %v", err)
		log.Println("continuing without character chat")
	default:
		generator = gen
	}

	chatService := chat.NewService(store, generator,
		chat.WithMetrics(metrics),
		chat.WithGenerationTimeout(cfg.AI.Timeout),
	)

	accountRepo, watchlistRepo, err := newRepositories(ctx, cfg.Database)
	if err != nil {
		return err
	}

	if cfg.Auth.InsecureSecret {
		log.Println("warning: JWT_SECRET not set, using an insecure development secret")
	}
	tokens := account.NewTokenIssuer(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)

	var limiter *middleware.RateLimiter
	if cfg.RateLimit.Enabled() {
		limiter = middleware.NewRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst).
			TrustProxies(cfg.RateLimit.TrustedProxies)
		g.Go(func() error { return limiter.Run(ctx, time.Minute) })
	}

	router := handler.NewRouter(handler.Dependencies{
		Characters:    character.NewMemoryStore(characters),
		Chat:          chatService,
		Accounts:      account.NewService(accountRepo, tokens),
		Tokens:        tokens,
		Watchlist:     watchlist.NewService(watchlistRepo),
		Metrics:       metrics,
		RateLimiter:   limiter,
		CORSOrigins:   cfg.Server.CORSOrigins,
		RevealCadence: cfg.Presentation.RevealCadence,
	})

	g.Go(func() error {
		return startServer(ctx, cfg.Server, router)
	})
	return g.Wait()
}

func loadCharacters(path string) ([]character.Character, error) {
	if path == "" {
		return character.Seed(), nil
	}
	items, err := character.LoadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load characters: %w", err)
	}
	log.Printf("loaded %d characters from %s", len(items), path)
	return items, nil
}

func newSessionStore(ctx context.Context, g *errgroup.Group, cfg config.SessionConfig, metrics *observability.Metrics) (chat.Store, error) {
	if cfg.Backend == config.SessionBackendRedis {
		store, err := chat.NewRedisStore(ctx, chat.RedisConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Prefix:   cfg.Redis.Prefix,
			TTL:      cfg.TTL,
		})
		if err != nil {
			return nil, fmt.Errorf("connect session store: %w", err)
		}
		g.Go(func() error {
			<-ctx.Done()
			return store.Close()
		})
		log.Printf("chat sessions stored in redis at %s", cfg.Redis.Addr)
		return store, nil
	}

	store := chat.NewMemoryStore(cfg.TTL)
	metrics.RegisterSessionGauge(func() float64 { return float64(store.Len()) })
	g.Go(func() error { return store.Run(ctx, cfg.SweepInterval) })
	log.Printf("chat sessions stored in memory, ttl=%s", cfg.TTL)
	return store, nil
}

func newRepositories(ctx context.Context, cfg config.DatabaseConfig) (account.Repository, watchlist.Repository, error) {
	if cfg.URL == "" {
		log.Println("DATABASE_URL not set, accounts and watch lists kept in memory")
		return account.NewMemoryRepository(), watchlist.NewMemoryRepository(), nil
	}

	pool, err := postgres.CreateConnectionPool(ctx, cfg.URL)
	if err != nil {
		return nil, nil, err
	}
	if err := postgres.EnsureSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, nil, err
	}
	go func() {
		<-ctx.Done()
		pool.Close()
	}()

	return postgres.NewAccountRepository(pool), postgres.NewWatchlistRepository(pool), nil
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler) error {
	addr := serverCfg.Addr
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	log.Printf("Animo backend listening on %s", addr)
	return runServer(ctx, srv)
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
