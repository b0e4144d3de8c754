// Calmline - AI counseling backend server
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/calmline/calmline/internal/agent"
	"github.com/calmline/calmline/internal/api"
	"github.com/calmline/calmline/internal/config"
	"github.com/calmline/calmline/internal/domain"
	"github.com/calmline/calmline/internal/emoscore"
	"github.com/calmline/calmline/internal/identity"
	"github.com/calmline/calmline/internal/middleware"
	"github.com/calmline/calmline/internal/onboarding"
	"github.com/calmline/calmline/internal/orchestrator"
	"github.com/calmline/calmline/internal/promptcache"
	"github.com/calmline/calmline/internal/session"
	"github.com/calmline/calmline/internal/store"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("Starting server", "port", cfg.Port, "dev", cfg.IsDevelopment())

	// Initialize dependencies.
	repo, err := store.NewSQLite(cfg.DBPath)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			slog.Error("Failed to close repository", "error", closeErr)
		}
	}()

	if err := repo.Ping(context.Background()); err != nil {
		slog.Error("Database health check failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Database connected")

	if err := seedCounselors(context.Background(), repo); err != nil {
		slog.Error("Failed to seed counselors", "error", err)
		os.Exit(1)
	}

	// One generator per purpose so each can run a different model.
	chatAgent := agent.NewOpenAI(cfg.OpenAIAPIKey, cfg.ChatModel)
	intakeAgent := agent.NewOpenAI(cfg.OpenAIAPIKey, cfg.OnboardingModel)
	reviewAgent := agent.NewOpenAI(cfg.OpenAIAPIKey, cfg.ReviewModel)

	// Initialize services.
	prompts := promptcache.New(cfg.PromptCacheTTL)
	reminder := session.ReminderConfig{
		SuggestedDurationMinutes: cfg.Session.SuggestedDurationMinutes,
		SuggestedTurns:           cfg.Session.SuggestedTurns,
		ReminderIntervalTurns:    cfg.Session.ReminderIntervalTurns,
	}
	sessions := session.NewService(repo, chatAgent, reviewAgent, prompts, reminder, cfg.Session.StaleAfter)
	ledger := emoscore.NewLedger(repo)
	intake := onboarding.NewFlow(repo, intakeAgent, ledger)
	orch := orchestrator.New(sessions, intake, ledger, repo, prompts)

	// Initialize handlers.
	handler := api.NewHandler(orch)
	healthHandler := api.NewHealthHandler(repo)
	wsHandler := api.NewWebSocketHandler(orch, cfg.FrontendURL, cfg.IsDevelopment())

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/ping"))
	r.Use(middleware.CORS(corsOrigins(cfg)))

	// Public routes.
	healthHandler.RegisterHealth(r)

	// All routes use identity middleware (no auth needed).
	r.Group(func(r chi.Router) {
		r.Use(identity.Middleware(repo, cfg.IsDevelopment()))
		handler.RegisterRoutes(r)
		r.Get("/ws/chat", wsHandler.ServeHTTP)
	})

	// Create server.
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // agent calls and the chat socket outlive any fixed write budget
		IdleTimeout:  120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Start stale session sweeper.
	session.StartStaleSweeper(ctx, repo, cfg.Session.StaleAfter)

	// Start server.
	go func() {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal.
	<-ctx.Done()
	stop()

	slog.Info("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("Server stopped successfully")
}

func corsOrigins(cfg *config.Config) []string {
	if cfg.FrontendURL == "" {
		return []string{"*"}
	}
	return []string{cfg.FrontendURL}
}

// seedCounselors inserts the default counselor roster when the table is
// empty, so a fresh install has someone to talk to.
func seedCounselors(ctx context.Context, repo store.Repository) error {
	existing, err := repo.ListCounselors(ctx)
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		return nil
	}

	defaults := []*domain.Counselor{
		{
			Name: "Mora",
			Prompt: "Speak gently and slowly. Validate feelings before exploring them. " +
				"Prefer reflective listening over advice.",
		},
		{
			Name: "Theo",
			Prompt: "Be warm but structured. Help the client name concrete problems and " +
				"break them into small steps. Check in on progress from earlier in the conversation.",
		},
		{
			Name: "June",
			Prompt: "Keep a light, encouraging tone. Use grounding questions when the " +
				"client spirals, and celebrate small wins explicitly.",
		},
	}
	for _, c := range defaults {
		if err := repo.CreateCounselor(ctx, c); err != nil {
			return err
		}
		slog.Info("seeded counselor", "counselor_id", c.ID, "name", c.Name)
	}
	return nil
}
