package main

import (
	"log/slog"
	"os"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v3/middleware/logger"
	"github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/joho/godotenv"

	"github.com/lunara-health/lunara-api/internal/adapter/ai"
	"github.com/lunara-health/lunara-api/internal/adapter/store"
	"github.com/lunara-health/lunara-api/internal/handler"
	"github.com/lunara-health/lunara-api/internal/mcp"
	"github.com/lunara-health/lunara-api/internal/middleware"
	"github.com/lunara-health/lunara-api/internal/port"
	"github.com/lunara-health/lunara-api/internal/service"
	"github.com/lunara-health/lunara-api/pkg/config"

	_ "github.com/lib/pq"
)

func main() {
	// ── Load .env file ───────────────────────────────────────────────────
	_ = godotenv.Load() // silently ignore if .env doesn't exist

	// ── Configuration ────────────────────────────────────────────────────
	cfg := config.Load()

	slog.Info("🚀 Starting Lunara Care",
		"port", cfg.Port,
		"ollama_embed", cfg.OllamaEmbedURL,
		"providers", cfg.ProviderOrder,
		"mcp_enabled", cfg.MCPEnabled,
	)

	// ── Database ─────────────────────────────────────────────────────────
	pgStore, err := store.NewPostgresStore(cfg.DatabaseURL)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pgStore.Close()

	// ── Adapters ─────────────────────────────────────────────────────────
	embedder := ai.NewOllamaEmbedder(ai.OllamaConfig{
		BaseURL: cfg.OllamaEmbedURL,
		Model:   cfg.OllamaEmbedModel,
		Token:   cfg.OllamaEmbedToken,
	})

	providers := buildProviders(cfg)
	if len(providers) == 0 {
		slog.Warn("no generative providers configured, low-confidence queries will apologize")
	}

	// ── Services ─────────────────────────────────────────────────────────
	chain := service.NewFallbackChain(time.Duration(cfg.ProviderTimeoutMS)*time.Millisecond, providers...)
	chatService := service.NewChatService(embedder, chain, service.Options{
		CorpusPath:          cfg.CorpusPath,
		ConfidenceThreshold: cfg.ConfidenceThreshold,
		TopK:                cfg.TopK,
		FallbackEnabled:     cfg.FallbackEnabled,
	})

	// ── Fiber App ────────────────────────────────────────────────────────
	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	})

	// Global middleware
	app.Use(recover.New())
	app.Use(fiberlogger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: []string{cfg.FrontendURL},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept", "Authorization"},
		AllowMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
	}))

	// Audit middleware (logs all requests)
	app.Use(middleware.AuditMiddleware(pgStore))

	// Health check
	app.Get("/api/v1/health", func(c fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "healthy",
			"app":     cfg.AppName,
			"version": "1.0.0",
		})
	})

	// ── Protected Routes ─────────────────────────────────────────────────
	jwtMiddleware := middleware.JWTMiddleware(middleware.JWTConfig{
		Secret:    cfg.JWTSecret,
		Issuer:    cfg.JWTIssuer,
		ExpiresIn: time.Duration(cfg.JWTExpiration) * time.Hour,
	})

	api := app.Group("/api/v1", jwtMiddleware)

	jobTracker := handler.NewJobTracker()

	chatbotHandler := handler.NewChatbotHandler(chatService, pgStore, jobTracker)
	chatbotHandler.Register(api)

	jobsHandler := handler.NewJobsHandler(jobTracker)
	jobsHandler.Register(api)

	auditHandler := handler.NewAuditHandler(pgStore)
	auditHandler.Register(api)

	// ── MCP Server (separate port) ───────────────────────────────────────
	if cfg.MCPEnabled {
		mcpServer := mcp.NewServer(chatService, cfg.MCPPort)
		go func() {
			if err := mcpServer.Start(); err != nil {
				slog.Error("MCP server failed", "error", err)
			}
		}()
	}

	// ── Start ────────────────────────────────────────────────────────────
	slog.Info("🌐 Fiber listening", "port", cfg.Port)
	if err := app.Listen(":" + cfg.Port); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

// buildProviders assembles the fallback chain from PROVIDER_ORDER, skipping
// providers with no credentials so a missing key degrades instead of failing.
func buildProviders(cfg *config.Config) []port.GenerativeProvider {
	var providers []port.GenerativeProvider
	for _, name := range cfg.ProviderOrder {
		switch name {
		case "gemini":
			if cfg.GeminiAPIKey != "" {
				providers = append(providers, ai.NewGeminiProvider(cfg.GeminiAPIKey, cfg.GeminiModel))
			}
		case "openai":
			if cfg.OpenAIAPIKey != "" {
				providers = append(providers, ai.NewOpenAIProvider(cfg.OpenAIAPIKey, cfg.OpenAIModel))
			}
		case "huggingface":
			if cfg.HFAPIKey != "" {
				providers = append(providers, ai.NewHFProvider(cfg.HFAPIKey, cfg.HFModel))
			}
		default:
			slog.Warn("unknown provider in PROVIDER_ORDER, skipping", "provider", name)
		}
	}
	return providers
}
