package main

import (
	"fmt"
	"log"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/subosito/gotenv"

	"github.com/norachat/agentic/adapters/hasher"
	"github.com/norachat/agentic/adapters/http"
	"github.com/norachat/agentic/adapters/llm"
	"github.com/norachat/agentic/adapters/message_broker"
	"github.com/norachat/agentic/adapters/store"
	"github.com/norachat/agentic/adapters/websocket"
	"github.com/norachat/agentic/domain"
	"github.com/norachat/agentic/usecase"
	"github.com/norachat/agentic/utils/metrics"
)

// AppConfig defines all configurable parameters of the service, sourced
// from environment variables (loaded from .env for local runs).
type AppConfig struct {
	Port        int `envconfig:"PORT" default:"8080"`
	MetricsPort int `envconfig:"METRICS_PORT" default:"8000"`

	// Remote backend
	OpenAIAPIKey  string `envconfig:"OPENAI_API_KEY"`
	OpenAIBaseURL string `envconfig:"OPENAI_BASE_URL"`
	OpenAIModel   string `envconfig:"OPENAI_MODEL"`

	// Local backend
	OllamaURL   string `envconfig:"OLLAMA_URL"`
	OllamaModel string `envconfig:"OLLAMA_MODEL"`

	// Conversation store; in-memory when no URL is set
	RedisURL        string `envconfig:"REDIS_URL"`
	ConversationTTL string `envconfig:"CONVERSATION_TTL" default:"720h"`

	// Auth
	JWTSecret string `envconfig:"JWT_SECRET" required:"true"`
	APIKey    string `envconfig:"API_KEY" required:"true"`
	APISecret string `envconfig:"API_SECRET" required:"true"`

	// Generation defaults, overridable per request
	SystemMessage string  `envconfig:"SYSTEM_MESSAGE" default:"You are a friendly chatbot who always responds in the style of a professional nutritionist."`
	MaxTokens     int     `envconfig:"MAX_TOKENS" default:"600"`
	Temperature   float64 `envconfig:"TEMPERATURE" default:"0.6"`
	TopP          float64 `envconfig:"TOP_P" default:"0.65"`
}

func main() {
	gotenv.Load()

	var cfg AppConfig
	if err := envconfig.Process("", &cfg); err != nil {
		log.Fatalf("Failed to process environment config: %v", err)
	}

	remote := llm.NewOpenAIGenerator(llm.OpenAIConfig{
		APIKey:  cfg.OpenAIAPIKey,
		BaseURL: cfg.OpenAIBaseURL,
		Model:   cfg.OpenAIModel,
	})
	local := llm.NewOllamaGenerator(llm.OllamaConfig{
		BaseURL: cfg.OllamaURL,
		Model:   cfg.OllamaModel,
	})

	recorder := metrics.NewRecorder()
	svc := usecase.NewChatService(remote, local, recorder)

	var conversations domain.ConversationStore
	if cfg.RedisURL != "" {
		ttl, err := time.ParseDuration(cfg.ConversationTTL)
		if err != nil {
			log.Fatalf("Invalid CONVERSATION_TTL '%s': %v", cfg.ConversationTTL, err)
		}
		client, err := store.NewClient(cfg.RedisURL)
		if err != nil {
			log.Fatalf("Failed to initialise Redis client: %v", err)
		}
		conversations = store.NewRedisStore(client, hasher.New(), ttl)
	} else {
		conversations = store.NewMemoryStore()
	}

	broker := message_broker.NewChannelMessageBroker()
	defer broker.Close()

	defaults := domain.GenerationConfig{
		SystemMessage: cfg.SystemMessage,
		MaxTokens:     cfg.MaxTokens,
		Temperature:   cfg.Temperature,
		TopP:          cfg.TopP,
	}

	server := websocket.NewServer(svc, conversations, broker, defaults)
	go server.RunWebsocketHub()

	chatHandler := http.NewChatHandler(conversations, broker, http.AuthConfig{
		JWTSecret: cfg.JWTSecret,
		APIKey:    cfg.APIKey,
		APISecret: cfg.APISecret,
	})

	// Metrics exposition on its own listener, no auth
	go func() {
		log.Fatal(recorder.Serve(cfg.MetricsPort))
	}()

	e := echo.New()

	// Security middleware
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.Secure())
	e.Use(middleware.RateLimiter(middleware.NewRateLimiterMemoryStore(20))) // 20 requests per second

	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"}, // In production, specify exact origins
		AllowMethods: []string{echo.GET, echo.POST, echo.PUT, echo.DELETE, echo.OPTIONS},
		AllowHeaders: []string{
			echo.HeaderOrigin,
			echo.HeaderContentType,
			echo.HeaderAccept,
			echo.HeaderAuthorization,
			"X-API-Key",
			"X-API-Secret",
			"Content-Length",
		},
		AllowCredentials: true,
		MaxAge:           86400, // 24 hours
	}))

	// Request size limit
	e.Use(middleware.BodyLimit("1MB"))

	// JWT auth for WebSocket (same as HTTP)
	wsGroup := e.Group("/ws")
	wsGroup.Use(chatHandler.JWTMiddleware)
	wsGroup.GET("", server.Handler)

	// HTTP API routes
	api := e.Group("/api/v1")

	// Public endpoints (no auth required)
	api.GET("/health", chatHandler.HealthCheck)
	api.POST("/auth/token", chatHandler.GenerateJWT)

	// Chat control endpoints (JWT auth required)
	chat := api.Group("/chat")
	chat.Use(chatHandler.JWTMiddleware)
	chat.Use(chatHandler.RateLimitMiddleware)
	chat.POST("/cancel", chatHandler.CancelGeneration)

	// Transcript endpoints (JWT auth required)
	conv := api.Group("/conversations")
	conv.Use(chatHandler.JWTMiddleware)
	conv.GET("/:id", chatHandler.GetConversation)
	conv.DELETE("/:id", chatHandler.ClearConversation)

	log.Printf("Starting server on :%d", cfg.Port)
	log.Println("Available endpoints:")
	log.Println("  GET  /api/v1/health              - Health check")
	log.Println("  POST /api/v1/auth/token          - Get JWT token")
	log.Println("  POST /api/v1/chat/cancel         - Cancel in-flight generation (JWT required)")
	log.Println("  GET  /api/v1/conversations/:id   - Read transcript (JWT required)")
	log.Println("  DEL  /api/v1/conversations/:id   - Clear transcript (JWT required)")
	log.Println("  GET  /ws                         - Chat WebSocket (JWT required)")
	log.Printf("Metrics exposed on :%d/metrics", cfg.MetricsPort)
	log.Fatal(e.Start(fmt.Sprintf(":%d", cfg.Port)))
}
