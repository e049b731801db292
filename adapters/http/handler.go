package http

import (
	"crypto/rand"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/norachat/agentic/domain"
	"github.com/norachat/agentic/utils/log"
)

const (
	// MaxConcurrent bounds in-flight requests on the guarded routes
	MaxConcurrent = 10

	defaultJWTExpiry = 24 * time.Hour
)

// AuthConfig carries the credentials and signing material for token
// issuance. Nothing here is hardcoded; it all flows from the environment.
type AuthConfig struct {
	JWTSecret string
	APIKey    string
	APISecret string
	Expiry    time.Duration
}

type ChatHandler struct {
	store     domain.ConversationStore
	broker    domain.MessageBroker
	jwtSecret []byte
	apiKey    string
	apiSecret string
	expiry    time.Duration
}

type JWTClaims struct {
	UserID         int    `json:"user_id"`
	ConversationID string `json:"conversation_id"`
	jwt.RegisteredClaims
}

func NewChatHandler(store domain.ConversationStore, broker domain.MessageBroker, cfg AuthConfig) *ChatHandler {
	expiry := cfg.Expiry
	if expiry == 0 {
		expiry = defaultJWTExpiry
	}
	return &ChatHandler{
		store:     store,
		broker:    broker,
		jwtSecret: []byte(cfg.JWTSecret),
		apiKey:    cfg.APIKey,
		apiSecret: cfg.APISecret,
		expiry:    expiry,
	}
}

// GenerateJWT creates a JWT token for authenticated clients. Each token
// carries a fresh conversation ID; the websocket session and the cancel
// endpoint both key off it.
func (h *ChatHandler) GenerateJWT(c echo.Context) error {
	apiKey := c.Request().Header.Get("X-API-Key")
	apiSecret := c.Request().Header.Get("X-API-Secret")

	if apiKey != h.apiKey || apiSecret != h.apiSecret {
		return echo.NewHTTPError(http.StatusUnauthorized, "Invalid credentials")
	}

	conversationID, err := generateConversationID()
	if err != nil {
		log.WithCtx(c.Request().Context()).Error("Failed to generate conversation ID", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to generate token")
	}

	claims := &JWTClaims{
		UserID:         1,
		ConversationID: conversationID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(h.expiry)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			NotBefore: jwt.NewNumericDate(time.Now()),
			Issuer:    "norachat-agentic",
			Subject:   "chat-session",
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(h.jwtSecret)
	if err != nil {
		log.WithCtx(c.Request().Context()).Error("Failed to sign JWT", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to generate token")
	}

	return c.JSON(http.StatusOK, map[string]string{
		"token":           tokenString,
		"type":            "Bearer",
		"conversation_id": conversationID,
	})
}

// JWT middleware for authentication
func (h *ChatHandler) JWTMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		authHeader := c.Request().Header.Get("Authorization")
		if authHeader == "" {
			return echo.NewHTTPError(http.StatusUnauthorized, "Missing authorization header")
		}

		// Extract token from "Bearer <token>"
		tokenString := strings.TrimPrefix(authHeader, "Bearer ")
		if tokenString == authHeader {
			return echo.NewHTTPError(http.StatusUnauthorized, "Invalid authorization format")
		}

		token, err := jwt.ParseWithClaims(tokenString, &JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return h.jwtSecret, nil
		})

		if err != nil {
			log.WithCtx(c.Request().Context()).Debug("JWT validation failed", zap.Error(err))
			return echo.NewHTTPError(http.StatusUnauthorized, "Invalid token")
		}

		if claims, ok := token.Claims.(*JWTClaims); ok && token.Valid {
			c.Set("user_id", claims.UserID)
			c.Set("conversation_id", claims.ConversationID)
			return next(c)
		}

		return echo.NewHTTPError(http.StatusUnauthorized, "Invalid token claims")
	}
}

// Rate limiting middleware
func (h *ChatHandler) RateLimitMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	semaphore := make(chan struct{}, MaxConcurrent)
	return func(c echo.Context) error {
		select {
		case semaphore <- struct{}{}:
			defer func() { <-semaphore }()
			return next(c)
		default:
			return echo.NewHTTPError(http.StatusTooManyRequests, "Too many concurrent requests")
		}
	}
}

// CancelGeneration publishes a cancel notice for the caller's conversation.
// Whatever session holds the in-flight generation aborts at its next
// fragment boundary; a notice with no in-flight generation is a no-op.
func (h *ChatHandler) CancelGeneration(c echo.Context) error {
	conversationID := c.Get("conversation_id").(string)
	userID := c.Get("user_id").(int)

	notice := domain.CancelNotice{
		ConversationID: conversationID,
		UserID:         userID,
		RequestedAt:    time.Now(),
	}

	payload, err := json.Marshal(notice)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to encode cancel notice")
	}

	if err := h.broker.Publish(c.Request().Context(), domain.CancelTopic, "", payload); err != nil {
		log.WithCtx(c.Request().Context()).Error("Failed to publish cancel notice", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to request cancellation")
	}

	return c.JSON(http.StatusAccepted, map[string]string{
		"status":          "cancellation requested",
		"conversation_id": conversationID,
	})
}

// GetConversation returns the stored transcript for the caller's
// conversation.
func (h *ChatHandler) GetConversation(c echo.Context) error {
	conversationID, err := h.authorizedConversation(c)
	if err != nil {
		return err
	}

	turns, err := h.store.Load(c.Request().Context(), conversationID)
	if err != nil {
		log.WithCtx(c.Request().Context()).Error("Failed to load transcript", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to load conversation")
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"conversation_id": conversationID,
		"turns":           turns,
	})
}

// ClearConversation removes the stored transcript for the caller's
// conversation.
func (h *ChatHandler) ClearConversation(c echo.Context) error {
	conversationID, err := h.authorizedConversation(c)
	if err != nil {
		return err
	}

	if err := h.store.Clear(c.Request().Context(), conversationID); err != nil {
		log.WithCtx(c.Request().Context()).Error("Failed to clear transcript", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to clear conversation")
	}

	return c.JSON(http.StatusOK, map[string]string{
		"conversation_id": conversationID,
		"status":          "cleared",
	})
}

// authorizedConversation checks that the path parameter names the
// conversation the caller's token was issued for.
func (h *ChatHandler) authorizedConversation(c echo.Context) (string, error) {
	conversationID := c.Get("conversation_id").(string)
	if requested := c.Param("id"); requested != conversationID {
		return "", echo.NewHTTPError(http.StatusForbidden, "Not your conversation")
	}
	return conversationID, nil
}

// Health check endpoint
func (h *ChatHandler) HealthCheck(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"service":   "norachat",
	})
}

// generateConversationID creates a unique conversation identifier
func generateConversationID() (string, error) {
	bytes := make([]byte, 16)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return fmt.Sprintf("%x", bytes), nil
}
