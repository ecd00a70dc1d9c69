// Package api exposes the messaging entrypoint over HTTP.
package api

import (
	"context"
	"net/http"
	"reflect"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/tcgvault/messaging/internal/auth"
	"github.com/tcgvault/messaging/internal/filter"
	"github.com/tcgvault/messaging/internal/messaging"
	"github.com/tcgvault/messaging/internal/realtime"
)

const (
	correlationHeader = "X-Correlation-ID"
	correlationKey    = "correlation_id"
	callerKey         = "caller_id"

	maxBodySize = 64 << 10
)

// Messenger is the part of messaging.Service the dispatcher calls.
type Messenger interface {
	Filter(text string) filter.Result
	StartConversation(ctx context.Context, callerID, recipientID string, listingID *string) (string, bool, error)
	SendMessage(ctx context.Context, in messaging.SendMessageInput) (*messaging.SendResult, error)
	MarkRead(ctx context.Context, callerID, conversationID string) error
}

// TokenVerifier checks bearer tokens issued by the auth provider.
type TokenVerifier interface {
	ValidateToken(token string) (*auth.Claims, error)
}

// CORS is the origin policy. AllowedOrigins are echoed back; any other origin
// gets DefaultOrigin.
type CORS struct {
	AllowedOrigins []string
	DefaultOrigin  string
}

func (c CORS) allowed(origin string) bool {
	for _, o := range c.AllowedOrigins {
		if o == origin {
			return true
		}
	}
	return false
}

func (c CORS) origin(requested string) string {
	if requested != "" && c.allowed(requested) {
		return requested
	}
	return c.DefaultOrigin
}

// Server routes requests to the messaging service.
type Server struct {
	router   *gin.Engine
	svc      Messenger
	tokens   TokenVerifier
	cors     CORS
	hub      *realtime.Hub
	validate *validator.Validate
	upgrader websocket.Upgrader
}

// Option configures a Server.
type Option func(*Server)

// WithHub enables GET /realtime subscriptions served by hub.
func WithHub(hub *realtime.Hub) Option {
	return func(s *Server) {
		s.hub = hub
	}
}

// NewServer builds the router.
func NewServer(svc Messenger, tokens TokenVerifier, cors CORS, opts ...Option) *Server {
	router := gin.New()
	router.Use(gin.Recovery(), correlationID(), corsHeaders(cors))

	s := &Server{
		router:   router,
		svc:      svc,
		tokens:   tokens,
		cors:     cors,
		validate: newValidator(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}

	router.GET("/health", s.handleHealth)
	router.OPTIONS("/messaging", s.handlePreflight)
	router.POST("/messaging", s.requireAuth, s.handleMessaging)
	if s.hub != nil {
		router.GET("/realtime", s.handleRealtime)
	}

	return s
}

// Handler returns the http.Handler serving all routes.
func (s *Server) Handler() http.Handler {
	return s.router
}

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

func correlationID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := strings.TrimSpace(c.GetHeader(correlationHeader))
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(correlationKey, id)
		c.Header(correlationHeader, id)
		c.Next()
	}
}

func corsHeaders(cors CORS) gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("Access-Control-Allow-Origin", cors.origin(c.GetHeader("Origin")))
		h.Set("Access-Control-Allow-Headers", "authorization, x-client-info, apikey, content-type, x-api-key, x-correlation-id")
		h.Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		h.Set("Access-Control-Allow-Credentials", "true")
		h.Add("Vary", "Origin")
		c.Next()
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	c.String(http.StatusOK, "OK")
}

func (s *Server) handlePreflight(c *gin.Context) {
	c.Status(http.StatusOK)
}

// requireAuth resolves the caller from the bearer token.
func (s *Server) requireAuth(c *gin.Context) {
	header := c.GetHeader("Authorization")
	if strings.TrimSpace(header) == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Missing authorization header"})
		return
	}

	userID, err := s.verify(header)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	c.Set(callerKey, userID)
	c.Next()
}

func (s *Server) verify(header string) (string, error) {
	token, err := auth.BearerToken(header)
	if err != nil {
		return "", err
	}
	claims, err := s.tokens.ValidateToken(token)
	if err != nil {
		return "", err
	}
	return claims.UserID, nil
}
