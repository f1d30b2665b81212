package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/campusconnect/backend/internal/auth"
	"github.com/campusconnect/backend/internal/messages"
	"github.com/campusconnect/backend/internal/notifications"
	"github.com/campusconnect/backend/internal/serviceerr"
	"github.com/campusconnect/backend/internal/users"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const userIDContextKey = "campus_user_id"

var (
	errMissingVerifier      = errors.New("identity verifier dependency required")
	errMissingMessages      = errors.New("message service dependency required")
	errMissingNotifications = errors.New("notification service dependency required")
	errInvalidAuthorization = errors.New("authorization header missing or invalid")
)

// IdentityVerifier resolves a bearer token to an active account.
type IdentityVerifier interface {
	Verify(ctx context.Context, token string) (users.User, error)
}

// MessageService is the conversation surface exposed over HTTP.
type MessageService interface {
	Deliver(ctx context.Context, request messages.DeliverRequest) (messages.View, error)
	ListConversations(ctx context.Context, userID string) ([]messages.ConversationSummary, error)
	GetConversation(ctx context.Context, userID, partnerID string, page, pageSize int) (messages.Conversation, error)
}

// NotificationService is the notification management surface exposed over HTTP.
type NotificationService interface {
	List(ctx context.Context, userID string, page, pageSize int) (notifications.Page, error)
	UnreadCount(ctx context.Context, userID string) (int64, error)
	MarkRead(ctx context.Context, userID, notificationID string) error
	MarkAllRead(ctx context.Context, userID string) (int64, error)
	Delete(ctx context.Context, userID, notificationID string) error
}

// RealtimeEndpoint upgrades requests to the realtime channel.
type RealtimeEndpoint interface {
	ServeWS(w http.ResponseWriter, r *http.Request)
}

type Dependencies struct {
	Verifier       IdentityVerifier
	Messages       MessageService
	Notifications  NotificationService
	Realtime       RealtimeEndpoint
	Gatherer       prometheus.Gatherer
	UploadsDir     string
	MaxUploadBytes int64
	AllowedOrigins []string
	Logger         *zap.Logger
}

func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.Verifier == nil {
		return nil, errMissingVerifier
	}
	if deps.Messages == nil {
		return nil, errMissingMessages
	}
	if deps.Notifications == nil {
		return nil, errMissingNotifications
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(corsMiddleware(deps.AllowedOrigins))

	handler := &httpHandler{
		verifier:      deps.Verifier,
		messages:      deps.Messages,
		notifications: deps.Notifications,
		uploads:       newUploadStore(deps.UploadsDir, deps.MaxUploadBytes),
		logger:        logger,
	}

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if deps.Gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{})))
	}
	if deps.Realtime != nil {
		router.GET("/ws", gin.WrapF(deps.Realtime.ServeWS))
	}
	if handler.uploads.enabled() {
		router.Static(uploadsRoute, handler.uploads.dir)
	}

	protected := router.Group("/")
	protected.Use(handler.authorizeRequest)
	protected.GET("/conversations", handler.handleListConversations)
	protected.GET("/messages/:userId", handler.handleGetConversation)
	protected.POST("/messages/:userId", handler.handleSendMessage)
	protected.GET("/notifications", handler.handleListNotifications)
	protected.GET("/notifications/unread-count", handler.handleUnreadCount)
	protected.PATCH("/notifications/read-all", handler.handleMarkAllRead)
	protected.PATCH("/notifications/:id/read", handler.handleMarkRead)
	protected.DELETE("/notifications/:id", handler.handleDeleteNotification)

	return router, nil
}

type httpHandler struct {
	verifier      IdentityVerifier
	messages      MessageService
	notifications NotificationService
	uploads       uploadStore
	logger        *zap.Logger
}

func corsMiddleware(allowedOrigins []string) gin.HandlerFunc {
	config := cors.Config{
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}
	origins := make([]string, 0, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		origin = strings.TrimSpace(origin)
		if origin == "" {
			continue
		}
		if origin == "*" {
			origins = nil
			break
		}
		origins = append(origins, origin)
	}
	if len(origins) == 0 {
		config.AllowAllOrigins = true
	} else {
		config.AllowOrigins = origins
		config.AllowCredentials = true
	}
	return cors.New(config)
}

func (h *httpHandler) authorizeRequest(c *gin.Context) {
	header := c.GetHeader("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errInvalidAuthorization.Error()})
		return
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if token == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errInvalidAuthorization.Error()})
		return
	}
	account, err := h.verifier.Verify(c.Request.Context(), token)
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired), errors.Is(err, auth.ErrExpiredToken):
			h.logger.Info("token validation failed", zap.Error(err))
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		case auth.IsAccountRestricted(err):
			h.logger.Warn("token validation failed", zap.Error(err))
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "account_restricted"})
		case auth.IsAuthenticationFailure(err):
			h.logger.Warn("token validation failed", zap.Error(err))
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		default:
			h.logger.Error("account lookup failed", zap.Error(err))
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"error": "authorization_unavailable",
				"code":  serviceerr.Code(err),
			})
		}
		return
	}
	c.Set(userIDContextKey, account.UserID)
	c.Next()
}

// respondError maps service errors onto HTTP statuses.
func (h *httpHandler) respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, messages.ErrEmptyContent):
		c.JSON(http.StatusBadRequest, gin.H{"error": "empty_content"})
	case errors.Is(err, messages.ErrInvalidRecipient):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_recipient"})
	case errors.Is(err, users.ErrUserNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "user_not_found"})
	case errors.Is(err, notifications.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "notification_not_found"})
	case errors.Is(err, notifications.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
	default:
		code := serviceerr.Code(err)
		h.logger.Error("request failed",
			zap.String("path", c.FullPath()),
			zap.String("code", code),
			zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "code": code})
	}
}

func currentUserID(c *gin.Context) (string, bool) {
	userID := c.GetString(userIDContextKey)
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return "", false
	}
	return userID, true
}
