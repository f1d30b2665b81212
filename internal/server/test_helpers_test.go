package server

import (
	"context"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/campusconnect/backend/internal/auth"
	"github.com/campusconnect/backend/internal/database"
	"github.com/campusconnect/backend/internal/ids"
	"github.com/campusconnect/backend/internal/messages"
	"github.com/campusconnect/backend/internal/metrics"
	"github.com/campusconnect/backend/internal/notifications"
	"github.com/campusconnect/backend/internal/users"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type routerFixture struct {
	db            *gorm.DB
	users         *users.Service
	messages      *messages.Service
	notifications *notifications.Service
	tokens        *auth.TokenIssuer
	registry      *prometheus.Registry
	uploadsDir    string
	handler       http.Handler
}

func newRouterFixture(t *testing.T) *routerFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)
	tempDir := t.TempDir()

	db, err := database.OpenSQLite(filepath.Join(tempDir, "campus.db"), zap.NewNop())
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	userService, err := users.NewService(users.ServiceConfig{Database: db})
	if err != nil {
		t.Fatalf("failed to build user service: %v", err)
	}
	notificationService, err := notifications.NewService(notifications.ServiceConfig{
		Database:   db,
		IDProvider: ids.NewUUIDProvider(),
		Profiles:   userService,
	})
	if err != nil {
		t.Fatalf("failed to build notification service: %v", err)
	}
	registry := prometheus.NewRegistry()
	collectors, err := metrics.New(registry)
	if err != nil {
		t.Fatalf("failed to register metrics: %v", err)
	}
	messageService, err := messages.NewService(messages.ServiceConfig{
		Database:      db,
		IDProvider:    ids.NewUUIDProvider(),
		Directory:     userService,
		Notifications: notificationService,
		Metrics:       collectors,
	})
	if err != nil {
		t.Fatalf("failed to build message service: %v", err)
	}
	tokenIssuer, err := auth.NewTokenIssuer(auth.TokenIssuerConfig{
		SigningSecret: []byte("router-test-secret"),
		Issuer:        "campus-api",
		Audience:      "campus-clients",
		TokenTTL:      time.Hour,
	})
	if err != nil {
		t.Fatalf("failed to build token issuer: %v", err)
	}
	verifier, err := auth.NewIdentityVerifier(tokenIssuer, userService)
	if err != nil {
		t.Fatalf("failed to build verifier: %v", err)
	}

	uploadsDir := filepath.Join(tempDir, "uploads")
	handler, err := NewHTTPHandler(Dependencies{
		Verifier:       verifier,
		Messages:       messageService,
		Notifications:  notificationService,
		Gatherer:       registry,
		UploadsDir:     uploadsDir,
		MaxUploadBytes: 1024,
		Logger:         zap.NewNop(),
	})
	if err != nil {
		t.Fatalf("failed to build handler: %v", err)
	}

	return &routerFixture{
		db:            db,
		users:         userService,
		messages:      messageService,
		notifications: notificationService,
		tokens:        tokenIssuer,
		registry:      registry,
		uploadsDir:    uploadsDir,
		handler:       handler,
	}
}

// mustCreateUser provisions a verified account and returns a bearer token for it.
func (f *routerFixture) mustCreateUser(t *testing.T, userID string) string {
	t.Helper()
	if _, err := f.users.Create(context.Background(), users.User{
		UserID:   userID,
		Username: "name-" + userID,
		Verified: true,
	}); err != nil {
		t.Fatalf("failed to create user %s: %v", userID, err)
	}
	token, _, err := f.tokens.IssueToken(context.Background(), userID)
	if err != nil {
		t.Fatalf("failed to issue token for %s: %v", userID, err)
	}
	return token
}
