package messages

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/campusconnect/backend/internal/ids"
	"github.com/campusconnect/backend/internal/notifications"
	"github.com/campusconnect/backend/internal/users"
	sqlite "github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type testEnvironment struct {
	db            *gorm.DB
	users         *users.Service
	notifications *notifications.Service
	service       *Service
}

type steppingClock struct {
	current time.Time
}

func (c *steppingClock) Now() time.Time {
	c.current = c.current.Add(time.Second)
	return c.current
}

func newTestEnvironment(t *testing.T, writer NotificationWriter, logger *zap.Logger) *testEnvironment {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "messages.db")), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&Message{}, &notifications.Notification{}, &users.User{}); err != nil {
		t.Fatalf("failed to migrate schema: %v", err)
	}
	clock := &steppingClock{current: time.Date(2025, 4, 1, 8, 0, 0, 0, time.UTC)}

	userService, err := users.NewService(users.ServiceConfig{Database: db})
	if err != nil {
		t.Fatalf("failed to build user service: %v", err)
	}
	notificationService, err := notifications.NewService(notifications.ServiceConfig{
		Database:   db,
		Clock:      clock.Now,
		IDProvider: ids.NewUUIDProvider(),
		Profiles:   userService,
	})
	if err != nil {
		t.Fatalf("failed to build notification service: %v", err)
	}
	if writer == nil {
		writer = notificationService
	}
	service, err := NewService(ServiceConfig{
		Database:      db,
		Clock:         clock.Now,
		IDProvider:    ids.NewUUIDProvider(),
		Directory:     userService,
		Notifications: writer,
		Logger:        logger,
	})
	if err != nil {
		t.Fatalf("failed to build message service: %v", err)
	}
	return &testEnvironment{
		db:            db,
		users:         userService,
		notifications: notificationService,
		service:       service,
	}
}

func (env *testEnvironment) mustCreateUser(t *testing.T, userID string) {
	t.Helper()
	if _, err := env.users.Create(context.Background(), users.User{
		UserID:   userID,
		Username: "name-" + userID,
		Verified: true,
	}); err != nil {
		t.Fatalf("failed to create user %s: %v", userID, err)
	}
}

func (env *testEnvironment) mustDeliver(t *testing.T, senderID, receiverID, text string) View {
	t.Helper()
	view, err := env.service.Deliver(context.Background(), DeliverRequest{
		SenderID:   senderID,
		ReceiverID: receiverID,
		Text:       text,
	})
	if err != nil {
		t.Fatalf("deliver %s->%s failed: %v", senderID, receiverID, err)
	}
	return view
}

func (env *testEnvironment) countRows(t *testing.T, model interface{}) int64 {
	t.Helper()
	var count int64
	if err := env.db.Model(model).Count(&count).Error; err != nil {
		t.Fatalf("count failed: %v", err)
	}
	return count
}
