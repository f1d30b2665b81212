package messages

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/campusconnect/backend/internal/ids"
	"github.com/campusconnect/backend/internal/metrics"
	"github.com/campusconnect/backend/internal/notifications"
	"github.com/campusconnect/backend/internal/serviceerr"
	"github.com/campusconnect/backend/internal/users"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	errMissingDatabase      = errors.New("database handle is required")
	errMissingIDProvider    = errors.New("id provider is required")
	errMissingDirectory     = errors.New("user directory is required")
	errMissingNotifications = errors.New("notification writer is required")
	errMissingUserID        = errors.New("user identifier is required")
	noOpLogger              = zap.NewNop()
)

const (
	opServiceNew = "messages.service.new"
	opDeliver    = "messages.deliver"

	referenceKindMessage  = "message"
	previewRuneLimit      = 100
	attachmentPreviewText = "Sent an attachment"
)

// Directory resolves accounts and their display metadata.
type Directory interface {
	FindByID(ctx context.Context, userID string) (users.User, error)
	Profiles(ctx context.Context, userIDs []string) (map[string]users.Profile, error)
}

// NotificationWriter persists the notification that accompanies each message.
type NotificationWriter interface {
	Create(ctx context.Context, notification notifications.Notification) (notifications.Notification, error)
}

type ServiceConfig struct {
	Database      *gorm.DB
	Clock         func() time.Time
	IDProvider    ids.Provider
	Directory     Directory
	Notifications NotificationWriter
	Metrics       *metrics.Metrics
	Logger        *zap.Logger
}

// Service is the single path for creating direct messages and the read side of conversations.
type Service struct {
	db            *gorm.DB
	clock         func() time.Time
	idProvider    ids.Provider
	directory     Directory
	notifications NotificationWriter
	metrics       *metrics.Metrics
	logger        *zap.Logger
}

func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, serviceerr.New(opServiceNew, "missing_database", errMissingDatabase)
	}
	if cfg.IDProvider == nil {
		return nil, serviceerr.New(opServiceNew, "missing_id_provider", errMissingIDProvider)
	}
	if cfg.Directory == nil {
		return nil, serviceerr.New(opServiceNew, "missing_directory", errMissingDirectory)
	}
	if cfg.Notifications == nil {
		return nil, serviceerr.New(opServiceNew, "missing_notifications", errMissingNotifications)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &Service{
		db:            cfg.Database,
		clock:         clock,
		idProvider:    cfg.IDProvider,
		directory:     cfg.Directory,
		notifications: cfg.Notifications,
		metrics:       cfg.Metrics,
		logger:        logger,
	}, nil
}

// DeliverRequest is an outbound message as submitted by the sender.
type DeliverRequest struct {
	SenderID   string
	ReceiverID string
	Text       string
	Media      *Media
	// Path labels the entry point (realtime or http) for metrics.
	Path string
}

// Deliver validates and persists a message, then records its notification. The message
// is stored before the notification that references it; a failed notification write is
// logged and does not undo or fail the delivery. Live push is left to the caller.
func (s *Service) Deliver(ctx context.Context, request DeliverRequest) (View, error) {
	if s.db == nil {
		return View{}, serviceerr.New(opDeliver, "missing_database", errMissingDatabase)
	}

	senderID, ok := normalizeIdentifier(request.SenderID)
	if !ok {
		return View{}, serviceerr.New(opDeliver, "invalid_sender", ErrInvalidRecipient)
	}
	receiverID, ok := normalizeIdentifier(request.ReceiverID)
	if !ok || receiverID == senderID {
		return View{}, serviceerr.New(opDeliver, "invalid_receiver", ErrInvalidRecipient)
	}
	if err := ValidateContent(request.Text, request.Media); err != nil {
		return View{}, serviceerr.New(opDeliver, "empty_content", err)
	}

	if _, err := s.directory.FindByID(ctx, receiverID); err != nil {
		if errors.Is(err, users.ErrUserNotFound) {
			return View{}, serviceerr.New(opDeliver, "receiver_not_found", err)
		}
		s.logError(opDeliver, "receiver_lookup_failed", err, zap.String("receiver_id", receiverID))
		return View{}, serviceerr.New(opDeliver, "receiver_lookup_failed", err)
	}

	messageID, err := s.idProvider.NewID()
	if err != nil {
		s.logError(opDeliver, "id_generation_failed", err)
		return View{}, serviceerr.New(opDeliver, "id_generation_failed", err)
	}
	message := Message{
		MessageID:  messageID,
		SenderID:   senderID,
		ReceiverID: receiverID,
		Text:       request.Text,
		Read:       false,
		CreatedAt:  s.clock().UTC(),
	}
	if request.Media.Present() {
		message.MediaURL = strings.TrimSpace(request.Media.URL)
		message.MediaKind = ParseMediaKind(string(request.Media.Kind))
	}

	if err := s.db.WithContext(ctx).Create(&message).Error; err != nil {
		s.logError(opDeliver, "message_insert_failed", err,
			zap.String("sender_id", senderID),
			zap.String("receiver_id", receiverID))
		return View{}, serviceerr.New(opDeliver, "message_insert_failed", err)
	}
	s.metrics.MessageDelivered(request.Path)

	if _, err := s.notifications.Create(ctx, notifications.Notification{
		RecipientID:   receiverID,
		SenderID:      senderID,
		Type:          notifications.TypeMessage,
		Content:       notificationPreview(message),
		ReferenceID:   message.MessageID,
		ReferenceKind: referenceKindMessage,
	}); err != nil {
		s.metrics.NotificationFailed()
		s.logError(opDeliver, "notification_insert_failed", err,
			zap.String("message_id", message.MessageID),
			zap.String("receiver_id", receiverID))
	}

	return NewView(message, senderID), nil
}

func notificationPreview(message Message) string {
	text := strings.TrimSpace(message.Text)
	if text == "" {
		return attachmentPreviewText
	}
	if utf8.RuneCountInString(text) <= previewRuneLimit {
		return text
	}
	runes := []rune(text)
	return string(runes[:previewRuneLimit]) + "…"
}

func (s *Service) loggerOrDefault() *zap.Logger {
	if s == nil || s.logger == nil {
		return noOpLogger
	}
	return s.logger
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.loggerOrDefault().Error("messages service error", attrs...)
}
