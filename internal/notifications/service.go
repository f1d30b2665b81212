package notifications

import (
	"context"
	"errors"
	"time"

	"github.com/campusconnect/backend/internal/ids"
	"github.com/campusconnect/backend/internal/serviceerr"
	"github.com/campusconnect/backend/internal/users"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	// ErrNotFound indicates the notification does not exist.
	ErrNotFound = errors.New("notifications: not found")
	// ErrForbidden indicates the caller does not own the notification.
	ErrForbidden = errors.New("notifications: not owned by caller")
	// ErrInvalidNotification indicates a notification is missing its recipient, sender or type.
	ErrInvalidNotification = errors.New("notifications: invalid notification")

	errMissingDatabase   = errors.New("database handle is required")
	errMissingIDProvider = errors.New("id provider is required")
	errMissingUserID     = errors.New("user identifier is required")
	noOpLogger           = zap.NewNop()
)

const (
	opServiceNew   = "notifications.service.new"
	opCreate       = "notifications.create"
	opRecentUnread = "notifications.recent_unread"
	opList         = "notifications.list"
	opUnreadCount  = "notifications.unread_count"
	opMarkRead     = "notifications.mark_read"
	opMarkAllRead  = "notifications.mark_all_read"
	opDelete       = "notifications.delete"

	queryRecipient       = "recipient_id = ?"
	queryRecipientUnread = "recipient_id = ? AND is_read = ?"
	queryNotificationID  = "notification_id = ?"
	orderNewestFirst     = "created_at DESC, notification_id DESC"

	// DefaultRecentLimit is the number of unread notifications pushed to a realtime client.
	DefaultRecentLimit = 10
	defaultPageSize    = 20
	maxPageSize        = 100
)

// ProfileLookup resolves sender display metadata.
type ProfileLookup interface {
	Profiles(ctx context.Context, userIDs []string) (map[string]users.Profile, error)
}

type ServiceConfig struct {
	Database   *gorm.DB
	Clock      func() time.Time
	IDProvider ids.Provider
	Profiles   ProfileLookup
	Logger     *zap.Logger
}

// Service is the notification store and its read-side views.
type Service struct {
	db         *gorm.DB
	clock      func() time.Time
	idProvider ids.Provider
	profiles   ProfileLookup
	logger     *zap.Logger
}

func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, serviceerr.New(opServiceNew, "missing_database", errMissingDatabase)
	}
	if cfg.IDProvider == nil {
		return nil, serviceerr.New(opServiceNew, "missing_id_provider", errMissingIDProvider)
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
		db:         cfg.Database,
		clock:      clock,
		idProvider: cfg.IDProvider,
		profiles:   cfg.Profiles,
		logger:     logger,
	}, nil
}

// Create persists a new unread notification and returns it with its assigned identifier.
func (s *Service) Create(ctx context.Context, notification Notification) (Notification, error) {
	if s.db == nil {
		return Notification{}, serviceerr.New(opCreate, "missing_database", errMissingDatabase)
	}
	if notification.RecipientID == "" || notification.SenderID == "" {
		return Notification{}, serviceerr.New(opCreate, "invalid_notification", ErrInvalidNotification)
	}
	if _, ok := ParseType(string(notification.Type)); !ok {
		return Notification{}, serviceerr.New(opCreate, "invalid_type", ErrInvalidNotification)
	}

	id, err := s.idProvider.NewID()
	if err != nil {
		s.logError(opCreate, "id_generation_failed", err)
		return Notification{}, serviceerr.New(opCreate, "id_generation_failed", err)
	}
	notification.NotificationID = id
	notification.Read = false
	notification.CreatedAt = s.clock().UTC()

	if err := s.db.WithContext(ctx).Create(&notification).Error; err != nil {
		s.logError(opCreate, "insert_failed", err,
			zap.String("recipient_id", notification.RecipientID),
			zap.String("type", string(notification.Type)))
		return Notification{}, serviceerr.New(opCreate, "insert_failed", err)
	}
	return notification, nil
}

// RecentUnread returns up to limit unread notifications for the user, newest first.
func (s *Service) RecentUnread(ctx context.Context, userID string, limit int) ([]View, error) {
	if s.db == nil {
		return nil, serviceerr.New(opRecentUnread, "missing_database", errMissingDatabase)
	}
	if userID == "" {
		return nil, serviceerr.New(opRecentUnread, "missing_user_id", errMissingUserID)
	}
	if limit <= 0 {
		limit = DefaultRecentLimit
	}

	var records []Notification
	if err := s.db.WithContext(ctx).
		Where(queryRecipientUnread, userID, false).
		Order(orderNewestFirst).
		Limit(limit).
		Find(&records).Error; err != nil {
		s.logError(opRecentUnread, "query_failed", err, zap.String("user_id", userID))
		return nil, serviceerr.New(opRecentUnread, "query_failed", err)
	}
	return s.enrich(ctx, opRecentUnread, records)
}

// List returns one page of the user's notifications, newest first.
func (s *Service) List(ctx context.Context, userID string, page, pageSize int) (Page, error) {
	if s.db == nil {
		return Page{}, serviceerr.New(opList, "missing_database", errMissingDatabase)
	}
	if userID == "" {
		return Page{}, serviceerr.New(opList, "missing_user_id", errMissingUserID)
	}
	page, pageSize = normalizeWindow(page, pageSize)

	var total int64
	if err := s.db.WithContext(ctx).
		Model(&Notification{}).
		Where(queryRecipient, userID).
		Count(&total).Error; err != nil {
		s.logError(opList, "count_failed", err, zap.String("user_id", userID))
		return Page{}, serviceerr.New(opList, "count_failed", err)
	}

	var records []Notification
	if err := s.db.WithContext(ctx).
		Where(queryRecipient, userID).
		Order(orderNewestFirst).
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&records).Error; err != nil {
		s.logError(opList, "query_failed", err, zap.String("user_id", userID))
		return Page{}, serviceerr.New(opList, "query_failed", err)
	}

	views, err := s.enrich(ctx, opList, records)
	if err != nil {
		return Page{}, err
	}
	return Page{
		Notifications: views,
		Total:         total,
		Pages:         pageCount(total, pageSize),
		Page:          page,
	}, nil
}

// UnreadCount returns the number of unread notifications for the user.
func (s *Service) UnreadCount(ctx context.Context, userID string) (int64, error) {
	if s.db == nil {
		return 0, serviceerr.New(opUnreadCount, "missing_database", errMissingDatabase)
	}
	if userID == "" {
		return 0, serviceerr.New(opUnreadCount, "missing_user_id", errMissingUserID)
	}
	var count int64
	if err := s.db.WithContext(ctx).
		Model(&Notification{}).
		Where(queryRecipientUnread, userID, false).
		Count(&count).Error; err != nil {
		s.logError(opUnreadCount, "query_failed", err, zap.String("user_id", userID))
		return 0, serviceerr.New(opUnreadCount, "query_failed", err)
	}
	return count, nil
}

// MarkRead flips a single notification to read. Marking an already-read notification is a no-op.
func (s *Service) MarkRead(ctx context.Context, userID, notificationID string) error {
	if s.db == nil {
		return serviceerr.New(opMarkRead, "missing_database", errMissingDatabase)
	}
	if _, err := s.owned(ctx, opMarkRead, userID, notificationID); err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).
		Model(&Notification{}).
		Where(queryNotificationID+" AND is_read = ?", notificationID, false).
		Update("is_read", true).Error; err != nil {
		s.logError(opMarkRead, "update_failed", err, zap.String("notification_id", notificationID))
		return serviceerr.New(opMarkRead, "update_failed", err)
	}
	return nil
}

// MarkAllRead flips every unread notification of the user and reports how many changed.
func (s *Service) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	if s.db == nil {
		return 0, serviceerr.New(opMarkAllRead, "missing_database", errMissingDatabase)
	}
	if userID == "" {
		return 0, serviceerr.New(opMarkAllRead, "missing_user_id", errMissingUserID)
	}
	result := s.db.WithContext(ctx).
		Model(&Notification{}).
		Where(queryRecipientUnread, userID, false).
		Update("is_read", true)
	if result.Error != nil {
		s.logError(opMarkAllRead, "update_failed", result.Error, zap.String("user_id", userID))
		return 0, serviceerr.New(opMarkAllRead, "update_failed", result.Error)
	}
	return result.RowsAffected, nil
}

// Delete removes a notification owned by the user.
func (s *Service) Delete(ctx context.Context, userID, notificationID string) error {
	if s.db == nil {
		return serviceerr.New(opDelete, "missing_database", errMissingDatabase)
	}
	if _, err := s.owned(ctx, opDelete, userID, notificationID); err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).
		Where(queryNotificationID, notificationID).
		Delete(&Notification{}).Error; err != nil {
		s.logError(opDelete, "delete_failed", err, zap.String("notification_id", notificationID))
		return serviceerr.New(opDelete, "delete_failed", err)
	}
	return nil
}

func (s *Service) owned(ctx context.Context, operation, userID, notificationID string) (Notification, error) {
	if userID == "" {
		return Notification{}, serviceerr.New(operation, "missing_user_id", errMissingUserID)
	}
	var record Notification
	err := s.db.WithContext(ctx).
		Where(queryNotificationID, notificationID).
		Take(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Notification{}, serviceerr.New(operation, "not_found", ErrNotFound)
	}
	if err != nil {
		s.logError(operation, "lookup_failed", err, zap.String("notification_id", notificationID))
		return Notification{}, serviceerr.New(operation, "lookup_failed", err)
	}
	if record.RecipientID != userID {
		return Notification{}, serviceerr.New(operation, "forbidden", ErrForbidden)
	}
	return record, nil
}

func (s *Service) enrich(ctx context.Context, operation string, records []Notification) ([]View, error) {
	views := make([]View, 0, len(records))
	if len(records) == 0 {
		return views, nil
	}
	profiles := map[string]users.Profile{}
	if s.profiles != nil {
		senderIDs := make([]string, 0, len(records))
		for _, record := range records {
			senderIDs = append(senderIDs, record.SenderID)
		}
		resolved, err := s.profiles.Profiles(ctx, senderIDs)
		if err != nil {
			s.logError(operation, "profile_lookup_failed", err)
			return nil, serviceerr.New(operation, "profile_lookup_failed", err)
		}
		profiles = resolved
	}
	for _, record := range records {
		var sender *users.Profile
		if profile, ok := profiles[record.SenderID]; ok {
			sender = &profile
		}
		views = append(views, newView(record, sender))
	}
	return views, nil
}

func normalizeWindow(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return page, pageSize
}

func pageCount(total int64, pageSize int) int {
	if total == 0 {
		return 0
	}
	return int((total + int64(pageSize) - 1) / int64(pageSize))
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
	s.loggerOrDefault().Error("notifications service error", attrs...)
}

func (s *Service) loggerOrDefault() *zap.Logger {
	if s == nil || s.logger == nil {
		return noOpLogger
	}
	return s.logger
}
