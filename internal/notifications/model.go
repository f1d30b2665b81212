package notifications

import (
	"strings"
	"time"

	"github.com/campusconnect/backend/internal/users"
)

// Type enumerates the notification kinds produced across the platform.
type Type string

const (
	TypeMessage      Type = "message"
	TypePostComment  Type = "post_comment"
	TypeCommentReply Type = "comment_reply"
	TypeClaim        Type = "claim"
	TypeAnnouncement Type = "announcement"
	TypeAdmin        Type = "admin"
	TypePostLike     Type = "post_like"
)

// ParseType validates raw input against the closed set of notification types.
func ParseType(raw string) (Type, bool) {
	switch candidate := Type(strings.ToLower(strings.TrimSpace(raw))); candidate {
	case TypeMessage, TypePostComment, TypeCommentReply, TypeClaim, TypeAnnouncement, TypeAdmin, TypePostLike:
		return candidate, true
	default:
		return "", false
	}
}

// Notification is a persisted inbound event for a single recipient.
type Notification struct {
	NotificationID string    `gorm:"column:notification_id;primaryKey;size:64;not null"`
	RecipientID    string    `gorm:"column:recipient_id;size:190;not null;index:idx_notifications_recipient,priority:1"`
	SenderID       string    `gorm:"column:sender_id;size:190;not null"`
	Type           Type      `gorm:"column:notification_type;size:32;not null"`
	Content        string    `gorm:"column:content;type:text;not null;default:''"`
	ReferenceID    string    `gorm:"column:reference_id;size:190;not null;default:''"`
	ReferenceKind  string    `gorm:"column:reference_kind;size:32;not null;default:''"`
	Read           bool      `gorm:"column:is_read;not null;default:false;index:idx_notifications_recipient,priority:2"`
	CreatedAt      time.Time `gorm:"column:created_at;not null;index:idx_notifications_recipient,priority:3"`
}

// TableName provides the explicit table binding for GORM.
func (Notification) TableName() string {
	return "notifications"
}

// View is a notification enriched with the sender's display metadata.
type View struct {
	ID            string         `json:"_id"`
	RecipientID   string         `json:"recipient"`
	Type          Type           `json:"type"`
	Content       string         `json:"content"`
	ReferenceID   string         `json:"relatedId,omitempty"`
	ReferenceKind string         `json:"relatedModel,omitempty"`
	Read          bool           `json:"read"`
	CreatedAt     time.Time      `json:"createdAt"`
	Sender        *users.Profile `json:"sender"`
}

func newView(notification Notification, sender *users.Profile) View {
	if sender == nil {
		sender = &users.Profile{ID: notification.SenderID}
	}
	return View{
		ID:            notification.NotificationID,
		RecipientID:   notification.RecipientID,
		Type:          notification.Type,
		Content:       notification.Content,
		ReferenceID:   notification.ReferenceID,
		ReferenceKind: notification.ReferenceKind,
		Read:          notification.Read,
		CreatedAt:     notification.CreatedAt,
		Sender:        sender,
	}
}

// Page is one window of a recipient's notifications.
type Page struct {
	Notifications []View `json:"notifications"`
	Total         int64  `json:"total"`
	Pages         int    `json:"pages"`
	Page          int    `json:"page"`
}
