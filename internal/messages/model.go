package messages

import (
	"errors"
	"strings"
	"time"
)

// MediaKind tags the kind of media a message references.
type MediaKind string

const (
	MediaKindImage MediaKind = "image"
	MediaKindVideo MediaKind = "video"
	MediaKindAudio MediaKind = "audio"
	MediaKindFile  MediaKind = "file"
)

const maxIdentifierLength = 190

var (
	// ErrEmptyContent indicates a message carried neither text nor media.
	ErrEmptyContent = errors.New("messages: message content is required")
	// ErrInvalidRecipient indicates the sender or receiver identifier is unusable.
	ErrInvalidRecipient = errors.New("messages: invalid recipient")
)

// ParseMediaKind maps free-form input onto a known kind. Unknown kinds fall back to file.
func ParseMediaKind(raw string) MediaKind {
	switch kind := MediaKind(strings.ToLower(strings.TrimSpace(raw))); kind {
	case MediaKindImage, MediaKindVideo, MediaKindAudio, MediaKindFile:
		return kind
	default:
		return MediaKindFile
	}
}

// Media references an uploaded file by URL. The core never inspects its content.
type Media struct {
	URL  string    `json:"url"`
	Kind MediaKind `json:"kind"`
}

// Present reports whether the media reference points at anything.
func (m *Media) Present() bool {
	return m != nil && strings.TrimSpace(m.URL) != ""
}

// ValidateContent enforces that a message carries non-blank text or a media reference.
func ValidateContent(text string, media *Media) error {
	if strings.TrimSpace(text) == "" && !media.Present() {
		return ErrEmptyContent
	}
	return nil
}

// Message is a persisted direct message. Only Read ever changes after creation.
type Message struct {
	MessageID  string    `gorm:"column:message_id;primaryKey;size:64;not null"`
	SenderID   string    `gorm:"column:sender_id;size:190;not null;index:idx_direct_messages_pair,priority:1"`
	ReceiverID string    `gorm:"column:receiver_id;size:190;not null;index:idx_direct_messages_pair,priority:2;index:idx_direct_messages_inbox,priority:1"`
	Text       string    `gorm:"column:text;type:text;not null;default:''"`
	MediaURL   string    `gorm:"column:media_url;size:512;not null;default:''"`
	MediaKind  MediaKind `gorm:"column:media_kind;size:16;not null;default:''"`
	Read       bool      `gorm:"column:is_read;not null;default:false;index:idx_direct_messages_inbox,priority:2"`
	CreatedAt  time.Time `gorm:"column:created_at;not null;index:idx_direct_messages_pair,priority:3"`
}

// TableName provides the explicit table binding for GORM.
func (Message) TableName() string {
	return "direct_messages"
}

// Participant is the minimal identity reference embedded in message payloads.
type Participant struct {
	ID string `json:"_id"`
}

// View is a message shaped for one participant. IsFromUser is computed per viewer and never stored.
type View struct {
	ID         string      `json:"_id"`
	Sender     Participant `json:"sender"`
	Receiver   string      `json:"receiver"`
	Text       string      `json:"text"`
	Media      *Media      `json:"media,omitempty"`
	Read       bool        `json:"read"`
	CreatedAt  time.Time   `json:"createdAt"`
	IsFromUser bool        `json:"isFromUser"`
}

// NewView shapes a message for the given viewer.
func NewView(message Message, viewerID string) View {
	view := View{
		ID:         message.MessageID,
		Sender:     Participant{ID: message.SenderID},
		Receiver:   message.ReceiverID,
		Text:       message.Text,
		Read:       message.Read,
		CreatedAt:  message.CreatedAt,
		IsFromUser: message.SenderID == viewerID,
	}
	if message.MediaURL != "" {
		view.Media = &Media{URL: message.MediaURL, Kind: message.MediaKind}
	}
	return view
}

func normalizeIdentifier(raw string) (string, bool) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" || len(trimmed) > maxIdentifierLength {
		return "", false
	}
	return trimmed, true
}
