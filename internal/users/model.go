package users

import (
	"strings"
	"time"
)

// User is the account record owned by the wider platform. The messaging core only reads it.
type User struct {
	UserID    string    `gorm:"column:user_id;primaryKey;size:190;not null"`
	Username  string    `gorm:"column:username;size:190;not null;index"`
	Email     string    `gorm:"column:email;size:320"`
	AvatarURL string    `gorm:"column:avatar_url;size:512"`
	Verified  bool      `gorm:"column:verified;not null;default:false"`
	Banned    bool      `gorm:"column:banned;not null;default:false"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName exposes the table backing user accounts.
func (User) TableName() string {
	return "users"
}

// Profile is the display metadata attached to messages, conversations and notifications.
type Profile struct {
	ID        string `json:"_id"`
	Username  string `json:"username"`
	AvatarURL string `json:"avatar,omitempty"`
}

// Profile projects the user onto its display metadata.
func (u User) Profile() Profile {
	return Profile{
		ID:        u.UserID,
		Username:  u.Username,
		AvatarURL: u.AvatarURL,
	}
}

func normalize(value string) string {
	return strings.TrimSpace(value)
}
