package users

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
)

var (
	// ErrUserNotFound indicates the referenced account does not exist.
	ErrUserNotFound = errors.New("users: user not found")
	// ErrInvalidUser indicates the account record is missing required fields.
	ErrInvalidUser = errors.New("users: invalid user")
)

// ServiceConfig describes the dependencies required for account lookups.
type ServiceConfig struct {
	Database *gorm.DB
	Clock    func() time.Time
}

// Service reads account records and their display metadata.
type Service struct {
	db  *gorm.DB
	now func() time.Time
}

// NewService constructs the user service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, fmt.Errorf("users: database connection required")
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Service{
		db:  cfg.Database,
		now: clock,
	}, nil
}

// Create inserts a new account. It exists for provisioning tools and tests; account
// management itself lives outside this service.
func (s *Service) Create(ctx context.Context, user User) (User, error) {
	user.UserID = normalize(user.UserID)
	user.Username = normalize(user.Username)
	user.Email = normalize(user.Email)
	user.AvatarURL = normalize(user.AvatarURL)
	if user.UserID == "" || user.Username == "" {
		return User{}, ErrInvalidUser
	}
	now := s.now().UTC()
	user.CreatedAt = now
	user.UpdatedAt = now
	if err := s.db.WithContext(ctx).Create(&user).Error; err != nil {
		return User{}, err
	}
	return user, nil
}

// FindByID loads a single account.
func (s *Service) FindByID(ctx context.Context, userID string) (User, error) {
	userID = normalize(userID)
	if userID == "" {
		return User{}, ErrUserNotFound
	}
	var user User
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Take(&user).
		Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return User{}, ErrUserNotFound
	}
	if err != nil {
		return User{}, err
	}
	return user, nil
}

// Profiles resolves display metadata for the provided identifiers. Unknown identifiers
// are absent from the result rather than reported as errors.
func (s *Service) Profiles(ctx context.Context, userIDs []string) (map[string]Profile, error) {
	unique := make([]string, 0, len(userIDs))
	seen := make(map[string]struct{}, len(userIDs))
	for _, id := range userIDs {
		id = normalize(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		unique = append(unique, id)
	}
	profiles := make(map[string]Profile, len(unique))
	if len(unique) == 0 {
		return profiles, nil
	}

	var records []User
	if err := s.db.WithContext(ctx).
		Where("user_id IN ?", unique).
		Find(&records).Error; err != nil {
		return nil, err
	}
	for _, record := range records {
		profiles[record.UserID] = record.Profile()
	}
	return profiles, nil
}
