package messages

import (
	"context"
	"errors"
	"sort"

	"github.com/campusconnect/backend/internal/serviceerr"
	"github.com/campusconnect/backend/internal/users"
	"go.uber.org/zap"
)

const (
	opListConversations = "messages.list_conversations"
	opGetConversation   = "messages.get_conversation"

	queryPair            = "((sender_id = ? AND receiver_id = ?) OR (sender_id = ? AND receiver_id = ?))"
	queryUnreadFrom      = "sender_id = ? AND receiver_id = ? AND is_read = ?"
	orderNewestFirst     = "created_at DESC, message_id DESC"
	queryDistinctPartner = `SELECT DISTINCT CASE WHEN sender_id = ? THEN receiver_id ELSE sender_id END AS partner_id
FROM direct_messages
WHERE sender_id = ? OR receiver_id = ?`

	DefaultPageSize = 50
	MaxPageSize     = 100
)

// ConversationSummary is one row of a user's inbox.
type ConversationSummary struct {
	Partner       users.Profile `json:"user"`
	LatestMessage View          `json:"lastMessage"`
	UnreadCount   int64         `json:"unreadCount"`
}

// Conversation is one page of the messages exchanged with a partner, oldest first.
type Conversation struct {
	Partner  users.Profile `json:"partner"`
	Messages []View        `json:"messages"`
	Total    int64         `json:"total"`
	Pages    int           `json:"pages"`
	Page     int           `json:"page"`
}

// ListConversations returns one summary per counterpart the user has exchanged messages
// with, most recently active first. Counterparts whose account no longer exists are dropped.
func (s *Service) ListConversations(ctx context.Context, userID string) ([]ConversationSummary, error) {
	if s.db == nil {
		return nil, serviceerr.New(opListConversations, "missing_database", errMissingDatabase)
	}
	userID, ok := normalizeIdentifier(userID)
	if !ok {
		return nil, serviceerr.New(opListConversations, "missing_user_id", errMissingUserID)
	}

	var partnerIDs []string
	if err := s.db.WithContext(ctx).
		Raw(queryDistinctPartner, userID, userID, userID).
		Scan(&partnerIDs).Error; err != nil {
		s.logError(opListConversations, "partner_query_failed", err, zap.String("user_id", userID))
		return nil, serviceerr.New(opListConversations, "partner_query_failed", err)
	}
	summaries := make([]ConversationSummary, 0, len(partnerIDs))
	if len(partnerIDs) == 0 {
		return summaries, nil
	}

	profiles, err := s.directory.Profiles(ctx, partnerIDs)
	if err != nil {
		s.logError(opListConversations, "profile_lookup_failed", err, zap.String("user_id", userID))
		return nil, serviceerr.New(opListConversations, "profile_lookup_failed", err)
	}

	for _, partnerID := range partnerIDs {
		profile, ok := profiles[partnerID]
		if !ok {
			continue
		}

		var latest Message
		if err := s.db.WithContext(ctx).
			Where(queryPair, userID, partnerID, partnerID, userID).
			Order(orderNewestFirst).
			Limit(1).
			Take(&latest).Error; err != nil {
			s.logError(opListConversations, "latest_query_failed", err,
				zap.String("user_id", userID),
				zap.String("partner_id", partnerID))
			return nil, serviceerr.New(opListConversations, "latest_query_failed", err)
		}

		var unread int64
		if err := s.db.WithContext(ctx).
			Model(&Message{}).
			Where(queryUnreadFrom, partnerID, userID, false).
			Count(&unread).Error; err != nil {
			s.logError(opListConversations, "unread_query_failed", err,
				zap.String("user_id", userID),
				zap.String("partner_id", partnerID))
			return nil, serviceerr.New(opListConversations, "unread_query_failed", err)
		}

		summaries = append(summaries, ConversationSummary{
			Partner:       profile,
			LatestMessage: NewView(latest, userID),
			UnreadCount:   unread,
		})
	}

	sort.SliceStable(summaries, func(i, j int) bool {
		left, right := summaries[i].LatestMessage, summaries[j].LatestMessage
		if !left.CreatedAt.Equal(right.CreatedAt) {
			return left.CreatedAt.After(right.CreatedAt)
		}
		return left.ID > right.ID
	})
	return summaries, nil
}

// GetConversation returns one page of messages exchanged with partnerID. Opening any page
// marks every partner→user message in the conversation read, not just the returned window.
func (s *Service) GetConversation(ctx context.Context, userID, partnerID string, page, pageSize int) (Conversation, error) {
	if s.db == nil {
		return Conversation{}, serviceerr.New(opGetConversation, "missing_database", errMissingDatabase)
	}
	userID, ok := normalizeIdentifier(userID)
	if !ok {
		return Conversation{}, serviceerr.New(opGetConversation, "missing_user_id", errMissingUserID)
	}
	partnerID, ok = normalizeIdentifier(partnerID)
	if !ok {
		return Conversation{}, serviceerr.New(opGetConversation, "partner_not_found", users.ErrUserNotFound)
	}
	page, pageSize = normalizeWindow(page, pageSize)

	partner, err := s.directory.FindByID(ctx, partnerID)
	if err != nil {
		if errors.Is(err, users.ErrUserNotFound) {
			return Conversation{}, serviceerr.New(opGetConversation, "partner_not_found", err)
		}
		s.logError(opGetConversation, "partner_lookup_failed", err, zap.String("partner_id", partnerID))
		return Conversation{}, serviceerr.New(opGetConversation, "partner_lookup_failed", err)
	}

	if _, err := s.MarkConversationRead(ctx, userID, partnerID); err != nil {
		return Conversation{}, err
	}

	var total int64
	if err := s.db.WithContext(ctx).
		Model(&Message{}).
		Where(queryPair, userID, partnerID, partnerID, userID).
		Count(&total).Error; err != nil {
		s.logError(opGetConversation, "count_failed", err, zap.String("user_id", userID))
		return Conversation{}, serviceerr.New(opGetConversation, "count_failed", err)
	}

	var window []Message
	if err := s.db.WithContext(ctx).
		Where(queryPair, userID, partnerID, partnerID, userID).
		Order(orderNewestFirst).
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&window).Error; err != nil {
		s.logError(opGetConversation, "query_failed", err, zap.String("user_id", userID))
		return Conversation{}, serviceerr.New(opGetConversation, "query_failed", err)
	}

	views := make([]View, len(window))
	for index, message := range window {
		views[len(window)-1-index] = NewView(message, userID)
	}

	return Conversation{
		Partner:  partner.Profile(),
		Messages: views,
		Total:    total,
		Pages:    pageCount(total, pageSize),
		Page:     page,
	}, nil
}

// MarkConversationRead flips every unread partner→user message to read and reports how
// many changed. Already-read messages are untouched, so repeated calls are no-ops.
func (s *Service) MarkConversationRead(ctx context.Context, userID, partnerID string) (int64, error) {
	if s.db == nil {
		return 0, serviceerr.New(opGetConversation, "missing_database", errMissingDatabase)
	}
	result := s.db.WithContext(ctx).
		Model(&Message{}).
		Where(queryUnreadFrom, partnerID, userID, false).
		Update("is_read", true)
	if result.Error != nil {
		s.logError(opGetConversation, "mark_read_failed", result.Error,
			zap.String("user_id", userID),
			zap.String("partner_id", partnerID))
		return 0, serviceerr.New(opGetConversation, "mark_read_failed", result.Error)
	}
	return result.RowsAffected, nil
}

func normalizeWindow(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = DefaultPageSize
	}
	if pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}
	return page, pageSize
}

func pageCount(total int64, pageSize int) int {
	if total == 0 {
		return 0
	}
	return int((total + int64(pageSize) - 1) / int64(pageSize))
}
