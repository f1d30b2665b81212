package messages

import (
	"context"
	"errors"
	"testing"

	"github.com/campusconnect/backend/internal/users"
)

func TestGetConversationMarksWholeConversationRead(t *testing.T) {
	env := newTestEnvironment(t, nil, nil)
	env.mustCreateUser(t, "student")
	env.mustCreateUser(t, "partner")

	first := env.mustDeliver(t, "partner", "student", "message A")
	second := env.mustDeliver(t, "partner", "student", "message B")

	conversation, err := env.service.GetConversation(context.Background(), "student", "partner", 1, 1)
	if err != nil {
		t.Fatalf("get conversation failed: %v", err)
	}
	if len(conversation.Messages) != 1 {
		t.Fatalf("expected a single message on the page, got %d", len(conversation.Messages))
	}
	if conversation.Messages[0].ID != second.ID {
		t.Fatalf("expected newest message on the first page, got %s", conversation.Messages[0].ID)
	}
	if conversation.Total != 2 || conversation.Pages != 2 {
		t.Fatalf("unexpected totals: total=%d pages=%d", conversation.Total, conversation.Pages)
	}

	for _, id := range []string{first.ID, second.ID} {
		var stored Message
		if err := env.db.Where("message_id = ?", id).Take(&stored).Error; err != nil {
			t.Fatalf("failed to reload %s: %v", id, err)
		}
		if !stored.Read {
			t.Fatalf("expected message %s to be read", id)
		}
	}
}

func TestGetConversationReturnsChronologicalPage(t *testing.T) {
	env := newTestEnvironment(t, nil, nil)
	env.mustCreateUser(t, "student")
	env.mustCreateUser(t, "partner")

	sent := []View{
		env.mustDeliver(t, "student", "partner", "one"),
		env.mustDeliver(t, "partner", "student", "two"),
		env.mustDeliver(t, "student", "partner", "three"),
		env.mustDeliver(t, "partner", "student", "four"),
	}

	conversation, err := env.service.GetConversation(context.Background(), "student", "partner", 1, 3)
	if err != nil {
		t.Fatalf("get conversation failed: %v", err)
	}
	if len(conversation.Messages) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(conversation.Messages))
	}
	expected := []string{sent[1].ID, sent[2].ID, sent[3].ID}
	for index, id := range expected {
		if conversation.Messages[index].ID != id {
			t.Fatalf("expected %s at %d, got %s", id, index, conversation.Messages[index].ID)
		}
	}
	if !conversation.Messages[1].IsFromUser || conversation.Messages[0].IsFromUser {
		t.Fatalf("unexpected perspective flags: %+v", conversation.Messages)
	}
	if conversation.Partner.ID != "partner" || conversation.Partner.Username != "name-partner" {
		t.Fatalf("unexpected partner profile: %+v", conversation.Partner)
	}

	older, err := env.service.GetConversation(context.Background(), "student", "partner", 2, 3)
	if err != nil {
		t.Fatalf("get second page failed: %v", err)
	}
	if len(older.Messages) != 1 || older.Messages[0].ID != sent[0].ID {
		t.Fatalf("unexpected second page: %+v", older.Messages)
	}
}

func TestGetConversationLeavesOwnMessagesUnread(t *testing.T) {
	env := newTestEnvironment(t, nil, nil)
	env.mustCreateUser(t, "student")
	env.mustCreateUser(t, "partner")
	outgoing := env.mustDeliver(t, "student", "partner", "ping")

	if _, err := env.service.GetConversation(context.Background(), "student", "partner", 1, 10); err != nil {
		t.Fatalf("get conversation failed: %v", err)
	}
	var stored Message
	if err := env.db.Where("message_id = ?", outgoing.ID).Take(&stored).Error; err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	if stored.Read {
		t.Fatalf("opening a conversation must not mark the caller's own messages read")
	}
}

func TestMarkConversationReadIsIdempotent(t *testing.T) {
	env := newTestEnvironment(t, nil, nil)
	env.mustCreateUser(t, "student")
	env.mustCreateUser(t, "partner")
	env.mustDeliver(t, "partner", "student", "a")
	env.mustDeliver(t, "partner", "student", "b")

	changed, err := env.service.MarkConversationRead(context.Background(), "student", "partner")
	if err != nil {
		t.Fatalf("mark read failed: %v", err)
	}
	if changed != 2 {
		t.Fatalf("expected 2 messages changed, got %d", changed)
	}
	changed, err = env.service.MarkConversationRead(context.Background(), "student", "partner")
	if err != nil {
		t.Fatalf("second mark read failed: %v", err)
	}
	if changed != 0 {
		t.Fatalf("expected second call to be a no-op, changed %d", changed)
	}

	var unread int64
	if err := env.db.Model(&Message{}).Where("is_read = ?", false).Count(&unread).Error; err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if unread != 0 {
		t.Fatalf("expected no unread messages, got %d", unread)
	}
}

func TestGetConversationUnknownPartner(t *testing.T) {
	env := newTestEnvironment(t, nil, nil)
	env.mustCreateUser(t, "student")

	_, err := env.service.GetConversation(context.Background(), "student", "ghost", 1, 10)
	if !errors.Is(err, users.ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestListConversationsSummarizesPartners(t *testing.T) {
	env := newTestEnvironment(t, nil, nil)
	for _, id := range []string{"student", "alice", "bob"} {
		env.mustCreateUser(t, id)
	}

	env.mustDeliver(t, "alice", "student", "hi from alice")
	env.mustDeliver(t, "student", "bob", "hi bob")
	env.mustDeliver(t, "alice", "student", "again from alice")
	latestBob := env.mustDeliver(t, "bob", "student", "reply from bob")

	summaries, err := env.service.ListConversations(context.Background(), "student")
	if err != nil {
		t.Fatalf("list conversations failed: %v", err)
	}
	if len(summaries) != 2 {
		t.Fatalf("expected 2 conversations, got %d", len(summaries))
	}
	if summaries[0].Partner.ID != "bob" || summaries[0].LatestMessage.ID != latestBob.ID {
		t.Fatalf("expected bob's conversation first, got %+v", summaries[0])
	}
	if summaries[0].UnreadCount != 1 {
		t.Fatalf("expected 1 unread from bob, got %d", summaries[0].UnreadCount)
	}
	if summaries[1].Partner.ID != "alice" || summaries[1].UnreadCount != 2 {
		t.Fatalf("unexpected alice summary: %+v", summaries[1])
	}
	if summaries[1].LatestMessage.Text != "again from alice" {
		t.Fatalf("unexpected latest message for alice: %q", summaries[1].LatestMessage.Text)
	}

	if _, err := env.service.GetConversation(context.Background(), "student", "alice", 1, 1); err != nil {
		t.Fatalf("get conversation failed: %v", err)
	}
	summaries, err = env.service.ListConversations(context.Background(), "student")
	if err != nil {
		t.Fatalf("second list failed: %v", err)
	}
	for _, summary := range summaries {
		if summary.Partner.ID == "alice" && summary.UnreadCount != 0 {
			t.Fatalf("expected alice conversation to be read, got %d unread", summary.UnreadCount)
		}
	}
}

func TestListConversationsDropsDeletedPartners(t *testing.T) {
	env := newTestEnvironment(t, nil, nil)
	env.mustCreateUser(t, "student")
	env.mustCreateUser(t, "leaver")
	env.mustDeliver(t, "leaver", "student", "bye")

	if err := env.db.Where("user_id = ?", "leaver").Delete(&users.User{}).Error; err != nil {
		t.Fatalf("failed to delete user: %v", err)
	}

	summaries, err := env.service.ListConversations(context.Background(), "student")
	if err != nil {
		t.Fatalf("expected deleted partner to be filtered, got error %v", err)
	}
	if len(summaries) != 0 {
		t.Fatalf("expected no conversations, got %d", len(summaries))
	}
}

func TestListConversationsEmptyInbox(t *testing.T) {
	env := newTestEnvironment(t, nil, nil)
	env.mustCreateUser(t, "student")

	summaries, err := env.service.ListConversations(context.Background(), "student")
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if summaries == nil || len(summaries) != 0 {
		t.Fatalf("expected empty non-nil list, got %#v", summaries)
	}
}
