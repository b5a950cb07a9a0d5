package memory_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"chat-service/internal/model"
	"chat-service/internal/plugin/store/memory"
	registrystore "chat-service/internal/registry/store"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newUser(t *testing.T, s *memory.Store, name string) *model.User {
	t.Helper()
	user, err := s.CreateUser(context.Background(), registrystore.CreateUserRequest{
		Email:        name + "@example.com",
		Name:         name,
		PasswordHash: "x",
	})
	require.NoError(t, err)
	return user
}

func TestCreateUser_DuplicateEmail(t *testing.T) {
	s := memory.New()
	ctx := context.Background()

	_, err := s.CreateUser(ctx, registrystore.CreateUserRequest{Email: "Alice@Example.com", Name: "Alice", PasswordHash: "x"})
	require.NoError(t, err)

	// Same address with different casing still collides.
	_, err = s.CreateUser(ctx, registrystore.CreateUserRequest{Email: "alice@example.com", Name: "Alice2", PasswordHash: "x"})
	var conflict *registrystore.ConflictError
	require.True(t, errors.As(err, &conflict))
	assert.Equal(t, "User already exist", err.Error())
}

func TestGetUserByEmail_NormalizesCase(t *testing.T) {
	s := memory.New()
	ctx := context.Background()

	created, err := s.CreateUser(ctx, registrystore.CreateUserRequest{Email: "Bob@Example.com", Name: "Bob", PasswordHash: "x"})
	require.NoError(t, err)

	got, err := s.GetUserByEmail(ctx, "bob@example.com")
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)
}

func TestCreateOrGetChat_DirectChatDedup(t *testing.T) {
	s := memory.New()
	ctx := context.Background()
	alice := newUser(t, s, "alice")
	bob := newUser(t, s, "bob")

	first, err := s.CreateOrGetChat(ctx, alice.ID, registrystore.CreateChatRequest{
		ParticipantIDs: []uuid.UUID{bob.ID},
	})
	require.NoError(t, err)
	assert.False(t, first.IsGroup)
	assert.Len(t, first.Participants, 2)

	// Same pair, requested from the other side, returns the same chat.
	second, err := s.CreateOrGetChat(ctx, bob.ID, registrystore.CreateChatRequest{
		ParticipantIDs: []uuid.UUID{alice.ID},
	})
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	// Repeating the original request is also idempotent.
	third, err := s.CreateOrGetChat(ctx, alice.ID, registrystore.CreateChatRequest{
		ParticipantIDs: []uuid.UUID{bob.ID},
	})
	require.NoError(t, err)
	assert.Equal(t, first.ID, third.ID)
}

func TestCreateOrGetChat_GroupChatsNeverDedup(t *testing.T) {
	s := memory.New()
	ctx := context.Background()
	alice := newUser(t, s, "alice")
	bob := newUser(t, s, "bob")

	first, err := s.CreateOrGetChat(ctx, alice.ID, registrystore.CreateChatRequest{
		ParticipantIDs: []uuid.UUID{bob.ID},
		IsGroup:        true,
		GroupName:      "pair group",
	})
	require.NoError(t, err)
	require.NotNil(t, first.GroupName)
	assert.Equal(t, "pair group", *first.GroupName)
	require.NotNil(t, first.AdminID)
	assert.Equal(t, alice.ID, *first.AdminID)

	second, err := s.CreateOrGetChat(ctx, alice.ID, registrystore.CreateChatRequest{
		ParticipantIDs: []uuid.UUID{bob.ID},
		IsGroup:        true,
		GroupName:      "pair group",
	})
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)
}

func TestCreateOrGetChat_NonGroupLargerSet(t *testing.T) {
	s := memory.New()
	ctx := context.Background()
	alice := newUser(t, s, "alice")
	bob := newUser(t, s, "bob")
	carol := newUser(t, s, "carol")

	// Pair dedup applies only to two-member sets; a larger non-group create
	// is accepted as sent and never deduplicated.
	first, err := s.CreateOrGetChat(ctx, alice.ID, registrystore.CreateChatRequest{
		ParticipantIDs: []uuid.UUID{bob.ID, carol.ID},
	})
	require.NoError(t, err)
	assert.False(t, first.IsGroup)
	assert.Len(t, first.Participants, 3)

	second, err := s.CreateOrGetChat(ctx, alice.ID, registrystore.CreateChatRequest{
		ParticipantIDs: []uuid.UUID{bob.ID, carol.ID},
	})
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)
}

func TestCreateOrGetChat_Validation(t *testing.T) {
	s := memory.New()
	ctx := context.Background()
	alice := newUser(t, s, "alice")
	bob := newUser(t, s, "bob")

	var validation *registrystore.ValidationError

	_, err := s.CreateOrGetChat(ctx, alice.ID, registrystore.CreateChatRequest{})
	require.True(t, errors.As(err, &validation))
	assert.Equal(t, "participantIds", validation.Field)

	_, err = s.CreateOrGetChat(ctx, alice.ID, registrystore.CreateChatRequest{
		ParticipantIDs: []uuid.UUID{bob.ID},
		IsGroup:        true,
	})
	require.True(t, errors.As(err, &validation))
	assert.Equal(t, "groupName", validation.Field)
}

func TestCreateOrGetChat_RequesterAlwaysIncluded(t *testing.T) {
	s := memory.New()
	ctx := context.Background()
	alice := newUser(t, s, "alice")
	bob := newUser(t, s, "bob")

	// Requester already listed; it must not be duplicated.
	chat, err := s.CreateOrGetChat(ctx, alice.ID, registrystore.CreateChatRequest{
		ParticipantIDs: []uuid.UUID{alice.ID, bob.ID, bob.ID},
	})
	require.NoError(t, err)
	assert.Len(t, chat.Participants, 2)
	assert.True(t, chat.HasParticipant(alice.ID))
	assert.True(t, chat.HasParticipant(bob.ID))
}

func TestListChats_OrderedByActivity(t *testing.T) {
	s := memory.New()
	ctx := context.Background()
	alice := newUser(t, s, "alice")
	bob := newUser(t, s, "bob")
	carol := newUser(t, s, "carol")

	chatAB, err := s.CreateOrGetChat(ctx, alice.ID, registrystore.CreateChatRequest{ParticipantIDs: []uuid.UUID{bob.ID}})
	require.NoError(t, err)
	chatAC, err := s.CreateOrGetChat(ctx, alice.ID, registrystore.CreateChatRequest{ParticipantIDs: []uuid.UUID{carol.ID}})
	require.NoError(t, err)

	_, err = s.AppendMessage(ctx, chatAB.ID, bob.ID, "ping", model.MessageTypeText)
	require.NoError(t, err)

	chats, err := s.ListChats(ctx, alice.ID)
	require.NoError(t, err)
	require.Len(t, chats, 2)
	assert.Equal(t, chatAB.ID, chats[0].ID)
	assert.Equal(t, chatAC.ID, chats[1].ID)

	// Last-message preview carries sender info.
	require.NotNil(t, chats[0].LastMessage)
	assert.Equal(t, "ping", chats[0].LastMessage.Content)
	assert.Equal(t, bob.ID, chats[0].LastMessage.SenderID)
	assert.Equal(t, "bob", chats[0].LastMessage.SenderName)

	// Only a participant sees the chat.
	bobChats, err := s.ListChats(ctx, bob.ID)
	require.NoError(t, err)
	require.Len(t, bobChats, 1)
	assert.Equal(t, chatAB.ID, bobChats[0].ID)
}

func TestListChats_DeterministicOrder(t *testing.T) {
	s := memory.New()
	ctx := context.Background()
	alice := newUser(t, s, "alice")

	for i := 0; i < 5; i++ {
		other := newUser(t, s, fmt.Sprintf("user%d", i))
		_, err := s.CreateOrGetChat(ctx, alice.ID, registrystore.CreateChatRequest{ParticipantIDs: []uuid.UUID{other.ID}})
		require.NoError(t, err)
	}

	first, err := s.ListChats(ctx, alice.ID)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		again, err := s.ListChats(ctx, alice.ID)
		require.NoError(t, err)
		require.Len(t, again, len(first))
		for j := range first {
			assert.Equal(t, first[j].ID, again[j].ID)
		}
	}
}

func TestAppendMessage_Authorization(t *testing.T) {
	s := memory.New()
	ctx := context.Background()
	alice := newUser(t, s, "alice")
	bob := newUser(t, s, "bob")
	mallory := newUser(t, s, "mallory")

	chat, err := s.CreateOrGetChat(ctx, alice.ID, registrystore.CreateChatRequest{ParticipantIDs: []uuid.UUID{bob.ID}})
	require.NoError(t, err)

	var forbidden *registrystore.ForbiddenError
	_, err = s.AppendMessage(ctx, chat.ID, mallory.ID, "hello", model.MessageTypeText)
	require.True(t, errors.As(err, &forbidden))

	_, err = s.ListMessages(ctx, chat.ID, mallory.ID, 1, 20)
	require.True(t, errors.As(err, &forbidden))

	_, err = s.GetChat(ctx, chat.ID, mallory.ID)
	require.True(t, errors.As(err, &forbidden))

	var notFound *registrystore.NotFoundError
	_, err = s.AppendMessage(ctx, uuid.New(), alice.ID, "hello", model.MessageTypeText)
	require.True(t, errors.As(err, &notFound))
}

func TestAppendMessage_Validation(t *testing.T) {
	s := memory.New()
	ctx := context.Background()
	alice := newUser(t, s, "alice")
	bob := newUser(t, s, "bob")

	chat, err := s.CreateOrGetChat(ctx, alice.ID, registrystore.CreateChatRequest{ParticipantIDs: []uuid.UUID{bob.ID}})
	require.NoError(t, err)

	var validation *registrystore.ValidationError
	_, err = s.AppendMessage(ctx, chat.ID, alice.ID, "   ", model.MessageTypeText)
	require.True(t, errors.As(err, &validation))
	assert.Equal(t, "content", validation.Field)

	_, err = s.AppendMessage(ctx, chat.ID, alice.ID, "hello", model.MessageType("carrier-pigeon"))
	require.True(t, errors.As(err, &validation))
	assert.Equal(t, "messageType", validation.Field)

	// Empty type defaults to text.
	msg, err := s.AppendMessage(ctx, chat.ID, alice.ID, "hello", "")
	require.NoError(t, err)
	assert.Equal(t, model.MessageTypeText, msg.Type)
	assert.Equal(t, alice.ID, msg.Sender.ID)
}

func TestAppendMessage_UpdatesChatActivity(t *testing.T) {
	s := memory.New()
	ctx := context.Background()
	alice := newUser(t, s, "alice")
	bob := newUser(t, s, "bob")

	chat, err := s.CreateOrGetChat(ctx, alice.ID, registrystore.CreateChatRequest{ParticipantIDs: []uuid.UUID{bob.ID}})
	require.NoError(t, err)

	msg, err := s.AppendMessage(ctx, chat.ID, alice.ID, "hi", model.MessageTypeText)
	require.NoError(t, err)

	got, err := s.GetChat(ctx, chat.ID, alice.ID)
	require.NoError(t, err)
	require.NotNil(t, got.LastMessageID)
	assert.Equal(t, msg.ID, *got.LastMessageID)
	assert.False(t, got.LastActivity.Before(chat.LastActivity))
}

func TestListMessages_Pagination(t *testing.T) {
	s := memory.New()
	ctx := context.Background()
	alice := newUser(t, s, "alice")
	bob := newUser(t, s, "bob")

	chat, err := s.CreateOrGetChat(ctx, alice.ID, registrystore.CreateChatRequest{ParticipantIDs: []uuid.UUID{bob.ID}})
	require.NoError(t, err)

	const total = 25
	for i := 0; i < total; i++ {
		_, err := s.AppendMessage(ctx, chat.ID, alice.ID, fmt.Sprintf("msg-%02d", i), model.MessageTypeText)
		require.NoError(t, err)
	}

	page1, err := s.ListMessages(ctx, chat.ID, bob.ID, 1, 20)
	require.NoError(t, err)
	require.Len(t, page1.Messages, 20)
	assert.True(t, page1.HasMore)
	assert.Equal(t, 1, page1.Page)
	assert.Equal(t, 2, page1.TotalPages)
	// Page 1 is the newest window, in chronological order.
	assert.Equal(t, "msg-05", page1.Messages[0].Content)
	assert.Equal(t, "msg-24", page1.Messages[19].Content)

	page2, err := s.ListMessages(ctx, chat.ID, bob.ID, 2, 20)
	require.NoError(t, err)
	require.Len(t, page2.Messages, 5)
	assert.False(t, page2.HasMore)
	assert.Equal(t, 2, page2.TotalPages)
	assert.Equal(t, "msg-00", page2.Messages[0].Content)
	assert.Equal(t, "msg-04", page2.Messages[4].Content)

	// Older page prepended to the newer one reassembles the full history.
	combined := append(append([]registrystore.MessageDetail{}, page2.Messages...), page1.Messages...)
	require.Len(t, combined, total)
	for i, m := range combined {
		assert.Equal(t, fmt.Sprintf("msg-%02d", i), m.Content)
	}

	// Past the end: empty page, no error.
	page3, err := s.ListMessages(ctx, chat.ID, bob.ID, 3, 20)
	require.NoError(t, err)
	assert.Empty(t, page3.Messages)
	assert.False(t, page3.HasMore)
}

func TestListMessages_DefaultsPageAndLimit(t *testing.T) {
	s := memory.New()
	ctx := context.Background()
	alice := newUser(t, s, "alice")
	bob := newUser(t, s, "bob")

	chat, err := s.CreateOrGetChat(ctx, alice.ID, registrystore.CreateChatRequest{ParticipantIDs: []uuid.UUID{bob.ID}})
	require.NoError(t, err)
	_, err = s.AppendMessage(ctx, chat.ID, alice.ID, "hi", model.MessageTypeText)
	require.NoError(t, err)

	page, err := s.ListMessages(ctx, chat.ID, alice.ID, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, page.Page)
	require.Len(t, page.Messages, 1)
	assert.Equal(t, "hi", page.Messages[0].Content)
	assert.Equal(t, 1, page.TotalPages)
	assert.False(t, page.HasMore)
}

func TestMarkSeen_Idempotent(t *testing.T) {
	s := memory.New()
	ctx := context.Background()
	alice := newUser(t, s, "alice")
	bob := newUser(t, s, "bob")

	chat, err := s.CreateOrGetChat(ctx, alice.ID, registrystore.CreateChatRequest{ParticipantIDs: []uuid.UUID{bob.ID}})
	require.NoError(t, err)
	msg, err := s.AppendMessage(ctx, chat.ID, alice.ID, "hi", model.MessageTypeText)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		require.NoError(t, s.MarkSeen(ctx, msg.ID, bob.ID, false))
	}

	page, err := s.ListMessages(ctx, chat.ID, bob.ID, 1, 20)
	require.NoError(t, err)
	require.Len(t, page.Messages, 1)
	require.Len(t, page.Messages[0].SeenBy, 1)
	assert.Equal(t, bob.ID, page.Messages[0].SeenBy[0].UserID)
}

func TestMarkSeen_MembershipEnforcement(t *testing.T) {
	s := memory.New()
	ctx := context.Background()
	alice := newUser(t, s, "alice")
	bob := newUser(t, s, "bob")
	mallory := newUser(t, s, "mallory")

	chat, err := s.CreateOrGetChat(ctx, alice.ID, registrystore.CreateChatRequest{ParticipantIDs: []uuid.UUID{bob.ID}})
	require.NoError(t, err)
	msg, err := s.AppendMessage(ctx, chat.ID, alice.ID, "hi", model.MessageTypeText)
	require.NoError(t, err)

	// Without the membership switch any authenticated user may record a receipt.
	require.NoError(t, s.MarkSeen(ctx, msg.ID, mallory.ID, false))

	var forbidden *registrystore.ForbiddenError
	err = s.MarkSeen(ctx, msg.ID, mallory.ID, true)
	require.True(t, errors.As(err, &forbidden))

	var notFound *registrystore.NotFoundError
	err = s.MarkSeen(ctx, uuid.New(), bob.ID, false)
	require.True(t, errors.As(err, &notFound))
}
