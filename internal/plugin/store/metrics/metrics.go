package metrics

import (
	"context"
	"time"

	"chat-service/internal/model"
	"chat-service/internal/registry/store"
	"chat-service/internal/security"

	"github.com/google/uuid"
)

// Wrap returns a ChatStore that records StoreLatency for every operation and
// feeds the message/receipt counters.
func Wrap(inner store.ChatStore) store.ChatStore {
	return &metricsStore{inner: inner}
}

type metricsStore struct {
	inner store.ChatStore
}

func observe(op string, start time.Time) {
	if security.StoreLatency != nil {
		security.StoreLatency.WithLabelValues(op).Observe(time.Since(start).Seconds())
	}
}

func (m *metricsStore) CreateUser(ctx context.Context, req store.CreateUserRequest) (*model.User, error) {
	defer observe("create_user", time.Now())
	return m.inner.CreateUser(ctx, req)
}

func (m *metricsStore) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	defer observe("get_user_by_email", time.Now())
	return m.inner.GetUserByEmail(ctx, email)
}

func (m *metricsStore) GetUsers(ctx context.Context, ids []uuid.UUID) ([]model.User, error) {
	defer observe("get_users", time.Now())
	return m.inner.GetUsers(ctx, ids)
}

func (m *metricsStore) CreateOrGetChat(ctx context.Context, requesterID uuid.UUID, req store.CreateChatRequest) (*store.ChatSummary, error) {
	defer observe("create_or_get_chat", time.Now())
	return m.inner.CreateOrGetChat(ctx, requesterID, req)
}

func (m *metricsStore) ListChats(ctx context.Context, userID uuid.UUID) ([]store.ChatSummary, error) {
	defer observe("list_chats", time.Now())
	return m.inner.ListChats(ctx, userID)
}

func (m *metricsStore) GetChat(ctx context.Context, chatID uuid.UUID, userID uuid.UUID) (*model.Chat, error) {
	defer observe("get_chat", time.Now())
	return m.inner.GetChat(ctx, chatID, userID)
}

func (m *metricsStore) AppendMessage(ctx context.Context, chatID uuid.UUID, senderID uuid.UUID, content string, msgType model.MessageType) (*store.MessageDetail, error) {
	defer observe("append_message", time.Now())
	detail, err := m.inner.AppendMessage(ctx, chatID, senderID, content, msgType)
	if err == nil && security.MessagesSentTotal != nil {
		security.MessagesSentTotal.Inc()
	}
	return detail, err
}

func (m *metricsStore) ListMessages(ctx context.Context, chatID uuid.UUID, requesterID uuid.UUID, page, limit int) (*store.MessagePage, error) {
	defer observe("list_messages", time.Now())
	return m.inner.ListMessages(ctx, chatID, requesterID, page, limit)
}

func (m *metricsStore) MarkSeen(ctx context.Context, messageID uuid.UUID, userID uuid.UUID, requireMembership bool) error {
	defer observe("mark_seen", time.Now())
	err := m.inner.MarkSeen(ctx, messageID, userID, requireMembership)
	if err == nil && security.MarksSeenTotal != nil {
		security.MarksSeenTotal.Inc()
	}
	return err
}

func (m *metricsStore) Close(ctx context.Context) error {
	return m.inner.Close(ctx)
}

var _ store.ChatStore = (*metricsStore)(nil)
