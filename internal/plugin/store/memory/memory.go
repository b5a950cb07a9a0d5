// Package memory provides an in-memory ChatStore backend. It backs unit
// tests and local development runs where no MongoDB is available; semantics
// mirror the mongo backend, including ordering tie-breaks.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"chat-service/internal/model"
	registrystore "chat-service/internal/registry/store"

	"github.com/google/uuid"
)

func init() {
	registrystore.Register(registrystore.Plugin{
		Name: "memory",
		Loader: func(ctx context.Context) (registrystore.ChatStore, error) {
			return New(), nil
		},
	})
}

// New returns an empty in-memory store.
func New() *Store {
	return &Store{
		users:    map[uuid.UUID]model.User{},
		byEmail:  map[string]uuid.UUID{},
		chats:    map[uuid.UUID]model.Chat{},
		messages: map[uuid.UUID]storedMessage{},
	}
}

type storedMessage struct {
	model.Message
	seq uint64
}

// Store is a mutex-guarded map-backed ChatStore.
type Store struct {
	mu       sync.Mutex
	seq      uint64
	users    map[uuid.UUID]model.User
	byEmail  map[string]uuid.UUID
	chats    map[uuid.UUID]model.Chat
	messages map[uuid.UUID]storedMessage
}

// --- Users ---

func (s *Store) CreateUser(ctx context.Context, req registrystore.CreateUserRequest) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	email := strings.ToLower(strings.TrimSpace(req.Email))
	if _, exists := s.byEmail[email]; exists {
		return nil, &registrystore.ConflictError{Message: "User already exist"}
	}
	now := time.Now()
	user := model.User{
		ID:           uuid.New(),
		Email:        email,
		Name:         strings.TrimSpace(req.Name),
		Avatar:       req.Avatar,
		PasswordHash: req.PasswordHash,
		LastSeen:     now,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	s.users[user.ID] = user
	s.byEmail[email] = user.ID
	return &user, nil
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byEmail[strings.ToLower(strings.TrimSpace(email))]
	if !ok {
		return nil, &registrystore.NotFoundError{Resource: "user", ID: email}
	}
	user := s.users[id]
	return &user, nil
}

func (s *Store) GetUsers(ctx context.Context, ids []uuid.UUID) ([]model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	users := make([]model.User, 0, len(ids))
	for _, id := range ids {
		if u, ok := s.users[id]; ok {
			users = append(users, u)
		}
	}
	return users, nil
}

func (s *Store) profile(id uuid.UUID) model.UserProfile {
	if u, ok := s.users[id]; ok {
		return u.Profile()
	}
	return model.UserProfile{ID: id}
}

// --- Chat directory ---

func participantSet(requesterID uuid.UUID, ids []uuid.UUID) []uuid.UUID {
	seen := map[uuid.UUID]bool{requesterID: true}
	set := []uuid.UUID{requesterID}
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			set = append(set, id)
		}
	}
	sort.Slice(set, func(i, j int) bool { return set[i].String() < set[j].String() })
	return set
}

func sameSet(a, b []uuid.UUID) bool {
	if len(a) != len(b) {
		return false
	}
	members := map[uuid.UUID]bool{}
	for _, id := range a {
		members[id] = true
	}
	for _, id := range b {
		if !members[id] {
			return false
		}
	}
	return true
}

func (s *Store) CreateOrGetChat(ctx context.Context, requesterID uuid.UUID, req registrystore.CreateChatRequest) (*registrystore.ChatSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(req.ParticipantIDs) == 0 {
		return nil, &registrystore.ValidationError{Field: "participantIds", Message: "Participants are required"}
	}
	participants := participantSet(requesterID, req.ParticipantIDs)
	now := time.Now()

	if !req.IsGroup && len(participants) == 2 {
		for _, c := range s.chats {
			if !c.IsGroup && sameSet(c.Participants, participants) {
				summary := s.summarize(c)
				return &summary, nil
			}
		}
	}

	chat := model.Chat{
		ID:           uuid.New(),
		Participants: participants,
		IsGroup:      req.IsGroup,
		LastActivity: now,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if req.IsGroup {
		name := strings.TrimSpace(req.GroupName)
		if name == "" {
			return nil, &registrystore.ValidationError{Field: "groupName", Message: "Group name is required"}
		}
		chat.GroupName = &name
		admin := requesterID
		chat.AdminID = &admin
	}
	s.chats[chat.ID] = chat
	summary := s.summarize(chat)
	return &summary, nil
}

func (s *Store) summarize(chat model.Chat) registrystore.ChatSummary {
	summary := registrystore.ChatSummary{Chat: chat}
	for _, p := range chat.Participants {
		summary.ParticipantProfiles = append(summary.ParticipantProfiles, s.profile(p))
	}
	if chat.LastMessageID != nil {
		if m, ok := s.messages[*chat.LastMessageID]; ok {
			summary.LastMessage = &registrystore.MessagePreview{
				ID:         m.ID,
				Content:    m.Content,
				SenderID:   m.SenderID,
				SenderName: s.profile(m.SenderID).Name,
				CreatedAt:  m.CreatedAt,
			}
		}
	}
	return summary
}

func (s *Store) ListChats(ctx context.Context, userID uuid.UUID) ([]registrystore.ChatSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var chats []model.Chat
	for _, c := range s.chats {
		if c.HasParticipant(userID) {
			chats = append(chats, c)
		}
	}
	// lastActivity desc, chat ID desc as the deterministic tie-break.
	sort.Slice(chats, func(i, j int) bool {
		if !chats[i].LastActivity.Equal(chats[j].LastActivity) {
			return chats[i].LastActivity.After(chats[j].LastActivity)
		}
		return chats[i].ID.String() > chats[j].ID.String()
	})

	summaries := make([]registrystore.ChatSummary, len(chats))
	for i, c := range chats {
		summaries[i] = s.summarize(c)
	}
	return summaries, nil
}

func (s *Store) GetChat(ctx context.Context, chatID uuid.UUID, userID uuid.UUID) (*model.Chat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getChatLocked(chatID, userID)
}

func (s *Store) getChatLocked(chatID uuid.UUID, userID uuid.UUID) (*model.Chat, error) {
	chat, ok := s.chats[chatID]
	if !ok {
		return nil, &registrystore.NotFoundError{Resource: "chat", ID: chatID.String()}
	}
	if !chat.HasParticipant(userID) {
		return nil, &registrystore.ForbiddenError{}
	}
	return &chat, nil
}

// --- Message ledger ---

func (s *Store) AppendMessage(ctx context.Context, chatID uuid.UUID, senderID uuid.UUID, content string, msgType model.MessageType) (*registrystore.MessageDetail, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	chat, err := s.getChatLocked(chatID, senderID)
	if err != nil {
		return nil, err
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, &registrystore.ValidationError{Field: "content", Message: "Message content is required"}
	}
	if msgType == "" {
		msgType = model.MessageTypeText
	}
	if !msgType.Valid() {
		return nil, &registrystore.ValidationError{Field: "messageType", Message: "unknown message type"}
	}

	now := time.Now()
	s.seq++
	msg := storedMessage{
		Message: model.Message{
			ID:        uuid.New(),
			ChatID:    chatID,
			SenderID:  senderID,
			Content:   content,
			Type:      msgType,
			SeenBy:    []model.Receipt{},
			CreatedAt: now,
		},
		seq: s.seq,
	}
	s.messages[msg.ID] = msg

	id := msg.ID
	chat.LastMessageID = &id
	chat.LastActivity = now
	chat.UpdatedAt = now
	s.chats[chatID] = *chat

	return &registrystore.MessageDetail{
		Message: msg.Message,
		Sender:  s.profile(senderID),
	}, nil
}

func (s *Store) ListMessages(ctx context.Context, chatID uuid.UUID, requesterID uuid.UUID, page, limit int) (*registrystore.MessagePage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.getChatLocked(chatID, requesterID); err != nil {
		return nil, err
	}
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = 20
	}

	var history []storedMessage
	for _, m := range s.messages {
		if m.ChatID == chatID {
			history = append(history, m)
		}
	}
	// Newest first; the insertion sequence breaks same-timestamp ties.
	sort.Slice(history, func(i, j int) bool {
		if !history[i].CreatedAt.Equal(history[j].CreatedAt) {
			return history[i].CreatedAt.After(history[j].CreatedAt)
		}
		return history[i].seq > history[j].seq
	})

	total := len(history)
	skip := (page - 1) * limit
	end := skip + limit
	if skip > total {
		skip = total
	}
	if end > total {
		end = total
	}
	pageDocs := history[skip:end]

	// Reverse to chronological order for display.
	messages := make([]registrystore.MessageDetail, len(pageDocs))
	for i, m := range pageDocs {
		messages[len(pageDocs)-1-i] = registrystore.MessageDetail{
			Message: m.Message,
			Sender:  s.profile(m.SenderID),
		}
	}

	return &registrystore.MessagePage{
		Messages:   messages,
		HasMore:    skip+len(pageDocs) < total,
		Page:       page,
		TotalPages: (total + limit - 1) / limit,
	}, nil
}

func (s *Store) MarkSeen(ctx context.Context, messageID uuid.UUID, userID uuid.UUID, requireMembership bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	msg, ok := s.messages[messageID]
	if !ok {
		return &registrystore.NotFoundError{Resource: "message", ID: messageID.String()}
	}
	if requireMembership {
		if _, err := s.getChatLocked(msg.ChatID, userID); err != nil {
			return err
		}
	}
	if msg.HasReceipt(userID) {
		return nil
	}
	msg.SeenBy = append(msg.SeenBy, model.Receipt{UserID: userID, SeenAt: time.Now()})
	s.messages[messageID] = msg
	return nil
}

// Close is a no-op for the in-memory backend.
func (s *Store) Close(ctx context.Context) error { return nil }

var _ registrystore.ChatStore = (*Store)(nil)
