package store

import (
	"context"
	"fmt"
	"time"

	"chat-service/internal/model"

	"github.com/google/uuid"
)

// MessagePreview is the last-message summary embedded in a chat listing.
type MessagePreview struct {
	ID         uuid.UUID `json:"id"`
	Content    string    `json:"content"`
	SenderID   uuid.UUID `json:"sender"`
	SenderName string    `json:"senderName"`
	CreatedAt  time.Time `json:"createdAt"`
}

// ChatSummary is a chat with its read-side joins resolved: participant
// profiles and the last-message preview are attached as typed values rather
// than runtime-populated references.
type ChatSummary struct {
	model.Chat
	ParticipantProfiles []model.UserProfile `json:"participantProfiles"`
	LastMessage         *MessagePreview     `json:"lastMessagePreview,omitempty"`
}

// MessageDetail is a message with the sender profile attached.
type MessageDetail struct {
	model.Message
	Sender model.UserProfile `json:"senderProfile"`
}

// MessagePage is one page of chat history. Messages are in chronological
// order (oldest first) so callers can append newer pages to the end of their
// display buffer, even though the store fetches newest-first.
type MessagePage struct {
	Messages   []MessageDetail `json:"messages"`
	HasMore    bool            `json:"hasMore"`
	Page       int             `json:"page"`
	TotalPages int             `json:"totalPages"`
}

// CreateUserRequest is the input for creating a user. Password is already
// hashed by the caller; the store never sees plaintext credentials.
type CreateUserRequest struct {
	Email        string
	Name         string
	Avatar       *string
	PasswordHash string
}

// CreateChatRequest is the input for creating or fetching a chat thread.
type CreateChatRequest struct {
	ParticipantIDs []uuid.UUID
	IsGroup        bool
	GroupName      string
}

// ChatStore defines the primary data access interface for the chat service.
//
// Every message operation authorizes through the chat's participant set:
// a missing chat yields NotFoundError, a non-participant caller yields
// ForbiddenError. MarkSeen historically skipped that check; the
// requireMembership switch keeps the gap explicit and configurable.
type ChatStore interface {
	// Users
	CreateUser(ctx context.Context, req CreateUserRequest) (*model.User, error)
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
	GetUsers(ctx context.Context, ids []uuid.UUID) ([]model.User, error)

	// Chat directory
	CreateOrGetChat(ctx context.Context, requesterID uuid.UUID, req CreateChatRequest) (*ChatSummary, error)
	ListChats(ctx context.Context, userID uuid.UUID) ([]ChatSummary, error)
	GetChat(ctx context.Context, chatID uuid.UUID, userID uuid.UUID) (*model.Chat, error)

	// Message ledger
	AppendMessage(ctx context.Context, chatID uuid.UUID, senderID uuid.UUID, content string, msgType model.MessageType) (*MessageDetail, error)
	ListMessages(ctx context.Context, chatID uuid.UUID, requesterID uuid.UUID, page, limit int) (*MessagePage, error)
	MarkSeen(ctx context.Context, messageID uuid.UUID, userID uuid.UUID, requireMembership bool) error

	// Close releases the underlying connection. Owned by the composition
	// root; stores are constructed once per process and shut down explicitly.
	Close(ctx context.Context) error
}

// Loader creates a ChatStore from config carried in ctx.
type Loader func(ctx context.Context) (ChatStore, error)

// Plugin represents a store backend.
type Plugin struct {
	Name   string
	Loader Loader
}

var plugins []Plugin

// Register adds a store plugin. Called from init() in plugin packages.
func Register(p Plugin) {
	plugins = append(plugins, p)
}

// Names returns all registered store plugin names.
func Names() []string {
	names := make([]string, len(plugins))
	for i, p := range plugins {
		names[i] = p.Name
	}
	return names
}

// Select returns the loader for the named store plugin.
func Select(name string) (Loader, error) {
	for _, p := range plugins {
		if p.Name == name {
			return p.Loader, nil
		}
	}
	return nil, fmt.Errorf("unknown store %q; valid: %v", name, Names())
}
