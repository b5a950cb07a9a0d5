package model

import (
	"time"

	"github.com/google/uuid"
)

// MessageType represents the kind of content a message carries.
type MessageType string

const (
	MessageTypeText  MessageType = "text"
	MessageTypeImage MessageType = "image"
	MessageTypeFile  MessageType = "file"
)

// Valid reports whether the message type is one of the known values.
func (t MessageType) Valid() bool {
	switch t {
	case MessageTypeText, MessageTypeImage, MessageTypeFile:
		return true
	}
	return false
}

// User is a registered account. The password hash never leaves the store
// layer; API responses use UserProfile instead.
type User struct {
	ID           uuid.UUID `json:"id"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	Avatar       *string   `json:"avatar,omitempty"`
	PasswordHash string    `json:"-"`
	IsOnline     bool      `json:"isOnline"`
	LastSeen     time.Time `json:"lastSeen"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Profile returns the public view of the user.
func (u User) Profile() UserProfile {
	return UserProfile{
		ID:       u.ID,
		Email:    u.Email,
		Name:     u.Name,
		Avatar:   u.Avatar,
		IsOnline: u.IsOnline,
		LastSeen: u.LastSeen,
	}
}

// UserProfile is the public user representation attached to chats and messages.
type UserProfile struct {
	ID       uuid.UUID `json:"id"`
	Email    string    `json:"email"`
	Name     string    `json:"name"`
	Avatar   *string   `json:"avatar,omitempty"`
	IsOnline bool      `json:"isOnline"`
	LastSeen time.Time `json:"lastSeen"`
}

// Chat is a thread of messages between two (direct) or more (group) users.
// Participants is a set: order is not significant and a non-group chat always
// has exactly two distinct members. LastMessageID is a weak display-only
// reference, never a cascade relation.
type Chat struct {
	ID            uuid.UUID   `json:"id"`
	Participants  []uuid.UUID `json:"participants"`
	IsGroup       bool        `json:"isGroup"`
	GroupName     *string     `json:"groupName,omitempty"`
	GroupAvatar   *string     `json:"groupAvatar,omitempty"`
	AdminID       *uuid.UUID  `json:"admin,omitempty"`
	LastMessageID *uuid.UUID  `json:"lastMessage,omitempty"`
	LastActivity  time.Time   `json:"lastActivity"`
	CreatedAt     time.Time   `json:"createdAt"`
	UpdatedAt     time.Time   `json:"updatedAt"`
}

// HasParticipant reports whether userID belongs to the chat's participant set.
func (c Chat) HasParticipant(userID uuid.UUID) bool {
	for _, p := range c.Participants {
		if p == userID {
			return true
		}
	}
	return false
}

// Receipt records that a user has seen a message. At most one receipt exists
// per user on a given message.
type Receipt struct {
	UserID uuid.UUID `json:"userId"`
	SeenAt time.Time `json:"seenAt"`
}

// Message belongs to exactly one chat and is immutable after creation except
// for receipt appends.
type Message struct {
	ID        uuid.UUID   `json:"id"`
	ChatID    uuid.UUID   `json:"chat"`
	SenderID  uuid.UUID   `json:"sender"`
	Content   string      `json:"content"`
	Type      MessageType `json:"messageType"`
	SeenBy    []Receipt   `json:"seenBy"`
	CreatedAt time.Time   `json:"createdAt"`
}

// HasReceipt reports whether the message already carries a receipt for userID.
func (m Message) HasReceipt(userID uuid.UUID) bool {
	for _, r := range m.SeenBy {
		if r.UserID == userID {
			return true
		}
	}
	return false
}
