package models

import (
	"time"

	"github.com/google/uuid"
)

type User struct {
	ID           uuid.UUID `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
}

type Group struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
}

type Role string

const (
	RoleMember Role = "member"
	RoleAdmin  Role = "admin"
)

type Membership struct {
	UserID  uuid.UUID `json:"user_id"`
	GroupID uuid.UUID `json:"group_id"`
	Role    Role      `json:"role"`
}

// Member is a roster entry as shown to clients.
type Member struct {
	Username string `json:"username"`
	Role     Role   `json:"role"`
	Presence bool   `json:"presence"`
}

type MessageKind string

const (
	KindNormal MessageKind = "normal"
	KindEvent  MessageKind = "event"
)

// Message is immutable once persisted. Sender is nil for event messages.
type Message struct {
	ID      uuid.UUID   `json:"id"`
	RoomID  uuid.UUID   `json:"room_id"`
	Sender  *string     `json:"sender"`
	Content string      `json:"content"`
	Kind    MessageKind `json:"msg_type"`
	Date    time.Time   `json:"date"`
}

// NewMessage is the input to a durable insert. SenderID and SenderName are
// both set for normal messages and both nil for event messages.
type NewMessage struct {
	RoomID     uuid.UUID
	SenderID   *uuid.UUID
	SenderName *string
	Content    string
	Kind       MessageKind
}

type UserPayload struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type UserUpdatePayload struct {
	Username *string `json:"username"`
	Password *string `json:"password"`
}

type UserResponse struct {
	Username string `json:"username"`
	Token    string `json:"token"`
}

type GroupPayload struct {
	Name string `json:"name"`
}
