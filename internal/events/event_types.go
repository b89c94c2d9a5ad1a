package events

import (
	"time"

	"github.com/modkit/modmail-relay/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventTicketOpened       EventType = "ticket_opened"
	EventMessageRelayed     EventType = "message_relayed"
	EventTicketClosed       EventType = "ticket_closed"
	EventBroadcastCompleted EventType = "broadcast_completed"
)

// Actor encapsulates actor metadata for an event.
type Actor struct {
	Type    domain.SubjectType `json:"type"`
	UserID  *int64             `json:"user_id,omitempty"`
	StaffID *int64             `json:"staff_id,omitempty"`
}

// Event represents a domain event emitted by services.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	UserID    int64       `json:"user_id"`
	ChannelID string      `json:"channel_id,omitempty"`
	Actor     Actor       `json:"actor"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// TicketOpenedPayload payload.
type TicketOpenedPayload struct {
	ChannelName string `json:"channel_name"`
	Degraded    bool   `json:"degraded,omitempty"`
}

// MessageRelayedPayload payload.
type MessageRelayedPayload struct {
	Direction       string `json:"direction"`
	AttachmentCount int    `json:"attachment_count,omitempty"`
}

// TicketClosedPayload payload.
type TicketClosedPayload struct {
	Forced  bool   `json:"forced,omitempty"`
	Delayed bool   `json:"delayed,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

// BroadcastCompletedPayload payload.
type BroadcastCompletedPayload struct {
	Sent   int `json:"sent"`
	Failed int `json:"failed"`
}

// UserActor attributes an event to an external user.
func UserActor(userID int64) Actor {
	id := userID
	return Actor{Type: domain.SubjectTypeUser, UserID: &id}
}

// StaffActor attributes an event to a staff invoker.
func StaffActor(staffID int64) Actor {
	id := staffID
	return Actor{Type: domain.SubjectTypeStaff, StaffID: &id}
}
