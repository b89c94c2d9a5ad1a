package domain

import "time"

// TicketState enumerates lifecycle states for modmail tickets.
type TicketState string

const (
	TicketStateOpen   TicketState = "OPEN"
	TicketStateActive TicketState = "ACTIVE"
	TicketStateClosed TicketState = "CLOSED"
)

// Ticket binds one external user to one routing channel. The channel topic
// carries the external user id as durable metadata; nothing else about the
// ticket survives a restart, and nothing else needs to.
type Ticket struct {
	ExternalUserID int64
	ChannelID      string
	ChannelName    string
	State          TicketState
	CreatedAt      time.Time
}
