package dto

// DirectMessageEvent is the forwarder payload for a user's direct message.
type DirectMessageEvent struct {
	DeliveryID        string   `json:"delivery_id"`
	SenderID          int64    `json:"sender_id,string"`
	SenderDisplayName string   `json:"sender_display_name"`
	IsAutomated       bool     `json:"is_automated"`
	Body              string   `json:"body"`
	AttachmentURLs    []string `json:"attachment_urls"`
}

// GuildCommandEvent is the forwarder payload for a staff command invoked in
// a workspace channel.
type GuildCommandEvent struct {
	DeliveryID     string   `json:"delivery_id"`
	InvokerID      int64    `json:"invoker_id,string"`
	InvokerRoleIDs []string `json:"invoker_role_ids"`
	WorkspaceID    string   `json:"workspace_id"`
	ChannelID      string   `json:"channel_id"`
	ChannelName    string   `json:"channel_name"`
	ChannelTopic   string   `json:"channel_topic"`
	Command        string   `json:"command"`
	Args           string   `json:"args"`
}

// CommandResponse carries the user-visible outcome of a command back to the
// forwarder, which posts it into the originating context.
type CommandResponse struct {
	Reply string `json:"reply"`
}

// EventAccepted acknowledges an inbound event delivery.
type EventAccepted struct {
	Status    string `json:"status"`
	Duplicate bool   `json:"duplicate,omitempty"`
}
