package service

// InboundMessage is a direct message received from an external user.
type InboundMessage struct {
	SenderID          int64
	SenderDisplayName string
	IsAutomated       bool
	Body              string
	AttachmentURLs    []string
}

// Invocation is a staff command executed inside a workspace channel. Parsing
// the command line is the gateway's job; services only see the resolved
// invocation context.
type Invocation struct {
	InvokerID      int64
	InvokerRoleIDs []string
	WorkspaceID    string
	ChannelID      string
	ChannelName    string
	ChannelTopic   string
}
