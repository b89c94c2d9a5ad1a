// Package platform wraps the chat-platform HTTP API behind the narrow
// surface the routing engine needs. The engine treats everything here as a
// black box that can fail at any call.
package platform

import (
	"context"
	"errors"
)

// Error kinds distinguished by callers. Everything else surfaces as an
// unknown platform failure.
var (
	// ErrForbidden means the platform rejected the call for permission
	// reasons, including users who have disabled direct messages.
	ErrForbidden = errors.New("platform: forbidden")
	// ErrNotFound means the addressed entity no longer exists.
	ErrNotFound = errors.New("platform: not found")
)

// Overwrite grants or withholds channel capabilities for one subject. The
// subject is either a role or a member, identified by TargetID.
type Overwrite struct {
	TargetID       string
	TargetIsMember bool
	CanView        bool
	CanSend        bool
	CanReadHistory bool
}

// CreateChannelInput describes a channel creation request.
type CreateChannelInput struct {
	WorkspaceID string
	CategoryID  string
	Name        string
	Topic       string
	Overwrites  []Overwrite
	Reason      string
}

// ChannelInfo is the engine's view of an existing channel.
type ChannelInfo struct {
	ID    string
	Name  string
	Topic string
}

// User is the engine's view of a platform user.
type User struct {
	ID          int64
	DisplayName string
}

// Client is the collaborator contract consumed by the routing engine. Every
// method is a suspension point; none may be assumed to complete in order
// relative to other in-flight handlers.
type Client interface {
	CreateChannel(ctx context.Context, in CreateChannelInput) (ChannelInfo, error)
	SendToChannel(ctx context.Context, channelID, text string, attachmentURLs []string) error
	SendDirect(ctx context.Context, userID int64, text string) error
	DeleteChannel(ctx context.Context, channelID, reason string) error
	ListChannelsInCategory(ctx context.Context, workspaceID, categoryID string) ([]ChannelInfo, error)
	FetchUser(ctx context.Context, userID int64) (User, error)
}
