// Package policy computes the access-control overwrite set for ticket
// channels. Pure functions only; the caller decides what to do about a
// degraded result.
package policy

import "github.com/modkit/modmail-relay/internal/platform"

// Input names the identities an overwrite set is computed for. StaffRoleID
// may be empty when the staff role is misconfigured or missing.
type Input struct {
	EveryoneRoleID string
	StaffRoleID    string
	BotUserID      string
}

// Overwrites returns the staff-only visibility set: the everyone role never
// sees the channel, the bot identity has full access, and the staff role has
// view, send and history when it resolves. An absent staff role degrades to
// bot-only access; it never silently grants broader access than configured.
func Overwrites(in Input) []platform.Overwrite {
	out := []platform.Overwrite{
		{
			TargetID: in.EveryoneRoleID,
			// all capabilities denied
		},
		{
			TargetID:       in.BotUserID,
			TargetIsMember: true,
			CanView:        true,
			CanSend:        true,
			CanReadHistory: true,
		},
	}
	if in.StaffRoleID != "" {
		out = append(out, platform.Overwrite{
			TargetID:       in.StaffRoleID,
			CanView:        true,
			CanSend:        true,
			CanReadHistory: true,
		})
	}
	return out
}

// Degraded reports whether the input would produce bot-only visibility.
func Degraded(in Input) bool {
	return in.StaffRoleID == ""
}
