package auth

import "github.com/modkit/modmail-relay/internal/config"

// Authorizer answers staff-capability questions. Capability derives from
// holding the configured staff role or being an elevated owner identity.
type Authorizer struct {
	routing config.RoutingConfig
}

// NewAuthorizer constructs an authorizer from routing configuration.
func NewAuthorizer(routing config.RoutingConfig) *Authorizer {
	return &Authorizer{routing: routing}
}

// IsOwner reports whether the invoker is an elevated identity.
func (a *Authorizer) IsOwner(invokerID int64) bool {
	return a.routing.IsOwner(invokerID)
}

// HasStaffCapability reports whether the invoker may run staff commands.
// When no staff role is configured only owners qualify; capability never
// widens beyond what configuration grants.
func (a *Authorizer) HasStaffCapability(invokerID int64, roleIDs []string) bool {
	if a.IsOwner(invokerID) {
		return true
	}
	if a.routing.StaffRoleID == "" {
		return false
	}
	for _, id := range roleIDs {
		if id == a.routing.StaffRoleID {
			return true
		}
	}
	return false
}
