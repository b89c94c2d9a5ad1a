package domain

// ExternalUser identifies a remote conversant on the chat platform. The id is
// stable and owned by the platform; the display name is mutable and not
// unique, so it is only ever used as a label.
type ExternalUser struct {
	ID          int64
	DisplayName string
}

// SubjectType differentiates the two sides of a ticket when attributing
// events and relayed messages.
type SubjectType string

const (
	SubjectTypeUser  SubjectType = "USER"
	SubjectTypeStaff SubjectType = "STAFF"
)
