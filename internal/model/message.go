package model

// AuthorRole classifies who a relayed message came from, as stamped into
// its rendering and into the session log.
type AuthorRole string

const (
	RoleRecipient      AuthorRole = "recipient"
	RoleStaff          AuthorRole = "staff"
	RoleAnonymousStaff AuthorRole = "anonymous_staff"
	RoleSystemNote     AuthorRole = "system_note"
)

// IsStaff reports whether the role is a staff-authored reply, which is
// what edit/delete resolution targets when no explicit id is given.
func (r AuthorRole) IsStaff() bool {
	return r == RoleStaff || r == RoleAnonymousStaff
}
