package broker

// Role names the slot a connection occupies within a session. The string
// values are what peers see in peer-disconnected notifications.
type Role string

const (
	RolePrimary   Role = "primary"
	RoleSecondary Role = "secondary"
)

func (r Role) Other() Role {
	if r == RolePrimary {
		return RoleSecondary
	}
	return RolePrimary
}
