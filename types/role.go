package types

// Role is the coordination role a member plays inside its group.
type Role int

const (
	// RoleFollower consumes its assignment and never writes records.
	RoleFollower Role = iota

	// RoleLeader holds the group lease and computes assignments.
	RoleLeader
)

// String returns the role name.
func (r Role) String() string {
	switch r {
	case RoleFollower:
		return "follower"
	case RoleLeader:
		return "leader"
	default:
		return "unknown"
	}
}
