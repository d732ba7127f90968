// Package keys defines the KV key layout shared by all group members.
//
// Layout, one bucket per concern:
//
//	heartbeat bucket:  group.{groupID}.member.{memberID}.heartbeat
//	assignment bucket: group.{groupID}.assignment.{memberID}
//	election bucket:   group.{groupID}.leader
//
// Identifiers may only contain [A-Za-z0-9_=-], so a key always splits into
// the same number of dot-separated tokens.
package keys

import (
	"fmt"
	"regexp"

	"github.com/arloliu/partigroup/internal/kvutil"
	"github.com/arloliu/partigroup/types"
)

var idPattern = regexp.MustCompile(`^[-_=a-zA-Z0-9]+$`)

// ValidateID checks that id can be embedded in keys and subjects.
//
// Parameters:
//   - kind: What the id names, used in the error ("group", "member", ...)
//   - id: The identifier to check
//
// Returns:
//   - error: wraps types.ErrInvalidID when id is empty or has other characters
func ValidateID(kind, id string) error {
	if !idPattern.MatchString(id) {
		return fmt.Errorf("%w: %s %q must match [A-Za-z0-9_=-]+", types.ErrInvalidID, kind, id)
	}

	return nil
}

// Heartbeat returns the liveness key of a member.
func Heartbeat(groupID, memberID string) string {
	return "group." + groupID + ".member." + memberID + ".heartbeat"
}

// HeartbeatFilter matches the liveness keys of every member of a group.
func HeartbeatFilter(groupID string) string {
	return Heartbeat(groupID, "*")
}

// MemberFromHeartbeat extracts the member id from a liveness key.
func MemberFromHeartbeat(key string) string {
	return kvutil.Segment(key, 3)
}

// Assignment returns the assignment record key of a member.
func Assignment(groupID, memberID string) string {
	return "group." + groupID + ".assignment." + memberID
}

// AssignmentFilter matches every assignment record of a group.
func AssignmentFilter(groupID string) string {
	return Assignment(groupID, "*")
}

// MemberFromAssignment extracts the member id from an assignment key.
func MemberFromAssignment(key string) string {
	return kvutil.Segment(key, 3)
}

// Leader returns the election key of a group.
func Leader(groupID string) string {
	return "group." + groupID + ".leader"
}
