package partigroup

import "github.com/arloliu/partigroup/types"

// Re-export types from the types package.
//
// Internal packages depend on types rather than on the root package; these
// aliases give users partigroup.Message, partigroup.Hooks and so on.
type (
	PartitionSet   = types.PartitionSet
	Assignment     = types.Assignment
	Role           = types.Role
	Message        = types.Message
	MessageHandler = types.MessageHandler
)

// Re-export interfaces from the types package for convenience.
type (
	AssignmentStrategy = types.AssignmentStrategy
	LeaseLock          = types.LeaseLock
	LeaseLockFactory   = types.LeaseLockFactory
	MetricsCollector   = types.MetricsCollector
	Logger             = types.Logger
	Hooks              = types.Hooks
)

// Re-export Role constants.
const (
	RoleFollower = types.RoleFollower
	RoleLeader   = types.RoleLeader
)

// NewPartitionSet returns the set of the given partitions.
func NewPartitionSet(partitions ...int) PartitionSet {
	return types.NewPartitionSet(partitions...)
}
