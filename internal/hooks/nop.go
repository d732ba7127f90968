// Package hooks provides default Hooks implementations and the ordered
// dispatcher hook callbacks run on.
package hooks

import (
	"context"

	"github.com/arloliu/partigroup/types"
)

// NewNop returns Hooks whose callbacks all do nothing, so callers never
// need nil checks.
func NewNop() types.Hooks {
	return types.Hooks{
		OnPartitionsChanged: func(context.Context, string, string, types.PartitionSet) error { return nil },
		OnLeadershipChanged: func(context.Context, string, types.Role) error { return nil },
		OnError:             func(context.Context, error) error { return nil },
	}
}

// WithDefaults returns h with every nil callback replaced by a no-op.
func WithDefaults(h *types.Hooks) types.Hooks {
	out := NewNop()
	if h == nil {
		return out
	}
	if h.OnPartitionsChanged != nil {
		out.OnPartitionsChanged = h.OnPartitionsChanged
	}
	if h.OnLeadershipChanged != nil {
		out.OnLeadershipChanged = h.OnLeadershipChanged
	}
	if h.OnError != nil {
		out.OnError = h.OnError
	}

	return out
}
