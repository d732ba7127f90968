package types

import "context"

// Hooks holds optional callbacks for subscription lifecycle events.
//
// Hooks run on a dispatcher goroutine, one per subscription for
// OnPartitionsChanged and one per group member for the others, and observe
// events in the order they happened. No internal lock is held while a hook
// runs, so a hook may close its own subscription; it should pass the ctx it
// received. Hook errors are logged and otherwise ignored.
//
// Example:
//
//	hooks := &partigroup.Hooks{
//	    OnPartitionsChanged: func(ctx context.Context, channel, subID string, parts partigroup.PartitionSet) error {
//	        log.Printf("%s/%s now owns %s", channel, subID, parts)
//	        return nil
//	    },
//	}
type Hooks struct {
	// OnPartitionsChanged is called once per destination whenever the set of
	// partitions owned by a subscription changes, and once more with the
	// empty set when the subscription closes.
	OnPartitionsChanged func(ctx context.Context, channel, subscriptionID string, partitions PartitionSet) error

	// OnLeadershipChanged is called when this member gains or loses the
	// leader role of a group.
	OnLeadershipChanged func(ctx context.Context, groupID string, role Role) error

	// OnError is called when a background loop hits a recoverable error.
	OnError func(ctx context.Context, err error) error
}
