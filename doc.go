// Package partigroup provides partitioned consumer groups on NATS JetStream.
//
// Consumers that subscribe with the same subscriber id form a group. Each
// member keeps a heartbeat in a KV bucket, one member holds a leader lease,
// and the leader spreads the partitions of the group's destinations over
// the live members round-robin. Every member polls its own assignment and
// pulls only the partitions it owns, so each partition is handled by one
// member at a time.
//
// # Quick Start
//
//	cfg := partigroup.DefaultConfig()
//	cfg.PartitionCount = 16
//
//	consumer, err := partigroup.NewConsumer(&cfg, natsConn)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer consumer.Close(context.Background())
//
//	sub, err := consumer.Subscribe(ctx, "billing", []string{"orders"},
//	    func(ctx context.Context, msg *partigroup.Message) error {
//	        return process(msg.Payload)
//	    })
//
// Messages are published with the producer package, which routes each key
// to a fixed partition:
//
//	p, err := producer.New(js, 16)
//	err = p.Send(ctx, "orders", "customer-42", payload)
//
// # Coordination
//
// A member is live while its heartbeat key exists. The leader rebalances
// whenever the live set changes, right after it is elected, and every
// ResyncInterval. Assignments are a pure function of the sorted member ids
// and the partition count, so any leader computes the same result.
//
// Ownership moves are not fenced: during a handover two members may
// briefly both pull a partition. Delivery re-checks ownership before each
// message and hands unowned messages back to the stream, and the shared
// durable consumer per partition keeps acknowledged messages from being
// delivered again.
//
// # Hooks
//
// Hooks.OnPartitionsChanged, or a hook installed with
// SetSubscriptionLifecycleHook, is called once per destination whenever a
// subscription's partitions change, including the initial assignment and
// the empty set on close.
package partigroup
