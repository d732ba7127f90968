//go:build integration

package integration_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/require"

	"github.com/arloliu/partigroup"
	"github.com/arloliu/partigroup/producer"
	"github.com/arloliu/partigroup/test/testutil"
	partitest "github.com/arloliu/partigroup/testing"
)

const groupName = "workers"

// process is one consumer process with its own connection.
type process struct {
	id       string
	conn     *nats.Conn
	consumer *partigroup.Consumer
	sub      *partigroup.Subscription

	mu   sync.Mutex
	seen map[string]int
}

func (p *process) handle(_ context.Context, msg *partigroup.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.seen[msg.ID]++

	return nil
}

func (p *process) received() map[string]int {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make(map[string]int, len(p.seen))
	for id, n := range p.seen {
		out[id] = n
	}

	return out
}

type cluster struct {
	t          *testing.T
	ns         *server.Server
	partitions int
	procs      []*process
}

func newCluster(t *testing.T, partitions int) *cluster {
	t.Helper()

	ns, _ := partitest.StartEmbeddedNATS(t)

	return &cluster{t: t, ns: ns, partitions: partitions}
}

func (c *cluster) start(id string) *process {
	c.t.Helper()

	conn := partitest.Connect(c.t, c.ns)
	cfg := partigroup.TestConfig(c.partitions)
	consumer, err := partigroup.NewConsumer(&cfg, conn,
		partigroup.WithConsumerID(id),
		partigroup.WithLogger(partitest.NewTestLogger(c.t)),
	)
	require.NoError(c.t, err)
	c.t.Cleanup(func() { _ = consumer.Close(context.Background()) })

	p := &process{id: id, conn: conn, consumer: consumer, seen: make(map[string]int)}
	p.sub, err = consumer.Subscribe(c.t.Context(), groupName, []string{"orders"}, p.handle)
	require.NoError(c.t, err)
	c.procs = append(c.procs, p)

	return p
}

// stop closes a process gracefully.
func (c *cluster) stop(p *process) {
	c.t.Helper()

	require.NoError(c.t, p.consumer.Close(c.t.Context()))
	c.remove(p)
}

// crash drops a process's connection without leaving the group, so its
// heartbeat and any lease it holds only disappear through TTL expiry.
func (c *cluster) crash(p *process) {
	p.conn.Close()
	c.remove(p)
}

func (c *cluster) remove(p *process) {
	for i, q := range c.procs {
		if q == p {
			c.procs = append(c.procs[:i], c.procs[i+1:]...)
			return
		}
	}
}

func (c *cluster) ownership() map[string][]int {
	out := make(map[string][]int, len(c.procs))
	for _, p := range c.procs {
		out[p.id] = p.sub.Partitions().Slice()
	}

	return out
}

func (c *cluster) waitConverged(timeout time.Duration) {
	c.t.Helper()

	require.Eventually(c.t, func() bool {
		return testutil.CheckAssignmentsConsistent(c.ownership(), c.partitions) == nil
	}, timeout, 20*time.Millisecond, "cluster did not converge: %v", c.ownership())
	testutil.AssertAssignmentsBalanced(c.t, c.ownership())
}

func (c *cluster) leaders() []*process {
	var out []*process
	for _, p := range c.procs {
		if p.sub.IsLeader() {
			out = append(out, p)
		}
	}

	return out
}

func (c *cluster) waitOneLeader(timeout time.Duration) *process {
	c.t.Helper()

	var leader *process
	require.Eventually(c.t, func() bool {
		ls := c.leaders()
		if len(ls) != 1 {
			return false
		}
		leader = ls[0]

		return true
	}, timeout, 20*time.Millisecond, "expected exactly one leader")

	return leader
}

// produce publishes perPartition messages to every partition and returns their ids.
func (c *cluster) produce(perPartition int) []string {
	c.t.Helper()

	js, err := jetstream.New(partitest.Connect(c.t, c.ns))
	require.NoError(c.t, err)

	var ids []string
	p, err := producer.New(js, c.partitions, producer.WithIDGenerator(func() string {
		id := uuid.NewString()
		ids = append(ids, id)

		return id
	}))
	require.NoError(c.t, err)

	for range perPartition {
		for part := range c.partitions {
			require.NoError(c.t, p.SendToPartition(c.t.Context(), "orders", part, []byte("payload")))
		}
	}

	return ids
}

// waitDelivered waits until every id was handled by some live process.
func (c *cluster) waitDelivered(ids []string, timeout time.Duration) {
	c.t.Helper()

	require.Eventually(c.t, func() bool {
		got := make(map[string]int)
		for _, p := range c.procs {
			for id, n := range p.received() {
				got[id] += n
			}
		}
		for _, id := range ids {
			if got[id] == 0 {
				return false
			}
		}

		return true
	}, timeout, 50*time.Millisecond, "not every message was delivered")
}
