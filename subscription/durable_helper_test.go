package subscription

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/require"

	"github.com/arloliu/partigroup/internal/natsutil"
	partitest "github.com/arloliu/partigroup/testing"
	"github.com/arloliu/partigroup/types"
)

func setupStream(t *testing.T, destination string) jetstream.JetStream {
	t.Helper()

	_, nc := partitest.StartEmbeddedNATS(t)
	js, err := jetstream.New(nc)
	require.NoError(t, err)

	_, err = natsutil.EnsureStream(t.Context(), js, "test", destination, 0)
	require.NoError(t, err)

	return js
}

func publish(t *testing.T, js jetstream.JetStream, destination string, partition int, payload string) {
	t.Helper()

	msg := nats.NewMsg(natsutil.Subject(destination, partition))
	msg.Data = []byte(payload)
	msg.Header.Set(types.HeaderMsgID, payload)
	msg.Header.Set(types.HeaderPartitionKey, "key-"+payload)
	msg.Header.Set("Trace", "abc")
	_, err := js.PublishMsg(t.Context(), msg)
	require.NoError(t, err)
}

func testConfig(destination string) DurableConfig {
	return DurableConfig{
		StreamName:     natsutil.StreamName("test", destination),
		Destination:    destination,
		ConsumerPrefix: "sub",
		AckWait:        time.Second,
		FetchTimeout:   200 * time.Millisecond,
		RetryBackoff:   20 * time.Millisecond,
		RetrySeed:      7,
	}
}

type collector struct {
	mu   sync.Mutex
	msgs []*types.Message
}

func (c *collector) handle(_ context.Context, m *types.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgs = append(c.msgs, m)

	return nil
}

func (c *collector) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.msgs)
}

func (c *collector) byPartition() map[int]int {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make(map[int]int)
	for _, m := range c.msgs {
		out[m.Partition]++
	}

	return out
}

func ownsAll(int) bool { return true }

func TestNewDurableHelper_Validation(t *testing.T) {
	js := setupStream(t, "orders")
	h := func(context.Context, *types.Message) error { return nil }

	_, err := NewDurableHelper(nil, testConfig("orders"), h, ownsAll)
	require.ErrorIs(t, err, types.ErrInvalidConfig)

	_, err = NewDurableHelper(js, testConfig("orders"), nil, ownsAll)
	require.ErrorIs(t, err, types.ErrHandlerRequired)

	_, err = NewDurableHelper(js, testConfig("orders"), h, nil)
	require.ErrorIs(t, err, types.ErrInvalidConfig)

	for _, mutate := range []func(*DurableConfig){
		func(c *DurableConfig) { c.StreamName = "" },
		func(c *DurableConfig) { c.Destination = "" },
		func(c *DurableConfig) { c.ConsumerPrefix = "" },
	} {
		cfg := testConfig("orders")
		mutate(&cfg)
		_, err = NewDurableHelper(js, cfg, h, ownsAll)
		require.ErrorIs(t, err, types.ErrInvalidConfig)
	}
}

func TestDurableHelper_DeliversOwnedPartitions(t *testing.T) {
	js := setupStream(t, "orders")
	c := &collector{}

	dh, err := NewDurableHelper(js, testConfig("orders"), c.handle, ownsAll)
	require.NoError(t, err)
	t.Cleanup(func() { _ = dh.Close(context.Background()) })

	for i := range 10 {
		publish(t, js, "orders", i%2, fmt.Sprintf("m%d", i))
	}
	publish(t, js, "orders", 2, "other")

	dh.UpdatePartitions(types.NewPartitionSet(0, 1))
	require.Equal(t, []int{0, 1}, dh.ActivePartitions())

	require.Eventually(t, func() bool { return c.count() == 10 }, 5*time.Second, 10*time.Millisecond)
	require.Equal(t, map[int]int{0: 5, 1: 5}, c.byPartition())

	t.Run("message fields", func(t *testing.T) {
		c.mu.Lock()
		m := c.msgs[0]
		c.mu.Unlock()

		require.Equal(t, "orders", m.Destination)
		require.NotEmpty(t, m.ID)
		require.Equal(t, "key-"+m.ID, m.Key)
		require.Equal(t, m.ID, string(m.Payload))
		require.Equal(t, map[string]string{"Trace": "abc"}, m.Headers)
	})

	t.Run("consumers are durable per partition", func(t *testing.T) {
		stream, err := js.Stream(t.Context(), natsutil.StreamName("test", "orders"))
		require.NoError(t, err)

		info, err := stream.Consumer(t.Context(), ConsumerName("sub", "orders", 1))
		require.NoError(t, err)
		require.Equal(t, "orders.1", info.CachedInfo().Config.FilterSubject)
	})
}

func TestDurableHelper_UnownedMessagesAreReturned(t *testing.T) {
	js := setupStream(t, "orders")
	c := &collector{}

	var owned atomic.Bool
	dh, err := NewDurableHelper(js, testConfig("orders"), c.handle, func(int) bool { return owned.Load() })
	require.NoError(t, err)
	t.Cleanup(func() { _ = dh.Close(context.Background()) })

	for i := range 3 {
		publish(t, js, "orders", 0, fmt.Sprintf("m%d", i))
	}
	dh.UpdatePartitions(types.NewPartitionSet(0))

	time.Sleep(300 * time.Millisecond)
	require.Zero(t, c.count())

	owned.Store(true)
	require.Eventually(t, func() bool { return c.count() == 3 }, 5*time.Second, 10*time.Millisecond)
}

func TestDurableHelper_HandlerErrorRedelivers(t *testing.T) {
	js := setupStream(t, "orders")

	var attempts atomic.Int32
	handler := func(context.Context, *types.Message) error {
		if attempts.Add(1) == 1 {
			return errors.New("transient")
		}

		return nil
	}

	dh, err := NewDurableHelper(js, testConfig("orders"), handler, ownsAll)
	require.NoError(t, err)
	t.Cleanup(func() { _ = dh.Close(context.Background()) })

	publish(t, js, "orders", 0, "once")
	dh.UpdatePartitions(types.NewPartitionSet(0))

	require.Eventually(t, func() bool { return attempts.Load() == 2 }, 5*time.Second, 10*time.Millisecond)
}

func TestDurableHelper_HandoverResumesDurable(t *testing.T) {
	js := setupStream(t, "orders")
	first, second := &collector{}, &collector{}

	dh1, err := NewDurableHelper(js, testConfig("orders"), first.handle, ownsAll)
	require.NoError(t, err)
	dh2, err := NewDurableHelper(js, testConfig("orders"), second.handle, ownsAll)
	require.NoError(t, err)
	t.Cleanup(func() { _ = dh2.Close(context.Background()) })

	for i := range 4 {
		publish(t, js, "orders", 0, fmt.Sprintf("a%d", i))
	}
	dh1.UpdatePartitions(types.NewPartitionSet(0))
	require.Eventually(t, func() bool { return first.count() == 4 }, 5*time.Second, 10*time.Millisecond)
	require.NoError(t, dh1.Close(t.Context()))

	for i := range 4 {
		publish(t, js, "orders", 0, fmt.Sprintf("b%d", i))
	}
	dh2.UpdatePartitions(types.NewPartitionSet(0))
	require.Eventually(t, func() bool { return second.count() == 4 }, 5*time.Second, 10*time.Millisecond)

	second.mu.Lock()
	defer second.mu.Unlock()
	for _, m := range second.msgs {
		require.Equal(t, byte('b'), m.Payload[0], "already acked messages must not be redelivered")
	}
}

func TestDurableHelper_UpdateAndClose(t *testing.T) {
	js := setupStream(t, "orders")
	c := &collector{}

	dh, err := NewDurableHelper(js, testConfig("orders"), c.handle, ownsAll)
	require.NoError(t, err)

	dh.UpdatePartitions(types.NewPartitionSet(0, 1, 2))
	require.Equal(t, []int{0, 1, 2}, dh.ActivePartitions())

	dh.UpdatePartitions(types.NewPartitionSet(2, 3))
	require.Equal(t, []int{2, 3}, dh.ActivePartitions())

	dh.UpdatePartitions(types.NewPartitionSet())
	require.Empty(t, dh.ActivePartitions())

	dh.UpdatePartitions(types.NewPartitionSet(1))
	require.NoError(t, dh.Close(t.Context()))
	require.NoError(t, dh.Close(t.Context()))
	require.Empty(t, dh.ActivePartitions())

	dh.UpdatePartitions(types.NewPartitionSet(1))
	require.Empty(t, dh.ActivePartitions(), "closed helper ignores updates")
}
