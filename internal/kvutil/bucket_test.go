package kvutil

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/require"

	partitest "github.com/arloliu/partigroup/testing"
)

func TestEnsureBucket(t *testing.T) {
	_, nc := partitest.StartEmbeddedNATS(t)
	js, err := jetstream.New(nc)
	require.NoError(t, err)

	t.Run("creates bucket", func(t *testing.T) {
		kv, err := EnsureBucket(t.Context(), js, jetstream.KeyValueConfig{Bucket: "create", History: 1}, 3)
		require.NoError(t, err)
		require.Equal(t, "create", kv.Bucket())
	})

	t.Run("concurrent creators all succeed", func(t *testing.T) {
		const workers = 10
		var wg sync.WaitGroup
		errs := make(chan error, workers)
		for range workers {
			wg.Go(func() {
				_, err := EnsureBucket(t.Context(), js, jetstream.KeyValueConfig{
					Bucket:  "concurrent",
					History: 1,
					TTL:     5 * time.Second,
				}, 5)
				errs <- err
			})
		}
		wg.Wait()
		close(errs)

		for err := range errs {
			require.NoError(t, err)
		}
	})

	t.Run("existing bucket keeps first configuration", func(t *testing.T) {
		_, err := EnsureBucket(t.Context(), js, jetstream.KeyValueConfig{Bucket: "first", History: 1, TTL: time.Minute}, 3)
		require.NoError(t, err)

		kv, err := EnsureBucket(t.Context(), js, jetstream.KeyValueConfig{Bucket: "first", History: 1, TTL: time.Hour}, 3)
		require.NoError(t, err)

		status, err := kv.Status(t.Context())
		require.NoError(t, err)
		require.Equal(t, time.Minute, status.TTL())
	})

	t.Run("cancelled context fails", func(t *testing.T) {
		ctx, cancel := context.WithCancel(t.Context())
		cancel()

		_, err := EnsureBucket(ctx, js, jetstream.KeyValueConfig{Bucket: "cancelled"}, 3)
		require.Error(t, err)
	})
}

func TestListKeys(t *testing.T) {
	_, nc := partitest.StartEmbeddedNATS(t)
	kv := partitest.CreateJetStreamKV(t, nc, "keys", time.Minute)
	ctx := t.Context()

	t.Run("empty bucket", func(t *testing.T) {
		keys, err := ListKeys(ctx, kv, "group.g.member.*.heartbeat")
		require.NoError(t, err)
		require.Empty(t, keys)
	})

	t.Run("filters by subject wildcard", func(t *testing.T) {
		for _, key := range []string{
			"group.g.member.a.heartbeat",
			"group.g.member.b.heartbeat",
			"group.other.member.c.heartbeat",
			"group.g.assignment.a",
		} {
			_, err := kv.Put(ctx, key, []byte("x"))
			require.NoError(t, err)
		}

		keys, err := ListKeys(ctx, kv, "group.g.member.*.heartbeat")
		require.NoError(t, err)
		sort.Strings(keys)
		require.Equal(t, []string{"group.g.member.a.heartbeat", "group.g.member.b.heartbeat"}, keys)
	})

	t.Run("deleted keys are skipped", func(t *testing.T) {
		require.NoError(t, kv.Delete(ctx, "group.g.member.a.heartbeat"))

		keys, err := ListKeys(ctx, kv, "group.g.member.*.heartbeat")
		require.NoError(t, err)
		require.Equal(t, []string{"group.g.member.b.heartbeat"}, keys)
	})
}

func TestSegment(t *testing.T) {
	require.Equal(t, "m1", Segment("group.g.member.m1.heartbeat", 3))
	require.Empty(t, Segment("group.g", 5))
	require.Empty(t, Segment("group.g", -1))
}

type recorder struct {
	op  string
	dur float64
}

func (r *recorder) RecordKVOperationDuration(op string, d float64) {
	r.op, r.dur = op, d
}

func TestObserve(t *testing.T) {
	rec := &recorder{}
	Observe(rec, "get", time.Now().Add(-time.Second))
	require.Equal(t, "get", rec.op)
	require.GreaterOrEqual(t, rec.dur, 1.0)

	require.NotPanics(t, func() { Observe(nil, "get", time.Now()) })
}
