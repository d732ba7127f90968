package natsutil

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/require"

	partitest "github.com/arloliu/partigroup/testing"
	"github.com/arloliu/partigroup/types"
)

func TestIsConnectivityError(t *testing.T) {
	require.False(t, IsConnectivityError(nil))
	require.True(t, IsConnectivityError(nats.ErrTimeout))
	require.True(t, IsConnectivityError(fmt.Errorf("heartbeat: %w", nats.ErrConnectionClosed)))
	require.True(t, IsConnectivityError(types.ErrConnectivity))
	require.True(t, IsConnectivityError(errors.New("dial tcp: connection refused")))
	require.False(t, IsConnectivityError(jetstream.ErrKeyExists))
}

func TestRetry(t *testing.T) {
	t.Run("succeeds after failures", func(t *testing.T) {
		calls := 0
		err := Retry(t.Context(), 3, time.Millisecond, func(context.Context) error {
			calls++
			if calls < 3 {
				return errors.New("transient")
			}

			return nil
		})
		require.NoError(t, err)
		require.Equal(t, 3, calls)
	})

	t.Run("gives up", func(t *testing.T) {
		cause := errors.New("permanent")
		calls := 0
		err := Retry(t.Context(), 2, time.Millisecond, func(context.Context) error {
			calls++
			return cause
		})
		require.ErrorIs(t, err, cause)
		require.Equal(t, 2, calls)
	})

	t.Run("stops on cancelled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(t.Context())
		cancel()

		calls := 0
		err := Retry(ctx, 5, time.Second, func(context.Context) error {
			calls++
			return errors.New("fail")
		})
		require.Error(t, err)
		require.Equal(t, 1, calls)
	})
}

func TestSubjectNaming(t *testing.T) {
	require.Equal(t, "PG_orders", StreamName("PG", "orders"))
	require.Equal(t, "orders.7", Subject("orders", 7))
}

func TestEnsureStream(t *testing.T) {
	_, nc := partitest.StartEmbeddedNATS(t)
	js, err := jetstream.New(nc)
	require.NoError(t, err)

	t.Run("concurrent creators share one stream", func(t *testing.T) {
		var wg sync.WaitGroup
		errs := make(chan error, 5)
		for range 5 {
			wg.Go(func() {
				_, err := EnsureStream(t.Context(), js, "PG", "orders", time.Hour)
				errs <- err
			})
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			require.NoError(t, err)
		}

		stream, err := js.Stream(t.Context(), "PG_orders")
		require.NoError(t, err)
		info, err := stream.Info(t.Context())
		require.NoError(t, err)
		require.Equal(t, []string{"orders.*"}, info.Config.Subjects)
	})

	t.Run("captures partition subjects", func(t *testing.T) {
		stream, err := EnsureStream(t.Context(), js, "PG", "payments", 0)
		require.NoError(t, err)

		_, err = js.Publish(t.Context(), Subject("payments", 3), []byte("x"))
		require.NoError(t, err)

		info, err := stream.Info(t.Context())
		require.NoError(t, err)
		require.Equal(t, uint64(1), info.State.Msgs)
	})
}
