package devserver

import (
	"testing"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/require"
)

func TestStart(t *testing.T) {
	t.Run("requires store dir", func(t *testing.T) {
		_, err := Start(Options{Port: -1, Quiet: true})
		require.Error(t, err)
	})

	t.Run("serves JetStream", func(t *testing.T) {
		ns, err := Start(Options{Port: -1, StoreDir: t.TempDir(), Quiet: true})
		require.NoError(t, err)
		t.Cleanup(func() {
			ns.Shutdown()
			ns.WaitForShutdown()
		})

		require.True(t, ns.JetStreamEnabled())

		nc, err := nats.Connect(ns.ClientURL())
		require.NoError(t, err)
		defer nc.Close()
		require.True(t, nc.IsConnected())
	})
}
