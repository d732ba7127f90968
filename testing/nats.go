package testing

import (
	"testing"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/arloliu/partigroup/internal/devserver"
)

// StartEmbeddedNATS starts an in-process NATS server with JetStream and
// connects a client to it.
//
// The server listens on a random port and stores data under t.TempDir().
// Both the client and the server are closed by t.Cleanup.
//
// Returns:
//   - *server.Server: The embedded server
//   - *nats.Conn: Connected client
func StartEmbeddedNATS(t *testing.T) (*server.Server, *nats.Conn) {
	t.Helper()

	ns, err := devserver.Start(devserver.Options{
		Port:     -1,
		StoreDir: t.TempDir(),
		Quiet:    true,
	})
	if err != nil {
		t.Fatalf("Failed to start embedded NATS server: %v", err)
	}

	nc, err := nats.Connect(ns.ClientURL(),
		nats.Timeout(2*time.Second),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(3),
	)
	if err != nil {
		ns.Shutdown()
		t.Fatalf("Failed to connect to embedded NATS server: %v", err)
	}

	t.Cleanup(func() {
		nc.Close()
		ns.Shutdown()
		ns.WaitForShutdown()
	})

	return ns, nc
}

// Connect opens an additional client connection to ns, closed by t.Cleanup.
//
// Separate connections model separate consumer processes.
func Connect(t *testing.T, ns *server.Server) *nats.Conn {
	t.Helper()

	nc, err := nats.Connect(ns.ClientURL(), nats.Timeout(2*time.Second))
	if err != nil {
		t.Fatalf("Failed to connect to embedded NATS server: %v", err)
	}
	t.Cleanup(nc.Close)

	return nc
}

// CreateJetStreamKV creates an in-memory KV bucket with History 1 and the
// given bucket-level TTL (0 means keys never expire).
func CreateJetStreamKV(t *testing.T, nc *nats.Conn, bucketName string, ttl time.Duration) jetstream.KeyValue {
	t.Helper()

	js, err := jetstream.New(nc)
	if err != nil {
		t.Fatalf("Failed to get JetStream context: %v", err)
	}

	kv, err := js.CreateKeyValue(t.Context(), jetstream.KeyValueConfig{
		Bucket:   bucketName,
		History:  1,
		TTL:      ttl,
		Storage:  jetstream.MemoryStorage,
		Replicas: 1,
	})
	if err != nil {
		t.Fatalf("Failed to create KV bucket %s: %v", bucketName, err)
	}

	return kv
}
