// Package testing provides test helpers for partigroup.
//
// Key utilities:
//   - StartEmbeddedNATS: in-process NATS server with JetStream
//   - CreateJetStreamKV: KV bucket with a bucket-level TTL
//   - NewTestLogger: types.Logger writing through testing.T
//
// Example:
//
//	import partitest "github.com/arloliu/partigroup/testing"
//
//	func TestMyComponent(t *testing.T) {
//	    _, nc := partitest.StartEmbeddedNATS(t)
//	    kv := partitest.CreateJetStreamKV(t, nc, "heartbeat", 3*time.Second)
//	    // ...
//	}
package testing
