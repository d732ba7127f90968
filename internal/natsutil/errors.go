// Package natsutil holds NATS helpers shared by the coordination components.
package natsutil

import (
	"errors"
	"strings"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/arloliu/partigroup/types"
)

// IsConnectivityError reports whether err comes from losing the NATS server
// rather than from a rejected operation.
//
// Background loops use it to pick the log level: connectivity errors are
// expected to heal on their own and are logged as warnings.
func IsConnectivityError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, types.ErrConnectivity) ||
		errors.Is(err, nats.ErrTimeout) ||
		errors.Is(err, nats.ErrNoServers) ||
		errors.Is(err, nats.ErrDisconnected) ||
		errors.Is(err, nats.ErrConnectionClosed) ||
		errors.Is(err, nats.ErrConnectionReconnecting) ||
		errors.Is(err, jetstream.ErrNoStreamResponse) ||
		errors.Is(err, jetstream.ErrJetStreamNotEnabled) {
		return true
	}

	msg := err.Error()

	return strings.Contains(msg, "connection refused") || strings.Contains(msg, "i/o timeout")
}
