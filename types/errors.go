package types

import (
	"errors"
	"strings"
)

// Sentinel errors for partigroup.
//
// Callers match them with errors.Is. Components wrap store errors with
// fmt.Errorf("%w: %w", ErrX, err) so both the sentinel and the cause stay
// inspectable.

// Consumer errors, returned by the public API.
var (
	// ErrInvalidConfig is returned when the configuration is invalid.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrNATSConnectionRequired is returned when the NATS connection is nil.
	ErrNATSConnectionRequired = errors.New("NATS connection is required")

	// ErrInvalidID is returned when a group, member or destination id
	// contains characters outside [A-Za-z0-9_=-].
	ErrInvalidID = errors.New("invalid identifier")

	// ErrNoDestinations is returned when Subscribe is called without destinations.
	ErrNoDestinations = errors.New("at least one destination is required")

	// ErrHandlerRequired is returned when Subscribe is called with a nil handler.
	ErrHandlerRequired = errors.New("message handler is required")

	// ErrConsumerClosed is returned when using a closed consumer.
	ErrConsumerClosed = errors.New("consumer closed")

	// ErrAlreadySubscribed is returned when a consumer subscribes twice with
	// the same subscriber id.
	ErrAlreadySubscribed = errors.New("subscriber already subscribed")

	// ErrPartitionOutOfRange is returned for partitions outside [0, P).
	ErrPartitionOutOfRange = errors.New("partition out of range")
)

// Lifecycle errors shared by background components.
var (
	// ErrAlreadyStarted is returned when Start is called twice.
	ErrAlreadyStarted = errors.New("already started")

	// ErrNotStarted is returned when an operation requires a started component.
	ErrNotStarted = errors.New("not started")
)

// Election errors.
var (
	// ErrLeadershipLost is returned when a lease renewal fails.
	ErrLeadershipLost = errors.New("leadership lost")

	// ErrNotLeader is returned when renewing a lease that is not held.
	ErrNotLeader = errors.New("not the leader")
)

// Assignment errors.
var (
	// ErrWriteAssignment is returned when an assignment record cannot be written.
	ErrWriteAssignment = errors.New("failed to write assignment")

	// ErrReadAssignment is returned when an assignment record cannot be read.
	ErrReadAssignment = errors.New("failed to read assignment")
)

// Common errors.
var (
	// ErrConnectivity marks a NATS connectivity failure.
	ErrConnectivity = errors.New("connectivity issue")

	// ErrNoKeysFound is returned when a KV scan finds nothing.
	ErrNoKeysFound = errors.New("no keys found")
)

// IsNoKeysFoundError reports whether err means a KV scan found no keys.
//
// NATS returns the condition both as jetstream.ErrNoKeysFound and, in older
// code paths, as a wrapped "no keys found" message.
func IsNoKeysFoundError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrNoKeysFound) {
		return true
	}

	return strings.Contains(err.Error(), "no keys found")
}
