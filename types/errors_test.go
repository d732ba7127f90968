package types

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSentinelErrors(t *testing.T) {
	t.Run("wrapped errors keep identity", func(t *testing.T) {
		cause := errors.New("kv timeout")
		wrapped := fmt.Errorf("%w: %w", ErrLeadershipLost, cause)

		require.ErrorIs(t, wrapped, ErrLeadershipLost)
		require.ErrorIs(t, wrapped, cause)
		require.NotErrorIs(t, wrapped, ErrNotLeader)
	})

	t.Run("all errors are distinct", func(t *testing.T) {
		allErrors := []error{
			ErrInvalidConfig,
			ErrNATSConnectionRequired,
			ErrInvalidID,
			ErrNoDestinations,
			ErrHandlerRequired,
			ErrConsumerClosed,
			ErrPartitionOutOfRange,
			ErrAlreadyStarted,
			ErrNotStarted,
			ErrLeadershipLost,
			ErrNotLeader,
			ErrWriteAssignment,
			ErrReadAssignment,
			ErrConnectivity,
			ErrNoKeysFound,
		}

		for i, err1 := range allErrors {
			for j, err2 := range allErrors {
				if i == j {
					continue
				}
				require.NotErrorIs(t, err1, err2, "errors should be distinct: %v vs %v", err1, err2)
			}
		}
	})
}

func TestIsNoKeysFoundError(t *testing.T) {
	t.Run("nil", func(t *testing.T) {
		require.False(t, IsNoKeysFoundError(nil))
	})

	t.Run("sentinel and wrapped sentinel", func(t *testing.T) {
		require.True(t, IsNoKeysFoundError(ErrNoKeysFound))
		require.True(t, IsNoKeysFoundError(fmt.Errorf("scan: %w", ErrNoKeysFound)))
	})

	t.Run("NATS message", func(t *testing.T) {
		require.True(t, IsNoKeysFoundError(errors.New("nats: no keys found")))
	})

	t.Run("unrelated error", func(t *testing.T) {
		require.False(t, IsNoKeysFoundError(errors.New("nats: timeout")))
	})
}
