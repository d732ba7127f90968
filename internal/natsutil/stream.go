package natsutil

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"
)

// StreamName returns the JetStream stream that carries a destination.
func StreamName(prefix, destination string) string {
	return prefix + "_" + destination
}

// Subject returns the subject messages for one partition are published on.
func Subject(destination string, partition int) string {
	return fmt.Sprintf("%s.%d", destination, partition)
}

// EnsureStream creates or opens the stream for a destination.
//
// The stream captures every partition subject of the destination
// ("{destination}.*"). Concurrent creators race safely: losing the race
// falls back to opening the existing stream.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - js: JetStream context
//   - prefix: Stream name prefix
//   - destination: Destination (channel) name
//   - maxAge: Message retention (0 keeps messages until the limits are hit)
//
// Returns:
//   - jetstream.Stream: The stream handle
//   - error: Failure after retries
func EnsureStream(ctx context.Context, js jetstream.JetStream, prefix, destination string, maxAge time.Duration) (jetstream.Stream, error) {
	cfg := jetstream.StreamConfig{
		Name:        StreamName(prefix, destination),
		Description: "partitioned destination " + destination,
		Subjects:    []string{destination + ".*"},
		Retention:   jetstream.LimitsPolicy,
		Storage:     jetstream.FileStorage,
		MaxAge:      maxAge,
		Duplicates:  2 * time.Minute,
	}

	var stream jetstream.Stream
	err := Retry(ctx, 5, 10*time.Millisecond, func(ctx context.Context) error {
		s, err := js.CreateStream(ctx, cfg)
		if err == nil {
			stream = s
			return nil
		}

		if errors.Is(err, jetstream.ErrStreamNameAlreadyInUse) {
			s, err = js.Stream(ctx, cfg.Name)
			if err == nil {
				stream = s
				return nil
			}
		}

		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to ensure stream %s: %w", cfg.Name, err)
	}

	return stream, nil
}
