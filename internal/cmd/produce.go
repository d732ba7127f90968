package cmd

import (
	"fmt"
	"strconv"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/spf13/cobra"

	"github.com/arloliu/partigroup/producer"
)

func newProduceCommand(flags *globalFlags) *cobra.Command {
	var (
		destination string
		partitions  int
		count       int
		keyPrefix   string
		interval    time.Duration
	)

	cmd := &cobra.Command{
		Use:   "produce",
		Short: "Publish keyed messages to a destination",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signalContext(cmd.Context())
			defer stop()

			logger := flags.logger()
			cfg, err := flags.loadConfig(partitions)
			if err != nil {
				return err
			}

			nc, err := flags.connect()
			if err != nil {
				return err
			}
			defer nc.Close()

			js, err := jetstream.New(nc)
			if err != nil {
				return fmt.Errorf("failed to create jetstream context: %w", err)
			}

			p, err := producer.New(js, cfg.PartitionCount,
				producer.WithStreamPrefix(cfg.Delivery.StreamPrefix),
				producer.WithMaxAge(cfg.Delivery.MaxAge),
				producer.WithLogger(logger),
			)
			if err != nil {
				return err
			}

			for i := range count {
				key := keyPrefix + strconv.Itoa(i)
				if err := p.Send(ctx, destination, key, []byte("message "+strconv.Itoa(i))); err != nil {
					return fmt.Errorf("send %d: %w", i, err)
				}
				if interval > 0 {
					select {
					case <-ctx.Done():
						return nil
					case <-time.After(interval):
					}
				}
			}
			logger.Info("produced", "destination", destination, "count", count, "partitions", p.PartitionCount())

			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&destination, "destination", "", "destination to publish to (required)")
	f.IntVar(&partitions, "partitions", 0, "partition count (overrides the config file)")
	f.IntVar(&count, "count", 10, "number of messages")
	f.StringVar(&keyPrefix, "key-prefix", "key-", "routing key prefix; the message index is appended")
	f.DurationVar(&interval, "interval", 0, "pause between messages")
	_ = cmd.MarkFlagRequired("destination")

	return cmd
}
