package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/arloliu/partigroup"
)

func newConsumeCommand(flags *globalFlags) *cobra.Command {
	var (
		subscriber   string
		destinations []string
		partitions   int
		consumerID   string
	)

	cmd := &cobra.Command{
		Use:   "consume",
		Short: "Join a consumer group and print the messages of owned partitions",
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

			opts := []partigroup.Option{
				partigroup.WithLogger(logger),
				partigroup.WithMetrics(flags.serveMetrics(ctx, logger)),
			}
			if consumerID != "" {
				opts = append(opts, partigroup.WithConsumerID(consumerID))
			}

			consumer, err := partigroup.NewConsumer(cfg, nc, opts...)
			if err != nil {
				return err
			}
			consumer.SetSubscriptionLifecycleHook(func(_ context.Context, channel, subID string, parts partigroup.PartitionSet) error {
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s/%s owns %s\n", time.Now().Format(time.TimeOnly), channel, subID, parts)
				return nil
			})

			handler := func(_ context.Context, msg *partigroup.Message) error {
				fmt.Fprintf(cmd.OutOrStdout(), "%s[%d] %s key=%q %s\n", msg.Destination, msg.Partition, msg.ID, msg.Key, msg.Payload)
				return nil
			}
			if _, err := consumer.Subscribe(ctx, subscriber, destinations, handler); err != nil {
				_ = consumer.Close(context.Background())
				return err
			}

			logger.Info("consuming", "consumer", consumer.ID(), "subscriber", subscriber, "destinations", destinations)
			<-ctx.Done()

			return consumer.Close(context.Background())
		},
	}

	f := cmd.Flags()
	f.StringVar(&subscriber, "subscriber", "", "consumer group name (required)")
	f.StringSliceVar(&destinations, "destination", nil, "destination to consume, repeatable (required)")
	f.IntVar(&partitions, "partitions", 0, "partition count (overrides the config file)")
	f.StringVar(&consumerID, "id", "", "member id (random when empty)")
	_ = cmd.MarkFlagRequired("subscriber")
	_ = cmd.MarkFlagRequired("destination")

	return cmd
}
