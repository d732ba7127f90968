package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/arloliu/partigroup/internal/devserver"
)

func newDevServerCommand(flags *globalFlags) *cobra.Command {
	var (
		host     string
		port     int
		storeDir string
	)

	cmd := &cobra.Command{
		Use:   "dev-server",
		Short: "Run a local JetStream-enabled NATS server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signalContext(cmd.Context())
			defer stop()

			logger := flags.logger()
			if storeDir == "" {
				dir, err := os.MkdirTemp("", "partigroup-dev-*")
				if err != nil {
					return err
				}
				defer os.RemoveAll(dir)
				storeDir = dir
			}

			ns, err := devserver.Start(devserver.Options{
				Host:     host,
				Port:     port,
				StoreDir: storeDir,
				Quiet:    true,
			})
			if err != nil {
				return err
			}
			logger.Info("dev server ready", "url", ns.ClientURL(), "store", storeDir)

			<-ctx.Done()
			ns.Shutdown()
			ns.WaitForShutdown()
			logger.Info("dev server stopped")

			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&host, "host", "127.0.0.1", "listen host")
	f.IntVar(&port, "port", 4222, "listen port")
	f.StringVar(&storeDir, "store-dir", "", "JetStream storage directory (temporary when empty)")

	return cmd
}
