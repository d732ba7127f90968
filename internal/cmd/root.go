// Package cmd implements the partigroup command line.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/arloliu/partigroup"
	"github.com/arloliu/partigroup/internal/logging"
)

// globalFlags are shared by every subcommand.
type globalFlags struct {
	natsURL     string
	configPath  string
	metricsAddr string
	logLevel    string
}

// NewRoot constructs the root command and registers the consume, produce
// and dev-server subcommands.
func NewRoot() *cobra.Command {
	flags := &globalFlags{}

	root := &cobra.Command{
		Use:          "partigroup",
		Short:        "Partitioned consumer groups over NATS JetStream",
		SilenceUsage: true,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&flags.natsURL, "nats-url", envOr("NATS_URL", nats.DefaultURL), "NATS server URL")
	pf.StringVar(&flags.configPath, "config", "", "YAML config file")
	pf.StringVar(&flags.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address (disabled when empty)")
	pf.StringVar(&flags.logLevel, "log-level", envOr("PARTIGROUP_LOG_LEVEL", "info"), "log level: debug, info, warn or error")

	root.AddCommand(newConsumeCommand(flags))
	root.AddCommand(newProduceCommand(flags))
	root.AddCommand(newDevServerCommand(flags))

	return root
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}

	return fallback
}

func (f *globalFlags) logger() *logging.SlogLogger {
	return logging.NewSlogText(os.Stderr, f.logLevel)
}

// loadConfig reads --config when given, otherwise starts from DefaultConfig.
// A positive partitions value overrides the file.
func (f *globalFlags) loadConfig(partitions int) (*partigroup.Config, error) {
	cfg := partigroup.DefaultConfig()
	if f.configPath != "" {
		loaded, err := partigroup.LoadConfig(f.configPath)
		if err != nil {
			return nil, err
		}
		cfg = *loaded
	}
	if partitions > 0 {
		cfg.PartitionCount = partitions
	}

	return &cfg, nil
}

func (f *globalFlags) connect() (*nats.Conn, error) {
	nc, err := nats.Connect(f.natsURL,
		nats.Name("partigroup-cli"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", f.natsURL, err)
	}

	return nc, nil
}

// serveMetrics registers a fresh registry and serves it on --metrics-addr
// until ctx ends. It returns a nil collector when metrics are disabled.
func (f *globalFlags) serveMetrics(ctx context.Context, logger *logging.SlogLogger) partigroup.MetricsCollector {
	if f.metricsAddr == "" {
		return nil
	}

	reg := prometheus.NewRegistry()
	collector := partigroup.NewPrometheusMetrics(reg, "partigroup")

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	srv := &http.Server{
		Addr:              f.metricsAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("serving metrics", "addr", f.metricsAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", "error", err)
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	return collector
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
}
