// Package devserver runs an in-process NATS server with JetStream enabled.
//
// It backs the test helpers in the testing package and the CLI's
// dev-server command.
package devserver

import (
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats-server/v2/server"
)

// ErrNotReady is returned when the server does not accept connections in time.
var ErrNotReady = errors.New("embedded NATS server not ready")

// Options configures an embedded server.
type Options struct {
	// Host to listen on. Defaults to 127.0.0.1.
	Host string

	// Port to listen on. -1 picks a random free port.
	Port int

	// StoreDir is the JetStream storage directory. Required.
	StoreDir string

	// ServerName is optional; NATS generates one when empty.
	ServerName string

	// Quiet suppresses server logging.
	Quiet bool

	// ReadyTimeout bounds the wait for the server to accept clients. Defaults to 5s.
	ReadyTimeout time.Duration
}

// Start creates and starts a JetStream-enabled server and waits until it
// accepts client connections.
//
// Parameters:
//   - opts: Server options
//
// Returns:
//   - *server.Server: The running server; call Shutdown and WaitForShutdown to stop it
//   - error: Creation failure or ErrNotReady
func Start(opts Options) (*server.Server, error) {
	if opts.Host == "" {
		opts.Host = "127.0.0.1"
	}
	if opts.ReadyTimeout <= 0 {
		opts.ReadyTimeout = 5 * time.Second
	}
	if opts.StoreDir == "" {
		return nil, errors.New("store directory is required")
	}

	ns, err := server.NewServer(&server.Options{
		ServerName: opts.ServerName,
		Host:       opts.Host,
		Port:       opts.Port,
		JetStream:  true,
		StoreDir:   opts.StoreDir,
		NoLog:      opts.Quiet,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create NATS server: %w", err)
	}

	if !opts.Quiet {
		ns.ConfigureLogger()
	}

	go ns.Start()

	if !ns.ReadyForConnections(opts.ReadyTimeout) {
		ns.Shutdown()
		return nil, ErrNotReady
	}

	return ns, nil
}
