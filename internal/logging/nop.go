package logging

import "github.com/arloliu/partigroup/types"

// NopLogger discards everything. It is the default logger.
type NopLogger struct{}

var _ types.Logger = (*NopLogger)(nil)

// NewNop returns a logger that discards all messages.
func NewNop() *NopLogger {
	return &NopLogger{}
}

func (n *NopLogger) Debug(_ string, _ ...any) {}
func (n *NopLogger) Info(_ string, _ ...any)  {}
func (n *NopLogger) Warn(_ string, _ ...any)  {}
func (n *NopLogger) Error(_ string, _ ...any) {}

// Fatal discards the message and does not exit.
func (n *NopLogger) Fatal(_ string, _ ...any) {}
