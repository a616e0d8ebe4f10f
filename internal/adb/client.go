package adb

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/droidbg/droidbg/internal/config"
)

// Client wraps the device-control tools configured for one engine
// instance. All methods apply the configured per-command timeout.
type Client struct {
	runner    Runner
	adbPath   string
	aaptPath  string
	localPort int
	timeout   time.Duration
	log       *zap.Logger
}

// NewClient creates a device-control client. A nil runner defaults to
// executing real commands.
func NewClient(cfg *config.Config, runner Runner, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	if runner == nil {
		runner = NewExecRunner(log)
	}
	return &Client{
		runner:    runner,
		adbPath:   cfg.AdbPath,
		aaptPath:  cfg.AaptPath,
		localPort: cfg.LocalPort,
		timeout:   cfg.CommandTimeout,
		log:       log,
	}
}

func (c *Client) run(ctx context.Context, name string, args ...string) Result {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	return c.runner.Run(ctx, name, args...)
}
