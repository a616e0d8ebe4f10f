package adb

import (
	"context"
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Forward establishes the port bridge: a tunnel from the configured local
// TCP port to the debuggee's debug port, addressed by pid. On failure the
// caller must not attempt a socket connection; it should fall back to a
// detached session.
func (c *Client) Forward(ctx context.Context, pid int) (int, error) {
	res := c.run(ctx, c.adbPath,
		"forward",
		fmt.Sprintf("tcp:%d", c.localPort),
		fmt.Sprintf("jdwp:%d", pid))
	if res.RunErr != nil {
		return 0, errors.Wrap(res.RunErr, "running port forward")
	}
	if res.ExitCode != 0 {
		return 0, errors.Errorf("port forward exited %d: %s",
			res.ExitCode, strings.TrimSpace(res.Stderr))
	}

	c.log.Info("debug port forwarded",
		zap.Int("localPort", c.localPort), zap.Int("pid", pid))
	return c.localPort, nil
}
