package adb

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/droidbg/droidbg/pkg/types"
)

// activityStrategy attempts to resolve the main activity of a package.
type activityStrategy func(ctx context.Context, packageName string) (string, error)

// Launch resolves the package's main activity, starts it debug-suspended
// and waiting, and resolves the resulting OS pid. A missing main activity
// or unresolvable pid is terminal for the call; nothing is retried.
func (c *Client) Launch(ctx context.Context, packageName string) types.LaunchResult {
	activity, err := c.mainActivity(ctx, packageName)
	if err != nil {
		return types.LaunchResult{
			Errors: []string{
				fmt.Sprintf("could not resolve main activity for package %s", packageName),
				err.Error(),
			},
		}
	}

	component := packageName + "/" + activity
	res := c.run(ctx, c.adbPath, "shell", "am", "start", "-D", "-W", "-n", component)
	if res.RunErr != nil {
		return types.LaunchResult{
			Errors: []string{fmt.Sprintf("starting %s: %v", component, res.RunErr)},
		}
	}
	if res.ExitCode != 0 {
		return types.LaunchResult{
			Errors: []string{
				fmt.Sprintf("starting %s exited %d", component, res.ExitCode),
				strings.TrimSpace(res.Stderr),
			},
		}
	}

	pid, ok := c.pidOf(ctx, packageName)
	if !ok {
		return types.LaunchResult{
			Errors: []string{fmt.Sprintf("could not resolve pid for package %s", packageName)},
		}
	}

	c.log.Info("debuggable process launched",
		zap.String("component", component), zap.Int("pid", pid))
	return types.LaunchResult{Success: true, Pid: pid}
}

// mainActivity tries each resolution strategy in order: the direct launch
// intent query first, then the verbose package dump. Per-strategy errors
// are accumulated so a total failure reports everything that was tried.
func (c *Client) mainActivity(ctx context.Context, packageName string) (string, error) {
	strategies := []activityStrategy{
		c.activityFromResolveQuery,
		c.activityFromPackageDump,
	}

	var merr *multierror.Error
	for _, strategy := range strategies {
		activity, err := strategy(ctx, packageName)
		if err == nil {
			return activity, nil
		}
		merr = multierror.Append(merr, err)
	}
	return "", merr.ErrorOrNil()
}

func (c *Client) activityFromResolveQuery(ctx context.Context, packageName string) (string, error) {
	res := c.run(ctx, c.adbPath, "shell", "cmd", "package", "resolve-activity", "--brief", packageName)
	if res.RunErr != nil {
		return "", errors.Wrap(res.RunErr, "resolve-activity query")
	}
	if res.ExitCode != 0 {
		return "", errors.Errorf("resolve-activity exited %d: %s", res.ExitCode, strings.TrimSpace(res.Stderr))
	}

	// The brief output ends with a component line: package/activity.
	for _, line := range reverseLines(res.Stdout) {
		if comp, ok := componentActivity(line, packageName); ok {
			return comp, nil
		}
	}
	return "", errors.Errorf("no component in resolve-activity output for %s", packageName)
}

func (c *Client) activityFromPackageDump(ctx context.Context, packageName string) (string, error) {
	res := c.run(ctx, c.adbPath, "shell", "dumpsys", "package", packageName)
	if res.RunErr != nil {
		return "", errors.Wrap(res.RunErr, "package dump")
	}
	if res.ExitCode != 0 {
		return "", errors.Errorf("package dump exited %d: %s", res.ExitCode, strings.TrimSpace(res.Stderr))
	}

	// Look for a component declared under a MAIN/LAUNCHER intent filter.
	inMain := false
	for _, line := range strings.Split(res.Stdout, "\n") {
		if strings.Contains(line, "android.intent.action.MAIN") {
			inMain = true
			continue
		}
		if !inMain {
			continue
		}
		if comp, ok := componentActivity(line, packageName); ok {
			return comp, nil
		}
	}
	return "", errors.Errorf("no MAIN/LAUNCHER component in package dump for %s", packageName)
}

// componentActivity extracts the activity part of a pkg/activity component
// token found anywhere in line.
func componentActivity(line, packageName string) (string, bool) {
	for _, field := range strings.Fields(line) {
		rest, found := strings.CutPrefix(field, packageName+"/")
		if found && rest != "" {
			return rest, true
		}
	}
	return "", false
}

// pidOf scans the device process list; the pid is the second
// whitespace-delimited column of the first line containing the package name.
func (c *Client) pidOf(ctx context.Context, packageName string) (int, bool) {
	res := c.run(ctx, c.adbPath, "shell", "ps")
	if !res.Ok() {
		return 0, false
	}
	for _, line := range strings.Split(res.Stdout, "\n") {
		if !strings.Contains(line, packageName) {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		pid, err := strconv.Atoi(fields[1])
		if err != nil {
			continue
		}
		return pid, true
	}
	return 0, false
}

func reverseLines(s string) []string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	out := make([]string, 0, len(lines))
	for i := len(lines) - 1; i >= 0; i-- {
		out = append(out, lines[i])
	}
	return out
}
