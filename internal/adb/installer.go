package adb

import (
	"context"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/droidbg/droidbg/pkg/types"
)

// installSuccessMarker is what the device-side installer prints on success.
// The tool is known to print it on stdout even on certain exit-code edge
// cases, so the marker is authoritative, not the exit code alone.
const installSuccessMarker = "Success"

var badgingNamePattern = regexp.MustCompile(`package: name='([^']+)'`)

// Install installs the package on the device, replacing an existing
// install, allowing test packages and allowing downgrades.
func (c *Client) Install(ctx context.Context, packagePath string) types.InstallResult {
	res := c.run(ctx, c.adbPath, "install", "-r", "-t", "-d", packagePath)
	if res.RunErr != nil {
		return types.InstallResult{
			Errors: []string{fmt.Sprintf("running %s install: %v", c.adbPath, res.RunErr)},
		}
	}

	if !strings.Contains(res.Stdout, installSuccessMarker) {
		msgs := []string{fmt.Sprintf("install of %s failed (exit %d)", packagePath, res.ExitCode)}
		if s := strings.TrimSpace(res.Stderr); s != "" {
			msgs = append(msgs, s)
		}
		if s := strings.TrimSpace(res.Stdout); s != "" {
			msgs = append(msgs, s)
		}
		return types.InstallResult{Errors: msgs}
	}

	c.log.Info("package installed", zap.String("path", packagePath))
	return types.InstallResult{Success: true}
}

// nameStrategy attempts to extract the package name from an application
// package. Strategies are tried in order; see PackageName.
type nameStrategy func(ctx context.Context, packagePath string) (string, bool)

// PackageName resolves the package name of an installable package: the
// badging dump first, the newer tool's direct query second, and a name
// synthesized from the file name as a last resort.
func (c *Client) PackageName(ctx context.Context, packagePath string) string {
	strategies := []nameStrategy{
		c.nameFromBadging,
		c.nameFromDirectQuery,
	}
	for _, strategy := range strategies {
		if name, ok := strategy(ctx, packagePath); ok {
			return name
		}
	}
	name := synthesizedName(packagePath)
	c.log.Warn("package name not resolvable, synthesized",
		zap.String("path", packagePath), zap.String("name", name))
	return name
}

func (c *Client) nameFromBadging(ctx context.Context, packagePath string) (string, bool) {
	res := c.run(ctx, c.aaptPath, "dump", "badging", packagePath)
	if !res.Ok() {
		return "", false
	}
	m := badgingNamePattern.FindStringSubmatch(res.Stdout)
	if m == nil {
		return "", false
	}
	return m[1], true
}

func (c *Client) nameFromDirectQuery(ctx context.Context, packagePath string) (string, bool) {
	res := c.run(ctx, c.aaptPath+"2", "dump", "packagename", packagePath)
	if !res.Ok() {
		return "", false
	}
	name := strings.TrimSpace(res.Stdout)
	return name, name != ""
}

func synthesizedName(packagePath string) string {
	base := filepath.Base(packagePath)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	base = strings.ToLower(strings.Map(func(r rune) rune {
		if r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, base))
	if base == "" {
		base = "app"
	}
	return "com.generated." + base
}
