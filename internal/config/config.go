// Package config provides configuration for the debugging engine.
//
// Configuration controls the paths of the external device-control tools,
// the local port the debug bridge forwards, and the timeouts applied to
// external commands and wire reads. Values come from defaults, an optional
// YAML file under ~/.droidbg, and command-line flags, in that order.
package config

import (
	"os"
	"path/filepath"
	"time"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// Config holds the engine configuration
type Config struct {
	// External tool paths
	AdbPath  string `mapstructure:"adb_path"`
	AaptPath string `mapstructure:"aapt_path"`

	// LocalPort is the fixed local TCP port the debug bridge forwards to
	// the debuggee's debug port.
	LocalPort int `mapstructure:"local_port"`

	// CommandTimeout bounds every external device-control command.
	CommandTimeout time.Duration `mapstructure:"command_timeout"`

	// ReadTimeout bounds every wire reply read so a wedged debuggee
	// cannot hang a session indefinitely.
	ReadTimeout time.Duration `mapstructure:"read_timeout"`

	Verbose bool `mapstructure:"verbose"`
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		AdbPath:        "adb",
		AaptPath:       "aapt",
		LocalPort:      8700,
		CommandTimeout: 30 * time.Second,
		ReadTimeout:    10 * time.Second,
	}
}

// Load reads configuration from the given file, or from the default
// location under the user's home directory when path is empty. A missing
// default file is not an error; defaults apply.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path == "" {
		dir, err := configDir()
		if err != nil {
			return cfg, nil
		}
		candidate := filepath.Join(dir, "config.yaml")
		if _, err := os.Stat(candidate); err != nil {
			return cfg, nil
		}
		path = candidate
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func configDir() (string, error) {
	home, err := homedir.Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".droidbg"), nil
}
