package main

import (
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/droidbg/droidbg/internal/adb"
	"github.com/droidbg/droidbg/internal/config"
	"github.com/droidbg/droidbg/internal/debugger"
)

type options struct {
	configPath string
	verbose    bool

	cfg *config.Config
}

func newRootCmd() *cobra.Command {
	o := &options{}

	cmd := &cobra.Command{
		Use:   "droidbg",
		Short: "Debug apps on a connected device",
		Long: `droidbg installs an app package on a connected device, launches it
suspended at its entry point, and attaches a debug session over the
device's debug port. Sessions can also be driven by MCP clients via
'droidbg serve'.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(o.configPath)
			if err != nil {
				return err
			}
			if o.verbose {
				cfg.Verbose = true
				log.SetLevel(log.DebugLevel)
			}
			o.cfg = cfg
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&o.configPath, "config", "", "path to a config file (default ~/.droidbg/config.yaml)")
	cmd.PersistentFlags().BoolVarP(&o.verbose, "verbose", "v", false, "enable verbose logging")

	cmd.AddCommand(
		newServeCmd(o),
		newDebugCmd(o),
		newVersionCmd(),
	)

	return cmd
}

// engineLogger builds the structured logger the engine packages use.
// Output goes to stderr so it never corrupts the stdio transport.
func engineLogger(verbose bool) (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func newService(o *options, zlog *zap.Logger) *debugger.Service {
	device := adb.NewClient(o.cfg, nil, zlog)
	return debugger.New(o.cfg, device, zlog)
}
