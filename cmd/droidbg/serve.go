package main

import (
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/droidbg/droidbg/internal/mcp"
)

func newServeCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the debugging engine over MCP on stdio",
		RunE: func(cmd *cobra.Command, args []string) error {
			zlog, err := engineLogger(o.cfg.Verbose)
			if err != nil {
				return err
			}
			defer zlog.Sync()

			svc := newService(o, zlog)
			srv := mcp.NewServer(o.cfg, svc)

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			go func() {
				<-sigCh
				log.Info("shutting down")
				srv.Close()
				os.Exit(0)
			}()

			log.Info("droidbg MCP server starting on stdio")
			if err := srv.ServeStdio(); err != nil {
				srv.Close()
				return err
			}
			srv.Close()
			return nil
		},
	}
}
