package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	survey "gopkg.in/AlecAivazis/survey.v1"
)

func newDebugCmd(o *options) *cobra.Command {
	var (
		machine bool
		yes     bool
	)

	cmd := &cobra.Command{
		Use:   "debug <package-file>",
		Short: "Install an app package and attach a debug session to it",
		Long: `Installs the given app package on the connected device, launches it
suspended at its entry point, forwards the debug port and attaches.
The session stays open until interrupted; breakpoints and stepping are
driven over MCP ('droidbg serve') in that case.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			packagePath := args[0]

			if !yes && !machine {
				confirmed := false
				prompt := &survey.Confirm{
					Message: fmt.Sprintf("Install %s on the connected device (replacing any existing install)?", packagePath),
					Default: true,
				}
				if err := survey.AskOne(prompt, &confirmed, nil); err != nil {
					return err
				}
				if !confirmed {
					return errors.New("install declined")
				}
			}

			zlog, err := engineLogger(o.cfg.Verbose)
			if err != nil {
				return err
			}
			defer zlog.Sync()

			svc := newService(o, zlog)
			defer svc.Close()

			handle, res := svc.StartDebugging(context.Background(), packagePath)
			if !res.Success {
				return errors.New(strings.Join(res.Errors, "; "))
			}

			info, err := svc.Status()
			if err != nil {
				return err
			}

			if machine {
				out, err := json.Marshal(info)
				if err != nil {
					return err
				}
				fmt.Println(string(out))
			} else {
				fmt.Printf("session %s: %s (pid %d), attached=%v\n",
					info.SessionID, info.ProcessName, info.Pid, info.Attached)
				if !info.Attached {
					log.Warn("no debug port reachable; session is detached")
				}
				fmt.Println("press Ctrl-C to stop the session")
			}

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			<-sigCh

			svc.StopDebugging(handle)
			return nil
		},
	}

	cmd.Flags().BoolVar(&machine, "machine", false, "machine-readable output, skip prompts")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip the install confirmation prompt")

	return cmd
}
