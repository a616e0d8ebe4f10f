package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/droidbg/droidbg/internal/version"
)

func newVersionCmd() *cobra.Command {
	var check bool

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print the droidbg version",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Printf("droidbg version %s\n", version.GetVersion())
			if check {
				info := version.CheckForUpdates(cmd.Context())
				if info.Error != "" {
					return fmt.Errorf("update check failed: %s", info.Error)
				}
				if info.UpdateAvailable {
					fmt.Printf("a newer release is available: v%s (%s)\n",
						info.LatestVersion, info.ReleaseURL)
				} else {
					fmt.Println("up to date")
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&check, "check", false, "check GitHub for a newer release")

	return cmd
}
