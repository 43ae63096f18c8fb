// Package cmd wires the wschat command line.
package cmd

import (
	"github.com/spf13/cobra"
)

// defaultConfigPath is used when it exists and no path was given.
const defaultConfigPath = "wschat.json"

var version = "dev"

// NewRootCmd creates the root cobra command for wschat.
// When invoked without a subcommand, it delegates to "run".
func NewRootCmd(v string) *cobra.Command {
	version = v

	root := &cobra.Command{
		Use:   "wschat",
		Short: "wsChat: WebSocket relay for dialog messages",
		Long:  "wschat authenticates WebSocket clients against PHP sessions, routes chat messages to dialog members and stores what could not be delivered.",
		// Bare invocation (no subcommand) behaves as "run".
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRun(cmd, args)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(newRunCmd())
	root.AddCommand(newInitCmd())
	root.AddCommand(newConfigCmd())
	root.AddCommand(newTokenCmd())
	root.AddCommand(newMonitorCmd())
	root.AddCommand(newVersionCmd())

	root.PersistentFlags().StringP("config", "c", "", "path to config file (default: ./wschat.json if present, else environment only)")

	return root
}
