package commands

import (
	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "catalogsync",
		Short:         "Live catalog sync client for the video catalog backend",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	rootCmd.AddCommand(
		NewServeCommand(),
		NewBrowseCommand(),
		NewWatchCommand(),
		NewLoginCommand(),
		NewLogoutCommand(),
	)

	return rootCmd
}
