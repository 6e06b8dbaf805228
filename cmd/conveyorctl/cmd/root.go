package cmd

import (
	"github.com/spf13/cobra"
)

// RootCmd is the root Cobra command that gets called from the main func.
// All other sub-commands should be registered here.
func RootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "conveyorctl",
		Short: "conveyorctl inspects the conveyor work queue from the outside.",
	}

	cmd.AddCommand(
		verifyCmd(),
	)

	return cmd
}
