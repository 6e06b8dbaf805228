package cmd

import (
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/conveyorproject/conveyor/internal/verifier"
)

func verifyCmd() *cobra.Command {
	a := verifier.New()
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Check consumer output files for duplicate or missing packages",
		Long: `Reads every consumer output file in the output directory and reports how often
each package was processed. Exits 1 if any package was processed more than once
(or, with --strict, if any package in the observed range was never processed)
and 2 if the output directory could not be analyzed at all.`,
		Run: func(cmd *cobra.Command, args []string) {
			passed, err := a.Verify()
			if err != nil {
				log.Error(err)
				os.Exit(2)
			}
			if !passed {
				os.Exit(1)
			}
		},
	}
	cmd.Flags().StringVar(&a.Params.OutputDir, "output-dir", "consumer_output", "Directory containing consumer output files")
	cmd.Flags().BoolVar(&a.Params.Strict, "strict", false, "Treat missing packages as a failure")
	cmd.Flags().BoolVar(&a.Params.Verbose, "verbose", false, "Report every parse warning individually")
	return cmd
}
