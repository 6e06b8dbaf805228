package main

import (
	"os"

	"github.com/conveyorproject/conveyor/cmd/conveyorctl/cmd"
	"github.com/conveyorproject/conveyor/internal/common"
)

func main() {
	common.ConfigureCommandLineLogging()
	if err := cmd.RootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
