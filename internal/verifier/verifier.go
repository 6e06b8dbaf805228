package verifier

import (
	"fmt"
	"io"
	"os"
)

// Params are the inputs of one verification run.
type Params struct {
	// Directory holding per-consumer output files
	OutputDir string
	// Treat missing packages as a failure in addition to duplicates
	Strict bool
	// Report every unparseable line instead of just their count
	Verbose bool
}

// App bundles verification parameters with the writer the report goes to,
// so commands and tests can run it against a buffer.
type App struct {
	Params *Params
	Out    io.Writer
}

func New() *App {
	return &App{
		Params: &Params{},
		Out:    os.Stdout,
	}
}

// Verify analyzes every consumer output file in Params.OutputDir and writes
// the report to a.Out. It returns false if any package was processed more
// than once, or, in strict mode, if any package in the observed range is
// missing. An error means the analysis could not run at all.
func (a *App) Verify() (bool, error) {
	analysis, err := a.analyze()
	if err != nil {
		return false, err
	}
	a.render(analysis)

	passed := true
	if len(analysis.Duplicates) > 0 {
		passed = false
		fmt.Fprintf(a.Out, "FAIL: %d packages were processed more than once\n", len(analysis.Duplicates))
	}
	if a.Params.Strict && len(analysis.Missing) > 0 {
		passed = false
		fmt.Fprintf(a.Out, "FAIL: %d packages are missing\n", len(analysis.Missing))
	}
	if passed {
		fmt.Fprintf(a.Out, "OK: every processed package was processed exactly once\n")
	}
	return passed, nil
}
