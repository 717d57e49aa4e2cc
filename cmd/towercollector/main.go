// Command towercollector manages a local database of cell tower
// measurements and uploads it to OpenCellID.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/rshade/towercollector/internal/cli"
	"github.com/rshade/towercollector/pkg/version"
)

func main() {
	os.Exit(extractExitCode(run()))
}

func run() error {
	return cli.NewRootCmd(version.GetVersion()).Execute()
}

// extractExitCode maps err to the process exit status. Errors other than
// cli.ResultExitError are printed.
func extractExitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *cli.ResultExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode
	}
	_, _ = fmt.Fprintln(os.Stderr, "Error:", err)
	return 1
}
