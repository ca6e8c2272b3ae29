package cmd

import (
	"io"
	"runtime"

	"grimm.is/converge/internal/brand"
)

// RunVersion prints build information.
func RunVersion(w io.Writer) {
	Printer.Fprintf(w, "%s %s (commit %s, built %s, %s)\n",
		brand.BinaryName, brand.Version, brand.GitCommit, brand.BuildTime, runtime.Version())
}
