package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	cmd := newRootCmd()
	cmd.SetArgs(normalizeArgs(os.Args[1:]))
	if err := cmd.Execute(); err != nil {
		os.Exit(exitCode(cmd, err, os.Stderr))
	}
}

// exitCode reports err once and maps it to the process status: 2 for
// usage problems, 1 for everything else (in practice a bind failure).
func exitCode(cmd *cobra.Command, err error, stderr io.Writer) int {
	var ue *usageError
	if errors.As(err, &ue) {
		fmt.Fprintf(stderr, "ERROR: %s\n\n", ue.msg)
		fmt.Fprint(stderr, cmd.UsageString())
		return 2
	}
	fmt.Fprintf(stderr, "ERROR: %v\n", err)
	return 1
}

// normalizeArgs accepts -? and /? as help switches.
func normalizeArgs(args []string) []string {
	out := make([]string, len(args))
	for i, a := range args {
		switch a {
		case "-?", "/?":
			out[i] = "--help"
		default:
			out[i] = a
		}
	}
	return out
}
