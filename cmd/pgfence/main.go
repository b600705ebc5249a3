// pgfence is a static safety analyzer for PostgreSQL schema migrations:
// it reports the lock each DDL statement takes, a calibrated risk level,
// migration-wide policy violations, and concrete safe-rewrite recipes.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "0.3.1"

// Exit codes: 0 success, 1 CI gate failure, 2 fatal error.
const (
	exitOK    = 0
	exitCI    = 1
	exitFatal = 2
)

// errCIGate marks a CI-gate failure so main can distinguish it from
// fatal errors.
var errCIGate = errors.New("risk ceiling exceeded")

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	cmd := buildRootCommand()
	cmd.SetArgs(args)

	if err := cmd.Execute(); err != nil {
		if errors.Is(err, errCIGate) {
			return exitCI
		}
		fmt.Fprintf(os.Stderr, "pgfence: %v\n", err)
		return exitFatal
	}
	return exitOK
}

func buildRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "pgfence",
		Short:         "Static safety analyzer for PostgreSQL schema migrations",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(buildAnalyzeCommand())
	return root
}
