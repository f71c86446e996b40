// Package cli implements the command-line interface
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// NewRoot builds the root command
func NewRoot() *cobra.Command {
	root := &cobra.Command{
		Use:           "explorl",
		Short:         "Asynchronous actor-learner training with intrinsic exploration bonuses",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newTrain())
	return root
}

// Execute runs the CLI and exits non-zero on error
func Execute() {
	if err := NewRoot().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
