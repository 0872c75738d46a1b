// Package cliutil provides small helpers shared by every kibo subcommand:
// consistent error and warning output, and the Mainify wrapper that lets a
// Cobra command return an error instead of calling os.Exit directly.
package cliutil

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

// Warning prints a warning message to standard error.
func Warning(message string) {
	fmt.Fprintln(color.Error, color.YellowString("Warning:"), message)
}

// Error prints an error message to standard error.
func Error(err error) {
	fmt.Fprintln(os.Stderr, color.RedString("Error:"), err)
}

// Fatal prints an error message to standard error and terminates the
// process with a non-zero exit code.
func Fatal(err error) {
	Error(err)
	os.Exit(1)
}

// Mainify wraps a RunE-style entry point (returning an error) into a Run
// function, so commands can rely on their own defer-based cleanup instead of
// Cobra calling os.Exit on their behalf.
func Mainify(entry func(*cobra.Command, []string) error) func(*cobra.Command, []string) {
	return func(command *cobra.Command, arguments []string) {
		if err := entry(command, arguments); err != nil {
			Fatal(err)
		}
	}
}
