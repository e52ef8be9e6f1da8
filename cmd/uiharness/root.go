package main

import (
	"errors"
	"flag"
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

// Exit codes.
const (
	exitSuccess = 0 // every target passed
	exitFailure = 1 // at least one target failed
	exitUsage   = 2 // the suite or the command line is invalid
)

// exitError carries the exit code of a failed command.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }

func (e *exitError) Unwrap() error { return e.err }

func usageError(err error) error {
	return &exitError{code: exitUsage, err: err}
}

// exitCode returns the process exit code for the result of a command.
// Errors that carry no code come from cobra's argument and flag checks.
func exitCode(err error) int {
	if err == nil {
		return exitSuccess
	}
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	return exitUsage
}

func newRootCommand(out io.Writer) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "uiharness",
		Short:         "Run browser UI checks against several browsers",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.SetOut(out)
	cmd.PersistentFlags().AddGoFlagSet(flag.CommandLine)
	cmd.PersistentPreRunE = func(*cobra.Command, []string) error {
		// glog reads its settings from the go flag set.
		if err := flag.CommandLine.Parse(nil); err != nil {
			return usageError(fmt.Errorf("parsing log flags: %w", err))
		}
		return nil
	}

	cmd.AddCommand(newRunCommand())
	cmd.AddCommand(newFetchCommand())
	return cmd
}
