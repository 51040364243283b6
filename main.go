package main

import (
	"fmt"
	"io"
	"os"

	"go_batchgen/core"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func main() {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		// logger isn't initialized yet
		fmt.Fprintf(os.Stderr, "Warning: .env file not found: %v\n", err)
	}

	os.Exit(execute(os.Args[1:], os.Stdout, os.Stderr))
}

// execute runs the command tree and maps the outcome to a process exit code.
func execute(args []string, stdout, stderr io.Writer) int {
	state := &cliState{exitCode: core.ExitCodeSuccess}
	root := newRootCommand(state)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.Execute()
	state.close()

	if err != nil {
		printError(stderr, err)
		return core.ExitCodeError
	}
	return state.exitCode
}

// cliState is shared by the commands of one invocation.
type cliState struct {
	app      *app
	exitCode int
}

func (s *cliState) close() {
	if s.app != nil {
		s.app.close()
	}
}

func newRootCommand(state *cliState) *cobra.Command {
	root := &cobra.Command{
		Use:           "batchgen",
		Short:         "Batch image generation with rotating credentials",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			state.app = a
			return nil
		},
	}

	root.AddCommand(
		newRunCommand(state),
		newCheckCommand(state),
		newTokensCommand(state),
		newPromptsCommand(state),
		newHistoryCommand(state),
	)
	return root
}
