package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var (
	apiURL   string
	stateDir string
	verbose  bool
)

var rootCmd = &cobra.Command{
	Use:   "notekeeper-cli",
	Short: "Command-line client for notekeeper",
	Long: `Sign in to a notekeeper service and read or edit notes from the terminal.

The session is kept in a bbolt file under NOTEKEEPER_STATE_DIR and survives
between runs until you log out or it is revoked on the server.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		var shown *reportedError
		if !errors.As(err, &shown) {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		os.Exit(1) //nolint:forbidigo // CLI exit code
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&apiURL, "api-url", "", "API base URL (overrides NOTEKEEPER_API_URL)")
	rootCmd.PersistentFlags().StringVar(&stateDir, "state-dir", "", "directory for the session file (overrides NOTEKEEPER_STATE_DIR)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log debug output to stderr")
}

// reportedError marks a failure the notifier already printed.
type reportedError struct{ err error }

func (e *reportedError) Error() string { return e.err.Error() }

func (e *reportedError) Unwrap() error { return e.err }

func reported(err error) error {
	if err == nil {
		return nil
	}
	return &reportedError{err: err}
}
