// Package main is the entry point for the delegate task engine.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information (set via ldflags during build).
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// exitError carries a process exit code without printing usage.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func main() {
	os.Exit(run())
}

func run() int {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		var exit *exitError
		if errors.As(err, &exit) {
			return exit.code
		}
		return 1
	}
	return 0
}

// globalFlags are shared by every subcommand.
type globalFlags struct {
	configPath string
	executor   string
	logLevel   string
	logFile    string
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}

	root := &cobra.Command{
		Use:   "delegate",
		Short: "Run delegated sub-agent tasks with bounded concurrency",
		Long: `delegate runs units of work ("tasks") through a pluggable executor,
bounding how many run at once and enforcing a timeout per task.

Tasks can be spawned once from the command line (run), by a host process
over newline-delimited JSON on stdin/stdout (bridge), or over HTTP (serve).`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&flags.configPath, "config", "c", "", "path to TOML configuration file")
	pf.StringVarP(&flags.executor, "executor", "e", "", "executor kind (echo, lua, shell, anthropic, openai, gemini)")
	pf.StringVar(&flags.logLevel, "log-level", "", "log level (trace, debug, info, warn, error, disabled)")
	pf.StringVar(&flags.logFile, "log-file", "", "write logs to this file instead of stderr")

	root.AddCommand(
		newRunCmd(flags),
		newBridgeCmd(flags),
		newServeCmd(flags),
		newVersionCmd(),
	)
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "delegate %s (commit %s, built %s)\n", version, commit, date)
		},
	}
}
