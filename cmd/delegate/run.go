package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/dshills/delegate/internal/agent"
)

func newRunCmd(flags *globalFlags) *cobra.Command {
	var (
		input   string
		timeout time.Duration
		asJSON  bool
	)

	cmd := &cobra.Command{
		Use:   "run <instructions...>",
		Short: "Spawn one task and print its result",
		Long: `Spawn one task and wait for it. The result is printed to stdout and the
command exits 0 when the task completes, 1 otherwise.

Use --input - to read the task input from stdin.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if input == "-" {
				data, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return fmt.Errorf("read input: %w", err)
				}
				input = string(data)
			}

			eng, err := newEngine(ctx, flags, engineOptions{})
			if err != nil {
				return err
			}
			defer eng.close()

			return runOnce(ctx, eng.orch, agent.SpawnRequest{
				Instructions: strings.Join(args, " "),
				Input:        input,
				Timeout:      timeout,
			}, cmd.OutOrStdout(), asJSON)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&input, "input", "i", "", "task input, or - to read stdin")
	f.DurationVarP(&timeout, "timeout", "t", 0, "task timeout (default from config)")
	f.BoolVar(&asJSON, "json", false, "print the full result as JSON")
	return cmd
}

// runOnce spawns req and writes the outcome to out. A task that does not
// complete yields an exitError with code 1.
func runOnce(ctx context.Context, orch *agent.Orchestrator, req agent.SpawnRequest, out io.Writer, asJSON bool) error {
	res, err := orch.Spawn(ctx, req)
	if asJSON {
		if werr := writeJSON(out, res); werr != nil {
			return werr
		}
	} else if res.Success {
		fmt.Fprintln(out, res.Result)
	}
	if err != nil {
		return &exitError{code: 1, err: err}
	}
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
