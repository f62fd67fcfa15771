package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dshills/delegate/internal/bridge"
	"github.com/dshills/delegate/internal/event"
)

func newBridgeCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "bridge",
		Short: "Serve JSON-lines requests on stdin/stdout",
		Long: `Serve a host process over newline-delimited JSON. Requests are read from
stdin; responses and task change notifications are written to stdout.
Logs go to stderr or --log-file.

The bridge exits when stdin closes. Tasks still running are cancelled.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			eng, err := newEngine(ctx, flags, engineOptions{})
			if err != nil {
				return err
			}
			defer eng.close()

			srv := bridge.New(eng.orch, cmd.OutOrStdout(), eng.logger)
			// Synchronous delivery keeps task lines in transition order.
			if _, err := eng.bus.Subscribe(event.TopicAllTasks, srv); err != nil {
				return err
			}

			eng.logger.Info().Msg("bridge ready")
			return srv.Serve(ctx, cmd.InOrStdin())
		},
	}
}
