package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/dshills/delegate/internal/event"
	"github.com/dshills/delegate/internal/monitor"
	"github.com/dshills/delegate/internal/server"
)

// ErrNotTerminal is returned when --tui is requested without a terminal.
var ErrNotTerminal = errors.New("--tui requires stdout to be a terminal")

func newServeCmd(flags *globalFlags) *cobra.Command {
	var (
		addr string
		tui  bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API",
		Long: `Serve the task API over HTTP. With --tui, a live task monitor is shown in
the terminal; quitting the monitor stops the server. Logs are discarded in
that mode unless --log-file is set.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if tui && !term.IsTerminal(int(os.Stdout.Fd())) {
				return ErrNotTerminal
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			ctx, cancel := context.WithCancel(ctx)
			defer cancel()

			eng, err := newEngine(ctx, flags, engineOptions{quietLogs: tui})
			if err != nil {
				return err
			}
			defer eng.close()

			if addr == "" {
				addr = eng.cfg.Server.Addr
			}
			gin.SetMode(gin.ReleaseMode)
			srv := server.New(eng.orch,
				server.WithLogger(eng.logger),
				server.WithMetrics(eng.metrics, eng.registry),
				server.WithCorsOrigins(eng.cfg.Server.CorsOrigins),
				server.WithBaseContext(ctx),
			)

			if !tui {
				return srv.Run(ctx, addr)
			}

			mon, err := monitor.NewTerminal(eng.orch, monitor.WithLogger(eng.logger))
			if err != nil {
				return err
			}
			if _, err := eng.bus.Subscribe(event.TopicAllTasks, mon); err != nil {
				return err
			}

			errCh := make(chan error, 1)
			go func() {
				err := srv.Run(ctx, addr)
				if err != nil {
					cancel()
				}
				errCh <- err
			}()

			monErr := mon.Run(ctx)
			cancel()
			if err := <-errCh; err != nil {
				return err
			}
			return monErr
		},
	}

	f := cmd.Flags()
	f.StringVarP(&addr, "addr", "a", "", "listen address (default from config)")
	f.BoolVar(&tui, "tui", false, "show the live task monitor")
	return cmd
}
