package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"

	"github.com/dshills/delegate/internal/agent"
	"github.com/dshills/delegate/internal/config"
	"github.com/dshills/delegate/internal/event"
	"github.com/dshills/delegate/internal/executor"
	"github.com/dshills/delegate/internal/logging"
	"github.com/dshills/delegate/internal/observability"
)

// busCloseTimeout bounds draining async subscribers on shutdown.
const busCloseTimeout = 2 * time.Second

// engine holds the wired components shared by the subcommands.
type engine struct {
	cfg      config.Config
	logger   zerolog.Logger
	bus      *event.Bus
	registry *prometheus.Registry
	metrics  *observability.Metrics
	executor agent.Executor
	orch     *agent.Orchestrator

	logFile *os.File
}

// engineOptions adjusts wiring per subcommand.
type engineOptions struct {
	// quietLogs discards logs unless a log file was given.
	quietLogs bool
}

// newEngine loads configuration and wires the orchestrator. ctx bounds
// background work started by the executor.
func newEngine(ctx context.Context, flags *globalFlags, opts engineOptions) (*engine, error) {
	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return nil, err
	}
	if flags.executor != "" {
		cfg.Executor.Kind = flags.executor
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}

	e := &engine{cfg: cfg}
	if err := e.initLogger(flags, opts); err != nil {
		return nil, err
	}

	e.registry = prometheus.NewRegistry()
	e.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	if e.metrics, err = observability.NewMetrics(e.registry); err != nil {
		e.close()
		return nil, fmt.Errorf("register metrics: %w", err)
	}

	e.bus = event.NewBus(event.WithLogger(e.logger))
	if _, err := e.bus.SubscribeFunc(event.TopicAllTasks, e.logTransition, event.Async()); err != nil {
		e.close()
		return nil, err
	}

	if e.executor, err = executor.New(ctx, cfg.Executor, e.logger); err != nil {
		e.close()
		return nil, fmt.Errorf("create %s executor: %w", cfg.Executor.Kind, err)
	}

	e.orch = agent.New(
		agent.WithConfig(agent.Config{
			MaxConcurrent:  cfg.Orchestrator.MaxConcurrent,
			DefaultTimeout: cfg.Orchestrator.DefaultTimeout.Std(),
		}),
		agent.WithExecutor(e.executor),
		agent.WithBroadcaster(e.bus),
		agent.WithRecorder(e.metrics),
		agent.WithLogger(e.logger),
	)

	e.logger.Debug().
		Str("executor", cfg.Executor.Kind).
		Int("max_concurrent", cfg.Orchestrator.MaxConcurrent).
		Dur("default_timeout", cfg.Orchestrator.DefaultTimeout.Std()).
		Msg("engine ready")
	return e, nil
}

func (e *engine) initLogger(flags *globalFlags, opts engineOptions) error {
	lc := logging.DefaultConfig(logging.ProfileRuntime)
	if lvl, ok := logging.ParseLevel(e.cfg.Log.Level); ok {
		lc.Level = lvl
	}
	lc.Format = e.cfg.Log.Format
	lc.NoColor = e.cfg.Log.NoColor
	logging.ApplyEnv(&lc)

	if flags.logLevel != "" {
		lvl, ok := logging.ParseLevel(flags.logLevel)
		if !ok {
			return fmt.Errorf("invalid --log-level %q", flags.logLevel)
		}
		lc.Level = lvl
	}

	switch {
	case flags.logFile != "":
		f, err := os.OpenFile(flags.logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		e.logFile = f
		lc.Output = f
		lc.NoColor = true
	case opts.quietLogs:
		lc.Output = io.Discard
	}

	e.logger = logging.New(lc)
	return nil
}

// logTransition records every task change at debug level.
func (e *engine) logTransition(_ context.Context, ev event.Event) error {
	e.logger.Debug().
		Str("topic", string(ev.Topic)).
		Str("task_id", ev.Task.ID).
		Msg("task changed")
	return nil
}

// close cancels remaining tasks and releases resources.
func (e *engine) close() {
	if e.orch != nil {
		if n := e.orch.CancelAll(); n > 0 {
			e.logger.Info().Int("cancelled", n).Msg("cancelled active tasks on shutdown")
		}
	}
	if e.executor != nil {
		if err := executor.Close(e.executor); err != nil {
			e.logger.Warn().Err(err).Msg("close executor")
		}
	}
	if e.bus != nil {
		ctx, cancel := context.WithTimeout(context.Background(), busCloseTimeout)
		defer cancel()
		if err := e.bus.Close(ctx); err != nil {
			e.logger.Warn().Err(err).Msg("close event bus")
		}
	}
	if e.logFile != nil {
		_ = e.logFile.Close()
	}
}
