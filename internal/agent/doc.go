// Package agent provides the sub-agent task orchestrator.
//
// The orchestrator lets an interactive host delegate discrete units of work
// ("tasks") to an injected Executor while enforcing a concurrency ceiling,
// per-task timeouts, cancellation, and live status reporting through an
// injected Broadcaster.
//
// # Architecture
//
//	┌─────────────────────────────────────────────────────────────────┐
//	│                       Orchestrator                              │
//	│  - Admission control (executor, ceiling, instructions)          │
//	│  - Task registry keyed by ID                                    │
//	│  - Execution race: executor vs timer vs cancellation            │
//	│  - Broadcast of every state transition                          │
//	└─────────────────────────────────────────────────────────────────┘
//	          │                                   │
//	          ▼                                   ▼
//	┌──────────────────────┐           ┌──────────────────────────┐
//	│      Executor        │           │       Broadcaster        │
//	│  performs the work   │           │  mirrors state to a UI   │
//	└──────────────────────┘           └──────────────────────────┘
//
// # Task Lifecycle
//
// Tasks transition through states:
//
//   - pending: admitted, not yet started
//   - running: the Executor has been invoked
//   - completed: the Executor returned a result
//   - failed: the Executor returned an error or panicked
//   - cancelled: Cancel was requested while pending or running
//   - timeout: the Executor did not finish within the task timeout
//
// The last four are terminal. No transition leaves a terminal state, and a
// late Executor outcome for a cancelled or timed out task is discarded.
//
// # Usage
//
//	orch := agent.New(
//	    agent.WithMaxConcurrent(3),
//	    agent.WithExecutor(agent.ExecutorFunc(func(ctx context.Context, t agent.Task) (string, error) {
//	        return "done", nil
//	    })),
//	)
//
//	res, err := orch.Spawn(ctx, agent.SpawnRequest{Instructions: "summarize the diff"})
//	if errors.Is(err, agent.ErrExecutionTimeout) {
//	    // retry with a longer timeout
//	}
//
// # Cancellation
//
// Cancel marks a task cancelled and cancels the context passed to the
// Executor. Executors that honor their context stop early; the orchestrator
// never waits for them once the task is terminal.
package agent
