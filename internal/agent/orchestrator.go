package agent

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Orchestrator admits, runs, tracks and retires delegated tasks under a
// bounded concurrency policy.
//
// Thread-safety: all registry state is guarded by mu. Every transition
// re-checks the current status under the lock, so a late executor outcome
// can never overwrite a cancelled or timed out task.
type Orchestrator struct {
	mu sync.Mutex

	// tasks is the registry, keyed by task ID.
	tasks map[string]*Task

	// flights holds the cancel function of every active task.
	flights map[string]context.CancelCauseFunc

	// running counts tasks in StatusRunning.
	running int

	// admitted counts pending tasks that hold a concurrency slot.
	admitted int

	executor    Executor
	broadcaster Broadcaster

	// lanes serializes broadcasts per task, keyed by task ID.
	lanes map[string]*lane

	config   Config
	logger   zerolog.Logger
	recorder Recorder
	newID    func() string
	now      func() time.Time
}

// New creates an orchestrator with the given options.
func New(opts ...Option) *Orchestrator {
	o := &Orchestrator{
		tasks:    make(map[string]*Task),
		flights:  make(map[string]context.CancelCauseFunc),
		lanes:    make(map[string]*lane),
		config:   DefaultConfig(),
		logger:   zerolog.Nop(),
		recorder: nopRecorder{},
		newID:    newUUID,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Config returns the orchestrator limits.
func (o *Orchestrator) Config() Config {
	return o.config
}

// SetExecutor installs the executor.
func (o *Orchestrator) SetExecutor(e Executor) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.executor = e
}

// ClearExecutor removes the executor. Running tasks keep the executor they
// started with.
func (o *Orchestrator) ClearExecutor() {
	o.SetExecutor(nil)
}

// HasExecutor reports whether an executor is installed.
func (o *Orchestrator) HasExecutor() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.executor != nil
}

// SetBroadcaster installs the broadcaster.
func (o *Orchestrator) SetBroadcaster(b Broadcaster) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.broadcaster = b
}

// ClearBroadcaster removes the broadcaster.
func (o *Orchestrator) ClearBroadcaster() {
	o.SetBroadcaster(nil)
}

// HasBroadcaster reports whether a broadcaster is installed.
func (o *Orchestrator) HasBroadcaster() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.broadcaster != nil
}

// Spawn admits a task and blocks until it reaches a terminal state.
//
// The returned error is nil only for completed tasks. Otherwise it is an
// *Error matching one of the package sentinels; the Result carries the same
// information in structured form.
//
// Cancelling ctx while the task is active cancels the task.
func (o *Orchestrator) Spawn(ctx context.Context, req SpawnRequest) (Result, error) {
	_, done, err := o.Start(ctx, req)
	if err != nil {
		return rejectedResult(err), err
	}
	res := <-done
	return res, res.Err()
}

// Start admits a task and runs it in the background.
//
// Admission is synchronous: on success the pending snapshot is returned
// together with a channel that receives exactly one Result when the task
// finishes. ctx governs the execution; cancelling it cancels the task.
//
// Admission checks run in order: executor installed, concurrency ceiling,
// non-empty instructions. A rejected request creates no task.
func (o *Orchestrator) Start(ctx context.Context, req SpawnRequest) (Task, <-chan Result, error) {
	instructions := strings.TrimSpace(req.Instructions)

	o.mu.Lock()
	executor := o.executor
	if executor == nil {
		o.mu.Unlock()
		return Task{}, nil, o.reject(CodeNoExecutor)
	}
	if o.running+o.admitted >= o.config.MaxConcurrent {
		o.mu.Unlock()
		return Task{}, nil, o.reject(CodeConcurrencyLimit)
	}
	if instructions == "" {
		o.mu.Unlock()
		return Task{}, nil, o.reject(CodeInvalidInstructions)
	}

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = o.config.DefaultTimeout
	}

	task := &Task{
		ID:           o.newID(),
		Instructions: instructions,
		Input:        strings.TrimSpace(req.Input),
		Status:       StatusPending,
		Timeout:      timeout,
		CreatedAt:    o.now(),
	}
	execCtx, cancel := context.WithCancelCause(ctx)
	o.tasks[task.ID] = task
	o.flights[task.ID] = cancel
	l := &lane{}
	o.lanes[task.ID] = l
	o.admitted++
	snap := *task
	o.unlockAndBroadcast(snap)

	o.recorder.TaskAdmitted()
	o.logger.Debug().
		Str("task_id", snap.ID).
		Dur("timeout", timeout).
		Msg("task admitted")

	done := make(chan Result, 1)
	go func() {
		res := o.run(execCtx, cancel, executor, snap.ID)
		// The terminal snapshot may still be draining on another goroutine.
		o.flush(l, true)
		done <- res
	}()
	return snap, done, nil
}

func (o *Orchestrator) reject(code ErrorCode) error {
	o.recorder.TaskRejected(code)
	o.logger.Debug().Str("code", string(code)).Msg("spawn rejected")
	return newError(code, "")
}

// execOutcome carries the executor's return values across the race.
type execOutcome struct {
	result string
	err    error
}

// run drives a task from pending to a terminal state.
func (o *Orchestrator) run(ctx context.Context, cancel context.CancelCauseFunc, executor Executor, id string) Result {
	defer cancel(nil)

	if ctx.Err() != nil {
		o.Cancel(id)
	}

	o.mu.Lock()
	task, ok := o.tasks[id]
	if !ok {
		o.mu.Unlock()
		return clearedResult(id)
	}
	if task.Status != StatusPending {
		snap := *task
		o.mu.Unlock()
		return resultOf(snap)
	}
	o.admitted--
	o.running++
	task.Status = StatusRunning
	task.StartedAt = o.now()
	snap := *task
	running := o.running
	o.unlockAndBroadcast(snap)
	o.recorder.TaskStarted(running)

	outcome := make(chan execOutcome, 1)
	go func() {
		outcome <- o.invoke(ctx, executor, snap)
	}()

	timer := time.NewTimer(snap.Timeout)
	defer timer.Stop()

	select {
	case out := <-outcome:
		if out.err != nil {
			if ctx.Err() != nil {
				return o.abort(ctx, id)
			}
			return o.finish(id, StatusFailed, "", failureMessage(out.err))
		}
		return o.finish(id, StatusCompleted, out.result, "")

	case <-timer.C:
		cancel(ErrExecutionTimeout)
		return o.finish(id, StatusTimeout, "", timeoutMessage)

	case <-ctx.Done():
		// Cancel and ClearAll have already updated the registry; only an
		// ended caller context still needs the transition.
		return o.abort(ctx, id)
	}
}

// abort finishes a task whose context ended. A passed caller deadline is a
// timeout; anything else is a cancellation.
func (o *Orchestrator) abort(ctx context.Context, id string) Result {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return o.finish(id, StatusTimeout, "", timeoutMessage)
	}
	return o.finish(id, StatusCancelled, "", cancelMessage)
}

// invoke calls the executor, converting panics into errors.
func (o *Orchestrator) invoke(ctx context.Context, executor Executor, task Task) (out execOutcome) {
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error().
				Str("task_id", task.ID).
				Interface("panic", r).
				Msg("executor panicked")
			out = execOutcome{err: fmt.Errorf("executor panic: %v", r)}
		}
	}()
	result, err := executor.Execute(ctx, task)
	return execOutcome{result: result, err: err}
}

// finish applies a terminal transition to a running task.
func (o *Orchestrator) finish(id string, status Status, result, message string) Result {
	o.mu.Lock()
	task, ok := o.tasks[id]
	if !ok {
		o.mu.Unlock()
		o.logger.Debug().Str("task_id", id).Msg("outcome for cleared task discarded")
		return clearedResult(id)
	}
	if task.Status != StatusRunning {
		snap := *task
		o.mu.Unlock()
		o.logger.Debug().
			Str("task_id", id).
			Str("status", string(snap.Status)).
			Str("discarded", string(status)).
			Msg("stale outcome discarded")
		return resultOf(snap)
	}

	o.running--
	delete(o.flights, id)
	task.Status = status
	task.CompletedAt = o.now()
	task.Result = result
	task.Error = message
	snap := *task
	running := o.running
	o.unlockAndBroadcast(snap)

	o.recorder.TaskFinished(status, snap.Duration(), running)
	o.logFinished(snap)
	return resultOf(snap)
}

func (o *Orchestrator) logFinished(task Task) {
	ev := o.logger.Info()
	if task.Status == StatusFailed {
		ev = o.logger.Warn()
	}
	ev.Str("task_id", task.ID).
		Str("status", string(task.Status)).
		Dur("duration", task.Duration()).
		Str("error", task.Error).
		Msg("task finished")
}

// Cancel cancels a pending or running task. It returns false if the task
// does not exist or is already terminal.
//
// The executor's context is cancelled; whatever the executor returns later
// is discarded.
func (o *Orchestrator) Cancel(id string) bool {
	o.mu.Lock()
	task, ok := o.tasks[id]
	if !ok || !task.Status.IsActive() {
		o.mu.Unlock()
		return false
	}

	if task.Status == StatusRunning {
		o.running--
	} else {
		o.admitted--
	}
	if cancel, ok := o.flights[id]; ok {
		cancel(ErrCancelled)
		delete(o.flights, id)
	}
	task.Status = StatusCancelled
	task.CompletedAt = o.now()
	task.Error = cancelMessage
	snap := *task
	running := o.running
	o.unlockAndBroadcast(snap)

	o.recorder.TaskFinished(StatusCancelled, snap.Duration(), running)
	o.logFinished(snap)
	return true
}

// CancelAll cancels every active task and returns how many were cancelled.
func (o *Orchestrator) CancelAll() int {
	o.mu.Lock()
	ids := make([]string, 0, len(o.flights))
	for id := range o.flights {
		ids = append(ids, id)
	}
	o.mu.Unlock()

	count := 0
	for _, id := range ids {
		if o.Cancel(id) {
			count++
		}
	}
	return count
}

// Get returns a snapshot of the task with the given ID.
func (o *Orchestrator) Get(id string) (Task, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	task, ok := o.tasks[id]
	if !ok {
		return Task{}, false
	}
	return *task, true
}

// List returns snapshots of all tasks ordered by creation time.
func (o *Orchestrator) List() []Task {
	return o.collect(func(Task) bool { return true })
}

// ListByStatus returns snapshots of the tasks in the given status.
func (o *Orchestrator) ListByStatus(status Status) []Task {
	return o.collect(func(t Task) bool { return t.Status == status })
}

func (o *Orchestrator) collect(keep func(Task) bool) []Task {
	o.mu.Lock()
	result := make([]Task, 0, len(o.tasks))
	for _, task := range o.tasks {
		if keep(*task) {
			result = append(result, *task)
		}
	}
	o.mu.Unlock()

	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.Before(result[j].CreatedAt)
		}
		return result[i].ID < result[j].ID
	})
	return result
}

// Summary counts tasks per status by scanning the registry.
func (o *Orchestrator) Summary() Summary {
	o.mu.Lock()
	defer o.mu.Unlock()

	var s Summary
	for _, task := range o.tasks {
		s.add(task.Status)
	}
	return s
}

// Running returns the number of running tasks.
func (o *Orchestrator) Running() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.running
}

// Len returns the registry size.
func (o *Orchestrator) Len() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.tasks)
}

// ClearFinished removes every terminal task and returns how many were
// removed. Active tasks are untouched.
func (o *Orchestrator) ClearFinished() int {
	o.mu.Lock()
	defer o.mu.Unlock()

	count := 0
	for id, task := range o.tasks {
		if task.Status.IsTerminal() {
			delete(o.tasks, id)
			delete(o.lanes, id)
			count++
		}
	}
	return count
}

// ClearAll empties the registry and resets the running counter, even while
// tasks are executing. Orphaned executions have their context cancelled;
// their outcomes are neither recorded nor broadcast, and blocked Spawn
// callers receive ErrRegistryCleared.
func (o *Orchestrator) ClearAll() {
	o.mu.Lock()
	flights := o.flights
	orphaned := len(flights)
	o.tasks = make(map[string]*Task)
	o.flights = make(map[string]context.CancelCauseFunc)
	o.lanes = make(map[string]*lane)
	o.running = 0
	o.admitted = 0
	o.mu.Unlock()

	for _, cancel := range flights {
		cancel(ErrRegistryCleared)
	}
	o.logger.Info().Int("orphaned", orphaned).Msg("task registry cleared")
}

// lane orders the broadcasts of one task. Different tasks broadcast
// independently.
type lane struct {
	// emit is held by the goroutine currently draining queue.
	emit sync.Mutex

	// queue is guarded by Orchestrator.mu.
	queue []Task
}

// unlockAndBroadcast queues snap on its task's lane, releases mu and drains
// the lane. Must be called with mu held.
func (o *Orchestrator) unlockAndBroadcast(snap Task) {
	l := o.lanes[snap.ID]
	if l == nil {
		o.mu.Unlock()
		return
	}
	l.queue = append(l.queue, snap)
	o.mu.Unlock()
	o.flush(l, false)
}

// flush delivers the snapshots queued on l in order. If another goroutine is
// already draining l, flush returns at once unless wait is set, in which case
// it blocks until the lane is empty.
func (o *Orchestrator) flush(l *lane, wait bool) {
	for {
		if wait {
			l.emit.Lock()
		} else if !l.emit.TryLock() {
			return
		}
		for {
			o.mu.Lock()
			if len(l.queue) == 0 {
				o.mu.Unlock()
				break
			}
			snap := l.queue[0]
			l.queue = l.queue[1:]
			b := o.broadcaster
			o.mu.Unlock()

			if b != nil {
				o.deliver(b, snap)
			}
		}
		l.emit.Unlock()

		// A snapshot queued between the empty check and Unlock would
		// otherwise be stranded.
		o.mu.Lock()
		empty := len(l.queue) == 0
		o.mu.Unlock()
		if empty {
			return
		}
	}
}

func (o *Orchestrator) deliver(b Broadcaster, snap Task) {
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error().
				Str("task_id", snap.ID).
				Str("status", string(snap.Status)).
				Interface("panic", r).
				Msg("broadcaster panicked")
		}
	}()
	b.Broadcast(snap)
}

func failureMessage(err error) string {
	if msg := err.Error(); msg != "" {
		return msg
	}
	return ErrExecutionFailed.Error()
}

// resultOf converts a terminal snapshot into a Result.
func resultOf(task Task) Result {
	res := Result{
		TaskID: task.ID,
		Status: task.Status,
		Result: task.Result,
		Error:  task.Error,
	}
	switch task.Status {
	case StatusCompleted:
		res.Success = true
	case StatusFailed:
		res.Code = CodeExecutionFailure
	case StatusTimeout:
		res.Code = CodeExecutionTimeout
		res.TimedOut = true
	case StatusCancelled:
		res.Code = CodeCancelled
	}
	return res
}

func clearedResult(id string) Result {
	return Result{
		TaskID: id,
		Error:  ErrRegistryCleared.Error(),
		Code:   CodeRegistryCleared,
	}
}

func rejectedResult(err error) Result {
	res := Result{Error: err.Error()}
	if e, ok := err.(*Error); ok {
		res.Code = e.Code
		res.Error = e.Message
	}
	return res
}

// Err returns the structured error for a non-successful result.
func (r Result) Err() error {
	if r.Success || r.Code == "" {
		return nil
	}
	return &Error{Code: r.Code, TaskID: r.TaskID, Message: r.Error}
}
