// Package monitor renders a live terminal view of the orchestrator's tasks.
//
// The view lists every task with its status, short ID, elapsed time and
// instructions. Keys:
//
//	↑/↓ or k/j  move the selection
//	c           cancel the selected task
//	x           clear finished tasks
//	q, Esc      quit
//
// The monitor redraws whenever it handles a bus event and once a second
// while tasks are running.
package monitor

import (
	"context"
	"fmt"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rs/zerolog"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/dshills/delegate/internal/agent"
	"github.com/dshills/delegate/internal/event"
)

// TickInterval is how often elapsed times refresh while tasks run.
const TickInterval = time.Second

// shortIDLen is the number of ID characters shown per row.
const shortIDLen = 8

// Monitor draws the task table on a tcell screen.
//
// All drawing happens on the goroutine running Run; Handle only wakes it.
type Monitor struct {
	orch   *agent.Orchestrator
	screen tcell.Screen
	logger zerolog.Logger
	title  cases.Caser
	now    func() time.Time

	tasks    []agent.Task
	selected int
	message  string
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(m *Monitor) {
		m.logger = l
	}
}

// New creates a monitor drawing on screen. The screen is initialized by Run.
func New(orch *agent.Orchestrator, screen tcell.Screen, opts ...Option) *Monitor {
	m := &Monitor{
		orch:   orch,
		screen: screen,
		logger: zerolog.Nop(),
		title:  cases.Title(language.English),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.With().Str("component", "monitor").Logger()
	return m
}

// NewTerminal creates a monitor on the process terminal.
func NewTerminal(orch *agent.Orchestrator, opts ...Option) (*Monitor, error) {
	screen, err := tcell.NewScreen()
	if err != nil {
		return nil, fmt.Errorf("open terminal: %w", err)
	}
	return New(orch, screen, opts...), nil
}

// Handle wakes the draw loop. It never blocks, so the monitor can be
// subscribed synchronously. A wakeup dropped on a full queue is covered by
// the next one.
func (m *Monitor) Handle(_ context.Context, ev event.Event) error {
	_ = m.screen.PostEvent(tcell.NewEventInterrupt(ev.Task.ID))
	return nil
}

// Run initializes the screen and draws until ctx ends or the user quits.
// The screen is restored before Run returns.
func (m *Monitor) Run(ctx context.Context) error {
	if err := m.screen.Init(); err != nil {
		return fmt.Errorf("init screen: %w", err)
	}
	defer m.screen.Fini()
	m.screen.HideCursor()

	stop := make(chan struct{})
	defer close(stop)
	go m.pump(ctx, stop)

	m.refresh()
	m.draw()
	for {
		switch ev := m.screen.PollEvent().(type) {
		case nil:
			return nil
		case *tcell.EventResize:
			m.screen.Sync()
		case *tcell.EventKey:
			if m.handleKey(ev) {
				return nil
			}
		case *tcell.EventInterrupt:
			if ev.Data() == quitEvent {
				return nil
			}
		}
		m.refresh()
		m.draw()
	}
}

type quitSignal struct{}

var quitEvent = quitSignal{}

// pump posts ticks while tasks run and a quit event when ctx ends.
func (m *Monitor) pump(ctx context.Context, stop <-chan struct{}) {
	ticker := time.NewTicker(TickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			_ = m.screen.PostEvent(tcell.NewEventInterrupt(quitEvent))
			return
		case <-stop:
			return
		case <-ticker.C:
			if m.orch.Running() > 0 {
				_ = m.screen.PostEvent(tcell.NewEventInterrupt(nil))
			}
		}
	}
}

// refresh reloads the task list and clamps the selection.
func (m *Monitor) refresh() {
	m.tasks = m.orch.List()
	m.selected = max(0, min(m.selected, len(m.tasks)-1))
}

// handleKey applies a key press and reports whether to quit.
func (m *Monitor) handleKey(ev *tcell.EventKey) bool {
	switch ev.Key() {
	case tcell.KeyEscape, tcell.KeyCtrlC:
		return true
	case tcell.KeyUp:
		m.move(-1)
	case tcell.KeyDown:
		m.move(1)
	case tcell.KeyRune:
		switch ev.Rune() {
		case 'q':
			return true
		case 'k':
			m.move(-1)
		case 'j':
			m.move(1)
		case 'c':
			m.cancelSelected()
		case 'x':
			n := m.orch.ClearFinished()
			m.message = fmt.Sprintf("cleared %d finished", n)
		}
	}
	return false
}

func (m *Monitor) move(delta int) {
	m.selected = max(0, min(m.selected+delta, len(m.tasks)-1))
	m.message = ""
}

func (m *Monitor) cancelSelected() {
	if m.selected >= len(m.tasks) {
		return
	}
	id := m.tasks[m.selected].ID
	if m.orch.Cancel(id) {
		m.message = "cancelled " + shortID(id)
		m.logger.Debug().Str("task_id", id).Msg("cancelled from monitor")
	} else {
		m.message = shortID(id) + " is not active"
	}
}
