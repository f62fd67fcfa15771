package monitor

import (
	"fmt"
	"strings"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/uniseg"

	"github.com/dshills/delegate/internal/agent"
)

var (
	styleDefault  = tcell.StyleDefault
	styleHeader   = tcell.StyleDefault.Bold(true)
	styleSelected = tcell.StyleDefault.Reverse(true)
	styleDim      = tcell.StyleDefault.Dim(true)
)

// statusColor picks a color per status.
func statusColor(s agent.Status) tcell.Color {
	switch s {
	case agent.StatusPending:
		return tcell.ColorYellow
	case agent.StatusRunning:
		return tcell.ColorBlue
	case agent.StatusCompleted:
		return tcell.ColorGreen
	case agent.StatusFailed:
		return tcell.ColorRed
	case agent.StatusTimeout:
		return tcell.ColorOrange
	default:
		return tcell.ColorGray
	}
}

// Column layout: status, id, elapsed, instructions.
const (
	colStatus  = 0
	colID      = 12
	colElapsed = colID + shortIDLen + 2
	colInstr   = colElapsed + 10
)

func (m *Monitor) draw() {
	m.screen.Clear()
	width, height := m.screen.Size()

	sum := m.orch.Summary()
	header := fmt.Sprintf("delegate  %d running  %d pending  %d done  %d total",
		sum.Running, sum.Pending, sum.Completed+sum.Failed+sum.Cancelled+sum.Timeout, sum.Total)
	drawText(m.screen, 0, 0, width, header, styleHeader)

	drawText(m.screen, colStatus, 1, width, "STATUS", styleDim)
	drawText(m.screen, colID, 1, width, "ID", styleDim)
	drawText(m.screen, colElapsed, 1, width, "ELAPSED", styleDim)
	drawText(m.screen, colInstr, 1, width, "INSTRUCTIONS", styleDim)

	rows := height - 3
	first := 0
	if m.selected >= rows {
		first = m.selected - rows + 1
	}
	for i := first; i < len(m.tasks) && i-first < rows; i++ {
		m.drawRow(2+i-first, width, m.tasks[i], i == m.selected)
	}

	footer := "↑/↓ select  c cancel  x clear finished  q quit"
	if m.message != "" {
		footer = m.message
	}
	drawText(m.screen, 0, height-1, width, footer, styleDim)
	m.screen.Show()
}

func (m *Monitor) drawRow(y, width int, task agent.Task, selected bool) {
	base := styleDefault
	if selected {
		base = styleSelected
		for x := 0; x < width; x++ {
			m.screen.SetContent(x, y, ' ', nil, base)
		}
	}

	drawText(m.screen, colStatus, y, colID-1, m.title.String(string(task.Status)), base.Foreground(statusColor(task.Status)))
	drawText(m.screen, colID, y, colElapsed-1, shortID(task.ID), base)
	drawText(m.screen, colElapsed, y, colInstr-1, formatElapsed(m.elapsed(task)), base)

	instr := strings.Join(strings.Fields(task.Instructions), " ")
	drawText(m.screen, colInstr, y, width, instr, base)
}

// elapsed is the run time so far, or the queue time for pending tasks.
func (m *Monitor) elapsed(task agent.Task) time.Duration {
	switch {
	case !task.CompletedAt.IsZero() && !task.StartedAt.IsZero():
		return task.CompletedAt.Sub(task.StartedAt)
	case !task.StartedAt.IsZero():
		return m.now().Sub(task.StartedAt)
	case !task.CompletedAt.IsZero():
		return 0
	default:
		return m.now().Sub(task.CreatedAt)
	}
}

func formatElapsed(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	return d.Truncate(time.Second).String()
}

func shortID(id string) string {
	if len(id) <= shortIDLen {
		return id
	}
	return id[:shortIDLen]
}

// drawText writes s from x up to (not including) column limit, one
// grapheme cluster per cell run. Text past the limit is cut with "…".
func drawText(screen tcell.Screen, x, y, limit int, s string, style tcell.Style) {
	if uniseg.StringWidth(s) > limit-x && limit-x > 0 {
		limit--
		defer func() { screen.SetContent(limit, y, '…', nil, style) }()
	}
	g := uniseg.NewGraphemes(s)
	for g.Next() {
		w := g.Width()
		if x+w > limit {
			return
		}
		runes := g.Runes()
		screen.SetContent(x, y, runes[0], runes[1:], style)
		x += w
	}
}
