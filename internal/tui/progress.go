// Package tui shows a live bubbletea view of a replicate batch.
package tui

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/san-kum/cmeode/internal/checkpoint"
	"github.com/san-kum/cmeode/internal/launcher"
	"github.com/san-kum/cmeode/internal/viz"
)

type eventMsg launcher.Event

// DoneMsg ends the view once the batch has returned.
type DoneMsg struct {
	Results []launcher.Result
	Summary launcher.Summary
	Err     error
}

type tickMsg time.Time

type replica struct {
	label   string
	kind    launcher.EventKind
	runtime time.Duration
	err     error
	started time.Time
}

type model struct {
	total    int
	events   <-chan launcher.Event
	cancel   context.CancelFunc
	master   launcher.EventKind
	replicas map[string]*replica
	started  time.Time
	now      time.Time
	frame    int
	stopping bool
	done     *DoneMsg
	width    int
}

func newModel(total int, events <-chan launcher.Event, cancel context.CancelFunc) model {
	now := time.Now()
	return model{
		total:    total,
		events:   events,
		cancel:   cancel,
		master:   launcher.MasterStarted,
		replicas: make(map[string]*replica),
		started:  now,
		now:      now,
		width:    80,
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(waitForEvent(m.events), tick())
}

func waitForEvent(ch <-chan launcher.Event) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-ch
		if !ok {
			return nil
		}
		return eventMsg(ev)
	}
}

func tick() tea.Cmd {
	return tea.Tick(100*time.Millisecond, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			if !m.stopping && m.cancel != nil {
				m.cancel()
			}
			m.stopping = true
		}
		return m, nil
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil
	case tickMsg:
		m.now = time.Time(msg)
		m.frame++
		return m, tick()
	case eventMsg:
		m.apply(launcher.Event(msg))
		return m, waitForEvent(m.events)
	case DoneMsg:
		m.done = &msg
		return m, tea.Quit
	}
	return m, nil
}

func (m *model) apply(ev launcher.Event) {
	if ev.Label == checkpoint.MasterLabel {
		m.master = ev.Kind
		return
	}
	r, ok := m.replicas[ev.Label]
	if !ok {
		r = &replica{label: ev.Label, started: m.now}
		m.replicas[ev.Label] = r
	}
	r.kind = ev.Kind
	r.runtime = ev.Runtime
	r.err = ev.Err
}

func (m model) counts() (running, finished, failed int) {
	for _, r := range m.replicas {
		switch r.kind {
		case launcher.Started:
			running++
		case launcher.Finished:
			finished++
		case launcher.Failed:
			failed++
		}
	}
	return running, finished, failed
}

func (m model) View() string {
	var sb strings.Builder

	sb.WriteString(viz.Title.Render("cmeode replicates"))
	sb.WriteString("  ")
	sb.WriteString(viz.Subtle.Render(fmt.Sprintf("elapsed %s", m.now.Sub(m.started).Round(time.Second))))
	sb.WriteString("\n\n")

	sb.WriteString(viz.Metric("master", viz.Status(m.master), 10))
	sb.WriteString("\n")

	running, finished, failed := m.counts()
	frac := 0.0
	if m.total > 0 {
		frac = float64(finished+failed) / float64(m.total)
	}
	sb.WriteString(viz.ProgressBar(frac, 40))
	sb.WriteString(fmt.Sprintf(" %d/%d", finished+failed, m.total))
	if running > 0 && m.done == nil {
		sb.WriteString(" " + viz.Spinner(m.frame))
	}
	sb.WriteString("\n\n")

	for _, r := range m.sorted() {
		line := fmt.Sprintf("  rep %-4s %s", r.label, viz.Status(r.kind))
		switch r.kind {
		case launcher.Started:
			line += viz.Subtle.Render(fmt.Sprintf("  %s", m.now.Sub(r.started).Round(time.Second)))
		case launcher.Finished:
			line += viz.Subtle.Render(fmt.Sprintf("  %.2f min", r.runtime.Minutes()))
		case launcher.Failed:
			line += viz.Subtle.Render("  " + truncate(errString(r.err), max(20, m.width-30)))
		}
		sb.WriteString(line)
		sb.WriteString("\n")
	}

	sb.WriteString("\n")
	switch {
	case m.stopping:
		sb.WriteString(viz.KeyHint.Render("stopping, waiting for running replicates..."))
	default:
		sb.WriteString(viz.KeyHint.Render("q stop"))
	}
	sb.WriteString("\n")
	return sb.String()
}

func (m model) sorted() []*replica {
	out := make([]*replica, 0, len(m.replicas))
	for _, r := range m.replicas {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		a, errA := strconv.Atoi(out[i].label)
		b, errB := strconv.Atoi(out[j].label)
		if errA == nil && errB == nil {
			return a < b
		}
		return out[i].label < out[j].label
	})
	return out
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

// Run shows the live view while run executes. run must send every event to
// events and close it before returning. Pressing q calls cancel and keeps
// the view open until run returns.
func Run(total int, events <-chan launcher.Event, cancel context.CancelFunc, run func() DoneMsg) (DoneMsg, error) {
	p := tea.NewProgram(newModel(total, events, cancel))
	go func() {
		p.Send(run())
	}()

	final, err := p.Run()
	if err != nil {
		return DoneMsg{}, err
	}
	m, ok := final.(model)
	if !ok || m.done == nil {
		return DoneMsg{}, fmt.Errorf("live view closed before the batch finished")
	}
	return *m.done, nil
}
