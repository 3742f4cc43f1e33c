package tui

import (
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/san-kum/cmeode/internal/launcher"
)

func feed(t *testing.T, m model, msgs ...tea.Msg) model {
	t.Helper()
	for _, msg := range msgs {
		next, _ := m.Update(msg)
		var ok bool
		m, ok = next.(model)
		require.True(t, ok)
	}
	return m
}

func TestProgressTracksEvents(t *testing.T) {
	m := newModel(3, nil, nil)
	m = feed(t, m,
		eventMsg{Kind: launcher.MasterStarted, Label: "0"},
		eventMsg{Kind: launcher.MasterReady, Label: "0"},
		eventMsg{Kind: launcher.Started, Label: "1"},
		eventMsg{Kind: launcher.Started, Label: "2"},
		eventMsg{Kind: launcher.Started, Label: "10"},
		eventMsg{Kind: launcher.Finished, Label: "1", Runtime: 90 * time.Second},
		eventMsg{Kind: launcher.Failed, Label: "2", Err: errors.New("missing species \"M_atp_c\"")},
	)

	assert.Equal(t, launcher.MasterReady, m.master)
	running, finished, failed := m.counts()
	assert.Equal(t, 1, running)
	assert.Equal(t, 1, finished)
	assert.Equal(t, 1, failed)

	labels := make([]string, 0)
	for _, r := range m.sorted() {
		labels = append(labels, r.label)
	}
	assert.Equal(t, []string{"1", "2", "10"}, labels)

	view := m.View()
	assert.Contains(t, view, "rep 1")
	assert.Contains(t, view, "1.50 min")
	assert.Contains(t, view, "M_atp_c")
	assert.Contains(t, view, "2/3")
}

func TestQuitCancelsOnce(t *testing.T) {
	calls := 0
	m := newModel(1, nil, func() { calls++ })
	m = feed(t, m,
		tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")},
		tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")},
	)

	assert.Equal(t, 1, calls)
	assert.True(t, m.stopping)
	assert.True(t, strings.Contains(m.View(), "stopping"))
}

func TestDoneQuits(t *testing.T) {
	m := newModel(1, nil, nil)
	next, cmd := m.Update(DoneMsg{Summary: launcher.Summary{Total: 1, Successful: 1}})
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())

	final := next.(model)
	require.NotNil(t, final.done)
	assert.Equal(t, 1, final.done.Summary.Successful)
}

func TestWaitForEventClosed(t *testing.T) {
	ch := make(chan launcher.Event)
	close(ch)
	assert.Nil(t, waitForEvent(ch)())
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcd…", truncate("abcdefgh", 5))
}
