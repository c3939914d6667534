package ui

import (
	"context"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/mattn/go-runewidth"
	"github.com/stretchr/testify/require"

	"github.com/CursiveCrow/spectest/internal/discovery"
	"github.com/CursiveCrow/spectest/internal/harness"
	"github.com/CursiveCrow/spectest/pkg/outcome"
)

func TestChannelSink(t *testing.T) {
	ch := make(chan Event, 2)
	sink := ChannelSink{Ch: ch}
	tc := discovery.TestCase{Name: "ui/a.cursive"}

	sink.TestStarted(tc)
	sink.TestFinished(harness.Outcome{Test: tc, Kind: outcome.Fail})

	started := <-ch
	require.Equal(t, "ui/a.cursive", started.Test.Name)
	require.Nil(t, started.Outcome)

	finished := <-ch
	require.NotNil(t, finished.Outcome)
	require.Equal(t, outcome.Fail, finished.Outcome.Kind)
}

func TestProgressModel(t *testing.T) {
	events := make(chan Event)
	m := NewProgressModel("spectest", 2, events, nil).(*progressModel)

	a := discovery.TestCase{Name: "ui/a.cursive"}
	b := discovery.TestCase{Name: "ui/b.cursive"}

	m.Update(eventMsg{Test: a})
	m.Update(eventMsg{Test: b})
	require.Equal(t, []string{"ui/a.cursive", "ui/b.cursive"}, m.running)
	require.Contains(t, m.View(), "[0/2]")

	m.Update(eventMsg{Test: a, Outcome: &harness.Outcome{Test: a, Kind: outcome.Pass}})
	m.Update(eventMsg{Test: b, Outcome: &harness.Outcome{Test: b, Kind: outcome.XPass}})
	require.Empty(t, m.running)
	require.Equal(t, 2, m.finished)
	require.Equal(t, 1, m.counts[outcome.Pass])
	require.Equal(t, []string{"ui/b.cursive"}, m.failures)

	_, cmd := m.Update(doneMsg{})
	require.True(t, m.done)
	require.NotNil(t, cmd)

	view := m.View()
	require.Contains(t, view, "done: spectest [2/2]")
	require.Contains(t, view, "ui/b.cursive")
	require.Contains(t, view, "1 xpass")
}

func TestProgressModelCtrlCCancels(t *testing.T) {
	ctx, cancel := context.WithCancel(t.Context())
	m := NewProgressModel("spectest", 1, make(chan Event), cancel).(*progressModel)

	m.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	require.ErrorIs(t, ctx.Err(), context.Canceled)
	require.True(t, m.interrupted)
	require.True(t, strings.Contains(m.View(), "interrupted"))
}

func TestTruncate(t *testing.T) {
	require.Equal(t, "abc", truncate("abc", 0))
	require.Equal(t, "abc", truncate("abc", 5))
	require.Equal(t, "ab...", truncate("abcdefgh", 5))
	require.Equal(t, "ab", truncate("abcdefgh", 2))
	require.Equal(t, "日本...", truncate("日本語テキスト", 7))
	require.LessOrEqual(t, runewidth.StringWidth(truncate("abcdefghijkl", 8)), 8)
}
