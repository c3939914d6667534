package main

import (
	"context"
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/CursiveCrow/spectest/internal/discovery"
	"github.com/CursiveCrow/spectest/internal/harness"
	"github.com/CursiveCrow/spectest/internal/ui"
)

// runWithUI drives the scheduler while a Bubble Tea program renders its
// events. Ctrl+C inside the view cancels dispatch like an interrupt.
func runWithUI(ctx context.Context, runner harness.TestRunner, jobs int, tests []discovery.TestCase) (*harness.Summary, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	events := make(chan ui.Event, 256)
	sumCh := make(chan *harness.Summary, 1)

	go func() {
		sched := harness.NewScheduler(runner, jobs, ui.ChannelSink{Ch: events})
		sumCh <- sched.Run(ctx, tests)
		close(events)
	}()

	title := fmt.Sprintf("spectest: %d tests", len(tests))
	model := ui.NewProgressModel(title, len(tests), events, cancel)
	program := tea.NewProgram(model, tea.WithOutput(os.Stdout))
	if _, err := program.Run(); err != nil {
		// The view is gone; stop dispatch and keep workers from blocking.
		cancel()
		go func() {
			for range events {
			}
		}()
		sum := <-sumCh
		return sum, fmt.Errorf("progress view: %w", err)
	}
	return <-sumCh, nil
}
