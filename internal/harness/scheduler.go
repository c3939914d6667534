package harness

import (
	"context"
	"runtime"
	"slices"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/CursiveCrow/spectest/internal/discovery"
)

// TestRunner executes one test. Implementations must be safe for
// concurrent use.
type TestRunner interface {
	Execute(ctx context.Context, tc discovery.TestCase) Outcome
}

// Observer is notified as tests start and finish. Calls arrive from
// worker goroutines concurrently.
type Observer interface {
	TestStarted(tc discovery.TestCase)
	TestFinished(out Outcome)
}

// Summary is the result of a scheduled run.
type Summary struct {
	// Outcomes holds one entry per executed test, sorted by test name.
	Outcomes []Outcome

	// NotRun lists tests that were never dispatched because the run was
	// interrupted.
	NotRun []discovery.TestCase

	// Aborted is set when the run was interrupted.
	Aborted bool

	Duration time.Duration
}

// Scheduler runs tests on a bounded pool of workers.
type Scheduler struct {
	runner   TestRunner
	jobs     int
	observer Observer
}

// NewScheduler creates a scheduler with at most jobs concurrent tests.
// A non-positive jobs uses the number of usable CPUs.
func NewScheduler(runner TestRunner, jobs int, observer Observer) *Scheduler {
	if jobs < 1 {
		jobs = runtime.GOMAXPROCS(0)
	}
	return &Scheduler{runner: runner, jobs: jobs, observer: observer}
}

// Run executes tests. Cancelling ctx stops dispatch; tests already running
// are allowed to finish so no child process is orphaned.
func (s *Scheduler) Run(ctx context.Context, tests []discovery.TestCase) *Summary {
	start := time.Now()

	// Each worker writes only its own slot; the slice is read after Wait.
	results := make([]*Outcome, len(tests))

	var g errgroup.Group
	g.SetLimit(s.jobs)

	for idx, tc := range tests {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			// The slot may have freed up after cancellation.
			if ctx.Err() != nil {
				return nil
			}
			if s.observer != nil {
				s.observer.TestStarted(tc)
			}
			out := s.runner.Execute(context.WithoutCancel(ctx), tc)
			results[idx] = &out
			if s.observer != nil {
				s.observer.TestFinished(out)
			}
			return nil
		})
	}
	_ = g.Wait()

	sum := &Summary{}
	for idx, out := range results {
		if out == nil {
			sum.NotRun = append(sum.NotRun, tests[idx])
			continue
		}
		sum.Outcomes = append(sum.Outcomes, *out)
	}
	sum.Aborted = len(sum.NotRun) > 0
	slices.SortFunc(sum.Outcomes, func(a, b Outcome) int {
		return strings.Compare(a.Test.Name, b.Test.Name)
	})
	sum.Duration = time.Since(start)
	return sum
}
