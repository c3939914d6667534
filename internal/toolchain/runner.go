// Package toolchain runs the compiler under test and the programs it builds.
package toolchain

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"sort"
	"strings"
	"time"
)

var (
	// ErrTimeout is returned when a process outlives its deadline. The
	// process has been killed by the time the error is returned.
	ErrTimeout = errors.New("timed out")

	// ErrLaunch is returned when a process cannot be started at all.
	ErrLaunch = errors.New("failed to launch")
)

// waitDelay bounds how long a killed process may keep its output pipes open.
const waitDelay = 2 * time.Second

// Command is a process invocation.
type Command struct {
	Argv []string
	Dir  string
	Env  map[string]string
}

func (c Command) String() string {
	return strings.Join(c.Argv, " ")
}

// Result is what a finished process produced. A non-zero ExitCode is a
// normal result, not an error.
type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
	Duration time.Duration
}

// Runner executes commands.
type Runner interface {
	Run(ctx context.Context, cmd Command) (*Result, error)
}

// OSRunner executes commands on the host.
type OSRunner struct{}

// Run executes cmd with its environment merged over the harness's own and
// captures stdout and stderr separately. Line endings are normalized to LF.
func (OSRunner) Run(ctx context.Context, c Command) (*Result, error) {
	if len(c.Argv) == 0 {
		return nil, fmt.Errorf("%w: empty argv", ErrLaunch)
	}
	// #nosec G204 -- argv comes from harness configuration.
	cmd := exec.CommandContext(ctx, c.Argv[0], c.Argv[1:]...)
	cmd.Dir = c.Dir
	cmd.WaitDelay = waitDelay
	if len(c.Env) != 0 {
		cmd.Env = mergeEnv(cmd.Environ(), c.Env)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	res := &Result{
		Stdout:   normalizeNewlines(stdout.String()),
		Stderr:   normalizeNewlines(stderr.String()),
		Duration: time.Since(start),
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		if errors.Is(ctxErr, context.DeadlineExceeded) {
			return res, fmt.Errorf("run %q: %w after %s", c.Argv[0], ErrTimeout, res.Duration.Round(time.Millisecond))
		}
		return res, fmt.Errorf("run %q: %w", c.Argv[0], ctxErr)
	}

	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return res, fmt.Errorf("run %q: %w: %w", c.Argv[0], ErrLaunch, err)
		}
		res.ExitCode = exitErr.ExitCode()
	}
	return res, nil
}

// mergeEnv overlays vars onto base in sorted key order. Later entries win
// for duplicate keys when the environment is consumed by exec.
func mergeEnv(base []string, vars map[string]string) []string {
	keys := make([]string, 0, len(vars))
	for k := range vars {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	merged := make([]string, 0, len(base)+len(keys))
	for _, kv := range base {
		k, _, _ := strings.Cut(kv, "=")
		if _, override := vars[k]; override {
			continue
		}
		merged = append(merged, kv)
	}
	for _, k := range keys {
		merged = append(merged, k+"="+vars[k])
	}
	return merged
}

func normalizeNewlines(s string) string {
	return strings.ReplaceAll(s, "\r\n", "\n")
}
