// Package harness executes conformance tests against the compiler under
// test and schedules them across a bounded worker pool.
package harness

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"runtime/debug"
	"slices"
	"time"

	"github.com/CursiveCrow/spectest/internal/discovery"
	"github.com/CursiveCrow/spectest/internal/project"
	"github.com/CursiveCrow/spectest/internal/toolchain"
	"github.com/CursiveCrow/spectest/pkg/diagnostic"
	"github.com/CursiveCrow/spectest/pkg/directive"
	"github.com/CursiveCrow/spectest/pkg/outcome"
)

// Outcome is the result of executing one test.
type Outcome struct {
	Test     discovery.TestCase
	Kind     outcome.Kind
	Message  string
	Duration time.Duration

	// Header is the test's declared expectations, when they could be read.
	Header directive.Header

	// Diagnostics are those emitted by the compile step.
	Diagnostics []diagnostic.Actual

	// Stdout and Stderr come from the last process that ran.
	Stdout string
	Stderr string

	ExitCode    int
	HasExitCode bool

	// CodesHit is the sorted set of codes emitted by any step.
	CodesHit []string
}

// ExecutorOptions configures how tests are staged and invoked.
type ExecutorOptions struct {
	Compiler     string
	CompilerArgs []string
	RuntimeLib   string
	Env          map[string]string

	// Timeout applies to each process separately.
	Timeout time.Duration

	DiagJSON               bool
	NoOutputForCompileOnly bool

	TempRoot string
	KeepTemp bool
}

// Executor runs single tests.
type Executor struct {
	runner  toolchain.Runner
	catalog *Catalog
	opts    ExecutorOptions
}

// NewExecutor creates an executor. A nil catalog gets a private one.
func NewExecutor(runner toolchain.Runner, catalog *Catalog, opts ExecutorOptions) *Executor {
	if catalog == nil {
		catalog = NewCatalog()
	}
	return &Executor{runner: runner, catalog: catalog, opts: opts}
}

// Execute runs tc to completion and classifies it. It never returns an
// error: every failure, including a panic inside the harness, becomes a
// Fail outcome.
func (e *Executor) Execute(ctx context.Context, tc discovery.TestCase) (out Outcome) {
	start := time.Now()
	out.Test = tc

	defer func() {
		if r := recover(); r != nil {
			slog.Error("panic while executing test", "test", tc.Name, "panic", r, "stack", string(debug.Stack()))
			out.Kind = outcome.Fail
			out.Message = fmt.Sprintf("infrastructure: internal error: %v", r)
		}
		out.Duration = time.Since(start)
	}()

	in, err := e.observe(ctx, tc, &out)
	in.InfraErr = err
	verdict := outcome.Classify(in)
	out.Kind, out.Message = verdict.Kind, verdict.Message

	slog.Debug("test finished", "test", tc.Name, "outcome", out.Kind, "dur", time.Since(start))
	return out
}

// observe drives the toolchain and records what happened. Any returned
// error is a failure of the plumbing rather than of the test.
func (e *Executor) observe(ctx context.Context, tc discovery.TestCase, out *Outcome) (outcome.Input, error) {
	var in outcome.Input

	exp, err := e.catalog.Get(tc)
	if err != nil {
		return in, err
	}
	in.Header, in.Expected = exp.Header, exp.Expected
	out.Header = exp.Header

	if exp.Header.SkipReason != "" {
		return in, nil
	}

	ws, err := e.stage(tc)
	if err != nil {
		return in, fmt.Errorf("stage: %w", err)
	}
	defer func() {
		if err := ws.Close(); err != nil {
			slog.Warn("cannot remove workspace", "dir", ws.Dir, "err", err)
		}
	}()

	compile, err := e.compile(ctx, ws, exp.Header, out)
	if err != nil {
		return in, err
	}
	in.Compile = compile

	if !outcome.NeedsRun(exp.Header, compile) {
		return in, nil
	}

	run, err := e.run(ctx, ws, exp.Header, out)
	if err != nil {
		return in, err
	}
	in.Run = run
	return in, nil
}

func (e *Executor) stage(tc discovery.TestCase) (*project.Workspace, error) {
	opts := project.StageOptions{
		TempRoot:   e.opts.TempRoot,
		RuntimeLib: e.opts.RuntimeLib,
		Keep:       e.opts.KeepTemp,
	}
	if tc.IsProject {
		return project.StageProject(tc.Path, opts)
	}
	return project.StageFile(tc.Path, opts)
}

// noOutput decides whether codegen can be skipped for h.
func (e *Executor) noOutput(h directive.Header) bool {
	if h.Mode.Runs() {
		return false
	}
	switch h.OutputPipeline {
	case directive.ToggleOn:
		return false
	case directive.ToggleOff:
		return true
	}
	return e.opts.NoOutputForCompileOnly
}

func (e *Executor) compile(ctx context.Context, ws *project.Workspace, h directive.Header, out *Outcome) (*outcome.Step, error) {
	spec := toolchain.CompileSpec{
		Compiler:        e.opts.Compiler,
		Manifest:        ws.Manifest,
		Dir:             ws.Dir,
		JSONDiagnostics: e.opts.DiagJSON,
		NoOutput:        e.noOutput(h),
		Assembly:        h.Assembly,
		ExtraArgs:       e.opts.CompilerArgs,
		Env:             e.opts.Env,
	}

	cctx, cancel := e.withTimeout(ctx)
	defer cancel()

	res, err := e.runner.Run(cctx, spec.Command())
	if res != nil {
		out.Stdout, out.Stderr = res.Stdout, res.Stderr
		out.ExitCode, out.HasExitCode = res.ExitCode, err == nil
	}
	if err != nil {
		return nil, fmt.Errorf("compile: %w", err)
	}

	diags, err := toolchain.Diagnostics(res, e.opts.DiagJSON)
	if err != nil {
		return nil, err
	}
	out.Diagnostics = diags
	out.CodesHit = diagnostic.Codes(diags)

	return &outcome.Step{
		ExitCode:    res.ExitCode,
		Stdout:      res.Stdout,
		Stderr:      res.Stderr,
		Diagnostics: diags,
	}, nil
}

func (e *Executor) run(ctx context.Context, ws *project.Workspace, h directive.Header, out *Outcome) (*outcome.Step, error) {
	manifest, err := project.LoadManifest(ws.Dir)
	if err != nil {
		return nil, fmt.Errorf("read staged manifest: %w", err)
	}
	asm, err := manifest.Executable(h.Assembly)
	if err != nil {
		return nil, err
	}
	exe := project.ExecutablePath(ws.Dir, asm)
	if _, err := os.Stat(exe); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("executable not found at %s", exe)
		}
		return nil, err
	}

	rctx, cancel := e.withTimeout(ctx)
	defer cancel()

	res, err := e.runner.Run(rctx, toolchain.Command{Argv: []string{exe}, Dir: ws.Dir})
	if res != nil {
		out.Stdout, out.Stderr = res.Stdout, res.Stderr
		out.ExitCode, out.HasExitCode = res.ExitCode, err == nil
	}
	if err != nil {
		return nil, fmt.Errorf("run: %w", err)
	}

	diags := diagnostic.ParseText(res.Stderr)
	out.CodesHit = mergeCodes(out.CodesHit, diagnostic.Codes(diags))
	return &outcome.Step{
		ExitCode:    res.ExitCode,
		Stdout:      res.Stdout,
		Stderr:      res.Stderr,
		Diagnostics: diags,
	}, nil
}

func mergeCodes(a, b []string) []string {
	if len(b) == 0 {
		return a
	}
	merged := append(slices.Clone(a), b...)
	slices.Sort(merged)
	return slices.Compact(merged)
}

// withTimeout bounds one process. A zero timeout means no bound.
func (e *Executor) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if e.opts.Timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, e.opts.Timeout)
}
