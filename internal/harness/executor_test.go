package harness

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/CursiveCrow/spectest/internal/discovery"
	"github.com/CursiveCrow/spectest/internal/project"
	"github.com/CursiveCrow/spectest/internal/toolchain"
	"github.com/CursiveCrow/spectest/pkg/outcome"
)

type stepFunc func(cmd toolchain.Command) (*toolchain.Result, error)

// fakeRunner stands in for the compiler and the programs it builds.
type fakeRunner struct {
	mu      sync.Mutex
	calls   []toolchain.Command
	compile stepFunc
	run     stepFunc
}

func (f *fakeRunner) Run(_ context.Context, cmd toolchain.Command) (*toolchain.Result, error) {
	f.mu.Lock()
	f.calls = append(f.calls, cmd)
	f.mu.Unlock()

	if len(cmd.Argv) > 1 && cmd.Argv[1] == "build" {
		return f.compile(cmd)
	}
	if f.run == nil {
		return nil, errors.New("unexpected run")
	}
	return f.run(cmd)
}

func (f *fakeRunner) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

// buildExe writes the executable the staged manifest promises.
func buildExe(t *testing.T, cmd toolchain.Command) {
	t.Helper()
	dir := filepath.Dir(cmd.Argv[len(cmd.Argv)-1])
	exe := project.ExecutablePath(dir, &project.Assembly{Name: project.SingleFileAssembly})
	require.NoError(t, os.MkdirAll(filepath.Dir(exe), 0o755))
	require.NoError(t, os.WriteFile(exe, []byte("bin"), 0o755))
}

func writeTest(t *testing.T, dir, name, source string) discovery.TestCase {
	t.Helper()
	p := filepath.Join(dir, filepath.FromSlash(name))
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(source), 0o644))
	return discovery.TestCase{Name: name, Path: p, Category: strings.Split(name, "/")[0]}
}

func newTestExecutor(t *testing.T, runner toolchain.Runner, mutate ...func(*ExecutorOptions)) (*Executor, string) {
	t.Helper()
	tmp := t.TempDir()
	opts := ExecutorOptions{
		Compiler: "cursivec0",
		Timeout:  time.Minute,
		TempRoot: tmp,
	}
	for _, m := range mutate {
		m(&opts)
	}
	return NewExecutor(runner, nil, opts), tmp
}

func requireNoWorkspaces(t *testing.T, tmp string) {
	t.Helper()
	entries, err := os.ReadDir(tmp)
	require.NoError(t, err)
	require.Empty(t, entries, "workspaces must be removed")
}

func TestExecutor_compileFail(t *testing.T) {
	src := "// RUN: compile-fail\n// DIAG: E-TYP-1901\nlet x: i32 = true //~ ERROR E-TYP-1901: mismatch\n"
	tc := writeTest(t, t.TempDir(), "ui/mismatch.cursive", src)

	runner := &fakeRunner{compile: func(cmd toolchain.Command) (*toolchain.Result, error) {
		return &toolchain.Result{
			ExitCode: 1,
			Stderr:   "E-TYP-1901 (error): type mismatch @src/main.cursive:3:14\n",
		}, nil
	}}
	e, tmp := newTestExecutor(t, runner)

	out := e.Execute(t.Context(), tc)
	require.Equal(t, outcome.Pass, out.Kind, out.Message)
	require.Equal(t, []string{"E-TYP-1901"}, out.CodesHit)
	require.Len(t, out.Diagnostics, 1)
	require.True(t, out.HasExitCode)
	require.Equal(t, 1, out.ExitCode)
	require.Positive(t, out.Duration)
	requireNoWorkspaces(t, tmp)
}

func TestExecutor_stagedSource(t *testing.T) {
	src := "# SPEC_COV: typing.assign\n// RUN: compile-pass\nbody\n"
	tc := writeTest(t, t.TempDir(), "ui/ok.cursive", src)

	var staged string
	runner := &fakeRunner{compile: func(cmd toolchain.Command) (*toolchain.Result, error) {
		data, err := os.ReadFile(filepath.Join(cmd.Dir, "src", "main.cursive"))
		if err != nil {
			return nil, err
		}
		staged = string(data)
		return &toolchain.Result{}, nil
	}}
	e, _ := newTestExecutor(t, runner, func(o *ExecutorOptions) {
		o.Env = map[string]string{"C0_LLVM_BIN": "/llvm"}
	})

	out := e.Execute(t.Context(), tc)
	require.Equal(t, outcome.Pass, out.Kind, out.Message)
	require.Equal(t, "\n// RUN: compile-pass\nbody\n", staged)
	require.Equal(t, []string{"typing.assign"}, out.Header.CoverageRules)

	cmd := runner.calls[0]
	require.Equal(t, "/llvm", cmd.Env["C0_LLVM_BIN"])
	require.Equal(t, filepath.Join(cmd.Dir, project.ManifestFile), cmd.Argv[len(cmd.Argv)-1])
}

func TestExecutor_runPass(t *testing.T) {
	src := "// RUN: run-pass\n// STDOUT: hello\n// EXIT: 0\n"
	tc := writeTest(t, t.TempDir(), "run-pass/hello.cursive", src)

	runner := &fakeRunner{
		compile: func(cmd toolchain.Command) (*toolchain.Result, error) {
			buildExe(t, cmd)
			return &toolchain.Result{}, nil
		},
		run: func(cmd toolchain.Command) (*toolchain.Result, error) {
			return &toolchain.Result{Stdout: "hello, world\n"}, nil
		},
	}
	e, tmp := newTestExecutor(t, runner)

	out := e.Execute(t.Context(), tc)
	require.Equal(t, outcome.Pass, out.Kind, out.Message)
	require.Equal(t, 2, runner.callCount())
	require.Equal(t, "hello, world\n", out.Stdout)
	requireNoWorkspaces(t, tmp)
}

func TestExecutor_runFail(t *testing.T) {
	src := "// RUN: run-fail\n// DIAG: P-RUN-0001\n"
	tc := writeTest(t, t.TempDir(), "run-fail/oob.cursive", src)

	runner := &fakeRunner{
		compile: func(cmd toolchain.Command) (*toolchain.Result, error) {
			buildExe(t, cmd)
			return &toolchain.Result{}, nil
		},
		run: func(cmd toolchain.Command) (*toolchain.Result, error) {
			return &toolchain.Result{ExitCode: 101, Stderr: "P-RUN-0001 (error): index out of bounds\n"}, nil
		},
	}
	e, _ := newTestExecutor(t, runner)

	out := e.Execute(t.Context(), tc)
	require.Equal(t, outcome.Pass, out.Kind, out.Message)
	require.Equal(t, []string{"P-RUN-0001"}, out.CodesHit)
	require.Equal(t, 101, out.ExitCode)
}

func TestExecutor_missingExecutable(t *testing.T) {
	tc := writeTest(t, t.TempDir(), "run-pass/noexe.cursive", "// RUN: run-pass\n// XFAIL: known\n")
	runner := &fakeRunner{compile: func(cmd toolchain.Command) (*toolchain.Result, error) {
		return &toolchain.Result{}, nil
	}}
	e, _ := newTestExecutor(t, runner)

	out := e.Execute(t.Context(), tc)
	require.Equal(t, outcome.Fail, out.Kind)
	require.Contains(t, out.Message, "executable not found")
	require.Equal(t, 1, runner.callCount())
}

func TestExecutor_skip(t *testing.T) {
	tc := writeTest(t, t.TempDir(), "ui/skipped.cursive", "// SKIP: needs threads\n")
	runner := &fakeRunner{}
	e, tmp := newTestExecutor(t, runner)

	out := e.Execute(t.Context(), tc)
	require.Equal(t, outcome.Skip, out.Kind)
	require.Equal(t, "needs threads", out.Message)
	require.Zero(t, runner.callCount())
	requireNoWorkspaces(t, tmp)
}

func TestExecutor_timeoutNotExcused(t *testing.T) {
	tc := writeTest(t, t.TempDir(), "ui/slow.cursive", "// RUN: compile-fail\n// XFAIL: slow checker\n")
	runner := &fakeRunner{compile: func(cmd toolchain.Command) (*toolchain.Result, error) {
		return &toolchain.Result{ExitCode: -1}, fmt.Errorf("run %q: %w after 1s", cmd.Argv[0], toolchain.ErrTimeout)
	}}
	e, tmp := newTestExecutor(t, runner)

	out := e.Execute(t.Context(), tc)
	require.Equal(t, outcome.Fail, out.Kind)
	require.Contains(t, out.Message, "timed out")
	require.False(t, out.HasExitCode)
	requireNoWorkspaces(t, tmp)
}

func TestExecutor_panicRecovered(t *testing.T) {
	tc := writeTest(t, t.TempDir(), "ui/boom.cursive", "// RUN: compile-pass\n")
	runner := &fakeRunner{compile: func(cmd toolchain.Command) (*toolchain.Result, error) {
		panic("fake compiler exploded")
	}}
	e, tmp := newTestExecutor(t, runner)

	out := e.Execute(t.Context(), tc)
	require.Equal(t, outcome.Fail, out.Kind)
	require.Contains(t, out.Message, "fake compiler exploded")
	requireNoWorkspaces(t, tmp)
}

func TestExecutor_unreadableSource(t *testing.T) {
	tc := discovery.TestCase{Name: "ui/gone.cursive", Path: filepath.Join(t.TempDir(), "gone.cursive")}
	e, _ := newTestExecutor(t, &fakeRunner{})

	out := e.Execute(t.Context(), tc)
	require.Equal(t, outcome.Fail, out.Kind)
	require.Contains(t, out.Message, "infrastructure")
}

func TestExecutor_compileFlags(t *testing.T) {
	tests := []struct {
		name       string
		src        string
		noOutput   bool
		json       bool
		wantFlags  []string
		wantAbsent []string
	}{
		{
			name:       "compile_only_default",
			src:        "// RUN: compile-pass\n",
			noOutput:   true,
			wantFlags:  []string{"--no-output"},
			wantAbsent: []string{"--diag-json"},
		},
		{
			name:       "pipeline_forced_on",
			src:        "// RUN: compile-pass\n# OUTPUT_PIPELINE: on\n",
			noOutput:   true,
			wantAbsent: []string{"--no-output"},
		},
		{
			name:      "pipeline_forced_off",
			src:       "// RUN: compile-pass\n# OUTPUT_PIPELINE: off\n",
			wantFlags: []string{"--no-output"},
		},
		{
			name:       "json_and_assembly",
			src:        "// RUN: compile-pass\n# ASSEMBLY: test\n",
			json:       true,
			wantFlags:  []string{"--diag-json", "--assembly"},
			wantAbsent: []string{"--no-output"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tc := writeTest(t, t.TempDir(), "ui/flags.cursive", tt.src)
			runner := &fakeRunner{compile: func(cmd toolchain.Command) (*toolchain.Result, error) {
				if slices.Contains(cmd.Argv, "--diag-json") {
					return &toolchain.Result{Stdout: `{"diagnostics": [], "exit_code": 0}`}, nil
				}
				return &toolchain.Result{}, nil
			}}
			e, _ := newTestExecutor(t, runner, func(o *ExecutorOptions) {
				o.NoOutputForCompileOnly = tt.noOutput
				o.DiagJSON = tt.json
			})

			out := e.Execute(t.Context(), tc)
			require.NotEqual(t, outcome.Fail, out.Kind, out.Message)
			argv := runner.calls[0].Argv
			for _, f := range tt.wantFlags {
				require.Contains(t, argv, f)
			}
			for _, f := range tt.wantAbsent {
				require.NotContains(t, argv, f)
			}
		})
	}
}

func TestExecutor_project(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "ui", "modules", "cycle")
	files := map[string]string{
		project.ManifestFile: "[assembly]\nname = \"app\"\nkind = \"executable\"\nroot = \"src\"\n",
		project.ExpectFile:   "diags = [\"E-MOD-1204\"]\n",
		"src/main.cursive":   "import a\n",
	}
	for name, content := range files {
		p := filepath.Join(dir, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	}
	tc := discovery.TestCase{Name: "ui/modules/cycle", Path: dir, Category: "ui", IsProject: true}

	runner := &fakeRunner{compile: func(cmd toolchain.Command) (*toolchain.Result, error) {
		return &toolchain.Result{ExitCode: 1, Stderr: "E-MOD-1204 (error): import cycle\n"}, nil
	}}
	e, tmp := newTestExecutor(t, runner)

	out := e.Execute(t.Context(), tc)
	require.Equal(t, outcome.Pass, out.Kind, out.Message)
	requireNoWorkspaces(t, tmp)
}
