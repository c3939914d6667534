package toolchain

import (
	"fmt"
	"maps"
	"strings"

	"github.com/CursiveCrow/spectest/pkg/diagnostic"
)

// InternalFlagsEnv unlocks the compiler's harness-only flags.
const InternalFlagsEnv = "CURSIVE0_INTERNAL_FLAGS"

// CompileSpec describes one compiler invocation.
type CompileSpec struct {
	Compiler string
	Manifest string
	Dir      string

	// JSONDiagnostics asks for a structured diagnostics payload on stdout.
	JSONDiagnostics bool

	// NoOutput stops the compiler before codegen and linking.
	NoOutput bool

	Assembly  string
	ExtraArgs []string
	Env       map[string]string
}

// Command builds the argv and environment for s.
func (s CompileSpec) Command() Command {
	argv := []string{s.Compiler, "build"}
	internal := false
	if s.JSONDiagnostics {
		argv = append(argv, "--diag-json")
		internal = true
	}
	if s.NoOutput {
		argv = append(argv, "--no-output")
		internal = true
	}
	if s.Assembly != "" {
		argv = append(argv, "--assembly", s.Assembly)
	}
	argv = append(argv, s.ExtraArgs...)
	argv = append(argv, s.Manifest)

	env := maps.Clone(s.Env)
	if internal {
		if env == nil {
			env = make(map[string]string, 1)
		}
		env[InternalFlagsEnv] = "1"
	}
	return Command{Argv: argv, Dir: s.Dir, Env: env}
}

// Diagnostics extracts the diagnostics a compiler run emitted. In JSON
// mode the payload is read from stdout; a compiler that died before
// printing one is read as text from stderr instead.
func Diagnostics(res *Result, json bool) ([]diagnostic.Actual, error) {
	if !json || strings.TrimSpace(res.Stdout) == "" {
		return diagnostic.ParseText(res.Stderr), nil
	}
	report, err := diagnostic.DecodeJSON([]byte(res.Stdout))
	if err != nil {
		return nil, fmt.Errorf("compiler diagnostics: %w", err)
	}
	return report.Diagnostics, nil
}
