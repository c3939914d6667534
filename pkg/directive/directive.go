// Package directive parses the expectation annotations embedded in
// conformance test sources.
package directive

import (
	"fmt"

	"github.com/CursiveCrow/spectest/pkg/diagnostic"
)

// RunMode selects what the harness does with a test and how it judges it.
type RunMode int

const (
	// CompilePass expects compilation to succeed.
	CompilePass RunMode = iota

	// CompileFail expects compilation to fail with specific diagnostics.
	CompileFail

	// RunPass expects the built executable to exit normally.
	RunPass

	// RunFail expects the built executable to exit abnormally.
	RunFail
)

var runModeNames = map[RunMode]string{
	CompilePass: "compile-pass",
	CompileFail: "compile-fail",
	RunPass:     "run-pass",
	RunFail:     "run-fail",
}

var runModesByName = map[string]RunMode{
	"compile-pass": CompilePass,
	"compile-fail": CompileFail,
	"run-pass":     RunPass,
	"run-fail":     RunFail,
}

func (m RunMode) String() string {
	if s, ok := runModeNames[m]; ok {
		return s
	}
	return fmt.Sprintf("RunMode(%d)", int(m))
}

// Runs reports whether the mode executes the built program.
func (m RunMode) Runs() bool {
	return m == RunPass || m == RunFail
}

// ParseRunMode converts the textual form of a run mode.
func ParseRunMode(s string) (RunMode, error) {
	if m, ok := runModesByName[s]; ok {
		return m, nil
	}
	return CompilePass, fmt.Errorf("unknown run mode %q", s)
}

// Toggle is a tri-state switch that may be left unset.
type Toggle int

const (
	ToggleUnset Toggle = iota
	ToggleOn
	ToggleOff
)

// Header holds the file-level directives of a test.
type Header struct {
	Mode RunMode

	// RequiredDiags are codes that must appear among emitted diagnostics.
	RequiredDiags []string

	// ForbiddenDiags are codes that must not appear.
	ForbiddenDiags []string

	// Stdout fragments must each appear in program output.
	Stdout []string

	// ExitCode is the expected program exit status for RunPass tests.
	ExitCode    int
	HasExitCode bool

	// SpecRefs are cross-references into the language reference.
	SpecRefs    []string
	Description string

	// SkipReason and XFailReason are empty when unset.
	SkipReason  string
	XFailReason string

	// CoverageRules are specification rule ids the test claims to cover.
	CoverageRules []string

	// Assembly selects a named assembly target.
	Assembly string

	// OutputPipeline forces codegen on or off for compile-only modes.
	OutputPipeline Toggle
}

// ExpectedExit returns the required exit status, defaulting to 0.
func (h *Header) ExpectedExit() int {
	if h.HasExitCode {
		return h.ExitCode
	}
	return 0
}

// Offset is the relative line a line directive points at.
type Offset int

// LineDirective is an inline expectation of a diagnostic.
type LineDirective struct {
	// SourceLine is the 1-based line holding the directive.
	SourceLine int

	// TargetLine is SourceLine adjusted by the directive's offset.
	TargetLine int

	Offset   Offset
	Severity string
	Code     string

	Message    string
	HasMessage bool
}

// Warning is a malformed directive that was ignored.
type Warning struct {
	Line    int
	Message string
}

func (w Warning) String() string {
	return fmt.Sprintf("line %d: %s", w.Line, w.Message)
}

// Directives is everything parsed from one test source.
type Directives struct {
	Header Header
	Lines  []LineDirective
}

// Expected converts the line directives into matcher expectations,
// preserving their order.
func (d *Directives) Expected() []diagnostic.Expected {
	out := make([]diagnostic.Expected, 0, len(d.Lines))
	for _, ld := range d.Lines {
		out = append(out, diagnostic.Expected{
			TargetLine: ld.TargetLine,
			Severity:   ld.Severity,
			Code:       ld.Code,
			Message:    ld.Message,
			HasMessage: ld.HasMessage,
		})
	}
	return out
}
