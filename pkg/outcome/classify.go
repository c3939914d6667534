package outcome

import (
	"fmt"
	"strings"

	"github.com/CursiveCrow/spectest/pkg/diagnostic"
	"github.com/CursiveCrow/spectest/pkg/directive"
)

// stderrLimit bounds how much compiler stderr is quoted in a failure.
const stderrLimit = 500

// Step is what one toolchain process produced.
type Step struct {
	ExitCode    int
	Stdout      string
	Stderr      string
	Diagnostics []diagnostic.Actual
}

// Succeeded reports whether the process exited with status 0.
func (s *Step) Succeeded() bool {
	return s.ExitCode == 0
}

// Input is everything the classifier needs to judge a test.
type Input struct {
	Header   directive.Header
	Expected []diagnostic.Expected

	// Compile is nil only when the test was skipped or never reached the compiler.
	Compile *Step

	// Run is set once the built program has been executed.
	Run *Step

	// InfraErr is a failure of the harness or toolchain plumbing itself.
	InfraErr error
}

// NeedsRun reports whether the built program must be executed before the
// test can be classified.
func NeedsRun(h directive.Header, compile *Step) bool {
	return h.Mode.Runs() && compile != nil && compile.Succeeded()
}

// Classify maps observations to an outcome. It is pure: the same input
// always yields the same verdict.
func Classify(in Input) Verdict {
	if in.Header.SkipReason != "" {
		return Verdict{Kind: Skip, Message: in.Header.SkipReason}
	}
	// Plumbing failures are never excused by an expected-failure annotation.
	if in.InfraErr != nil {
		return Verdict{Kind: Fail, Message: "infrastructure: " + in.InfraErr.Error()}
	}
	if in.Compile == nil {
		return Verdict{Kind: Fail, Message: "infrastructure: no compilation result"}
	}

	switch in.Header.Mode {
	case directive.CompileFail:
		return classifyCompileFail(in)
	case directive.CompilePass:
		return classifyCompilePass(in)
	case directive.RunPass:
		return classifyRunPass(in)
	case directive.RunFail:
		return classifyRunFail(in)
	}
	return Verdict{Kind: Fail, Message: fmt.Sprintf("infrastructure: unsupported run mode %s", in.Header.Mode)}
}

// failed converts an expectation mismatch into Fail, or XFail when the
// test is annotated as expected to fail.
func failed(h directive.Header, msg string) Verdict {
	if h.XFailReason != "" {
		return Verdict{Kind: XFail, Message: fmt.Sprintf("%s (expected failure: %s)", msg, h.XFailReason)}
	}
	return Verdict{Kind: Fail, Message: msg}
}

// passed converts a clean result into Pass, or XPass under an
// expected-failure annotation.
func passed(h directive.Header) Verdict {
	if h.XFailReason != "" {
		return Verdict{Kind: XPass, Message: "expected to fail but passed: " + h.XFailReason}
	}
	return Verdict{Kind: Pass}
}

func classifyCompileFail(in Input) Verdict {
	h := in.Header
	diags := in.Compile.Diagnostics

	if in.Compile.Succeeded() {
		if h.XFailReason == "" {
			return Verdict{Kind: Fail, Message: "Expected compilation to fail, but it succeeded"}
		}
		// Under XFAIL the success is only an expected failure when it also
		// leaves a declared diagnostic unreported.
		if len(diagnostic.MissingCodes(h.RequiredDiags, diags)) > 0 ||
			len(diagnostic.Match(in.Expected, diags)) > 0 {
			return failed(h, "Expected compilation to fail, but it succeeded")
		}
		return passed(h)
	}

	// A forbidden diagnostic fails the test even under XFAIL, so it is
	// checked before anything that XFAIL could downgrade.
	if found := diagnostic.ForbiddenPresent(h.ForbiddenDiags, diags); len(found) > 0 {
		return Verdict{Kind: Fail, Message: fmt.Sprintf("Found forbidden diagnostics: %s", strings.Join(found, ", "))}
	}

	if missing := diagnostic.MissingCodes(h.RequiredDiags, diags); len(missing) > 0 {
		return failed(h, fmt.Sprintf("Missing expected diagnostics: %s", strings.Join(missing, ", ")))
	}

	if unmatched := diagnostic.Match(in.Expected, diags); len(unmatched) > 0 {
		lines := make([]string, 0, len(unmatched))
		for _, e := range unmatched {
			lines = append(lines, diagnostic.UnmatchedMessage(e))
		}
		return failed(h, strings.Join(lines, "\n"))
	}

	return passed(h)
}

// compileFailed is the shared verdict when a test that needs a successful
// build did not get one.
func compileFailed(in Input) Verdict {
	return failed(in.Header, "Compilation failed: "+truncate(in.Compile.Stderr, stderrLimit))
}

func classifyCompilePass(in Input) Verdict {
	if !in.Compile.Succeeded() {
		return compileFailed(in)
	}
	return passed(in.Header)
}

func classifyRunPass(in Input) Verdict {
	if !in.Compile.Succeeded() {
		return compileFailed(in)
	}
	if in.Run == nil {
		return Verdict{Kind: Fail, Message: "infrastructure: program was not run"}
	}

	h := in.Header
	if want := h.ExpectedExit(); in.Run.ExitCode != want {
		return failed(h, fmt.Sprintf("Expected exit code %d, got %d", want, in.Run.ExitCode))
	}
	for _, fragment := range h.Stdout {
		if !strings.Contains(in.Run.Stdout, fragment) {
			return failed(h, fmt.Sprintf("Expected stdout to contain %q", fragment))
		}
	}
	return passed(h)
}

func classifyRunFail(in Input) Verdict {
	if !in.Compile.Succeeded() {
		return compileFailed(in)
	}
	if in.Run == nil {
		return Verdict{Kind: Fail, Message: "infrastructure: program was not run"}
	}

	h := in.Header
	if in.Run.Succeeded() {
		return failed(h, "Expected runtime panic, but program exited normally")
	}
	if missing := diagnostic.MissingCodes(h.RequiredDiags, in.Run.Diagnostics); len(missing) > 0 {
		return failed(h, fmt.Sprintf("Missing expected runtime diagnostics: %s", strings.Join(missing, ", ")))
	}
	return passed(h)
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	// Back off to a rune boundary.
	for n > 0 && n < len(s) && (s[n]&0xC0) == 0x80 {
		n--
	}
	return s[:n] + "..."
}
