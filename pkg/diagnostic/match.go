package diagnostic

import (
	"fmt"
	"strings"
)

// Expected is a diagnostic a test requires at a specific source line.
type Expected struct {
	// TargetLine is the 1-based line the diagnostic must point at.
	TargetLine int

	// Severity is the severity as written in the test (ERROR, WARN, INFO).
	Severity string

	// Code is the diagnostic code, compared exactly.
	Code string

	// Message is a substring the emitted message must contain.
	Message    string
	HasMessage bool
}

func (e Expected) String() string {
	var b strings.Builder
	b.WriteString(e.Severity)
	b.WriteByte(' ')
	b.WriteString(e.Code)
	if e.HasMessage {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	fmt.Fprintf(&b, " at line %d", e.TargetLine)
	return b.String()
}

// Matches reports whether a satisfies e, ignoring whether a is already claimed.
func (e Expected) Matches(a Actual) bool {
	if NormalizeSeverity(e.Severity) != NormalizeSeverity(string(a.Severity)) {
		return false
	}
	if e.Code != a.Code {
		return false
	}
	if a.HasLine && a.Line != e.TargetLine {
		return false
	}
	if e.HasMessage && !strings.Contains(a.Message, e.Message) {
		return false
	}
	return true
}

// Match pairs expectations with emitted diagnostics one-to-one. Each
// expectation claims the first unclaimed diagnostic it matches, in order.
// It returns the expectations left unsatisfied, in their original order.
func Match(expected []Expected, actual []Actual) []Expected {
	claimed := make([]bool, len(actual))
	var unmatched []Expected

	for _, e := range expected {
		found := false
		for i, a := range actual {
			if claimed[i] || !e.Matches(a) {
				continue
			}
			claimed[i] = true
			found = true
			break
		}
		if !found {
			unmatched = append(unmatched, e)
		}
	}
	return unmatched
}

// MissingCodes returns the required codes that no emitted diagnostic carries.
func MissingCodes(required []string, actual []Actual) []string {
	return filterCodes(required, actual, false)
}

// ForbiddenPresent returns the forbidden codes some emitted diagnostic carries.
func ForbiddenPresent(forbidden []string, actual []Actual) []string {
	return filterCodes(forbidden, actual, true)
}

func filterCodes(codes []string, actual []Actual, present bool) []string {
	have := codeSet(actual)
	seen := make(map[string]struct{}, len(codes))
	var out []string
	for _, c := range codes {
		if _, dup := seen[c]; dup {
			continue
		}
		seen[c] = struct{}{}
		if _, ok := have[c]; ok == present {
			out = append(out, c)
		}
	}
	return out
}

// UnmatchedMessage formats the failure line for an unsatisfied expectation.
func UnmatchedMessage(e Expected) string {
	return fmt.Sprintf("Expected %s, not found", e.String())
}
