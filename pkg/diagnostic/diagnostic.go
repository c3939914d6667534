// Package diagnostic models the diagnostics a compiler emits and the
// expectations a conformance test declares about them.
package diagnostic

import (
	"slices"
	"strings"
)

// Severity is the normalized severity of a diagnostic.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
)

// severityAliases maps upper-cased severity spellings to their canonical form.
var severityAliases = map[string]Severity{
	"ERROR":   SeverityError,
	"WARN":    SeverityWarning,
	"WARNING": SeverityWarning,
	"INFO":    SeverityInfo,
}

// NormalizeSeverity maps a severity spelling to its canonical form.
// The lookup is case-insensitive. Unknown spellings are returned unchanged
// and never compare equal to a canonical severity.
func NormalizeSeverity(s string) Severity {
	if sev, ok := severityAliases[strings.ToUpper(strings.TrimSpace(s))]; ok {
		return sev
	}
	return Severity(s)
}

// Location is where an emitted diagnostic points. Every field is optional
// and is meaningful only when its presence flag is set.
type Location struct {
	File      string
	Line      int
	Column    int
	HasFile   bool
	HasLine   bool
	HasColumn bool
}

// Actual is a diagnostic emitted by the toolchain under test.
type Actual struct {
	Location
	Severity Severity
	Code     string
	Message  string
}

// Codes returns the sorted set of codes present in ds.
func Codes(ds []Actual) []string {
	codes := make([]string, 0, len(ds))
	for _, d := range ds {
		codes = append(codes, d.Code)
	}
	slices.Sort(codes)
	return slices.Compact(codes)
}

func codeSet(ds []Actual) map[string]struct{} {
	set := make(map[string]struct{}, len(ds))
	for _, d := range ds {
		set[d.Code] = struct{}{}
	}
	return set
}
