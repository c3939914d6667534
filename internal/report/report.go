// Package report renders the outcomes of a harness run.
package report

import (
	"bytes"
	"fmt"
	"io"
	"time"

	"github.com/CursiveCrow/spectest/internal/filelock"
	"github.com/CursiveCrow/spectest/internal/harness"
	"github.com/CursiveCrow/spectest/pkg/outcome"
)

// Format selects a report renderer.
type Format string

const (
	FormatHuman Format = "human"
	FormatJSON  Format = "json"
	FormatJUnit Format = "junit"
	FormatTAP   Format = "tap"
)

// Formats lists every supported format.
var Formats = []Format{FormatHuman, FormatJSON, FormatJUnit, FormatTAP}

// ParseFormat validates a format name.
func ParseFormat(s string) (Format, error) {
	for _, f := range Formats {
		if string(f) == s {
			return f, nil
		}
	}
	return "", fmt.Errorf("unknown report format %q (want one of %v)", s, Formats)
}

// Options tune rendering.
type Options struct {
	// Verbose shows detail for every test, not only failures.
	Verbose bool

	// Color enables ANSI colors in the human format.
	Color bool

	// Width wraps human output; zero disables wrapping.
	Width int

	// ProgressShown suppresses the human status line when progress was
	// already streamed while tests ran.
	ProgressShown bool

	// RunID identifies the run in machine formats. Empty generates one.
	RunID string

	Version string

	// Coverage is included when set.
	Coverage *Coverage

	now func() time.Time
}

func (o Options) timestamp() string {
	now := time.Now
	if o.now != nil {
		now = o.now
	}
	return now().UTC().Format(time.RFC3339)
}

// Write renders sum to w in the requested format.
func Write(w io.Writer, format Format, sum *harness.Summary, opts Options) error {
	switch format {
	case FormatHuman:
		return writeHuman(w, sum, opts)
	case FormatJSON:
		return writeJSON(w, sum, opts)
	case FormatJUnit:
		return writeJUnit(w, sum, opts)
	case FormatTAP:
		return writeTAP(w, sum)
	}
	return fmt.Errorf("unknown report format %q", format)
}

// WriteFile renders sum and replaces path with the result.
func WriteFile(path string, format Format, sum *harness.Summary, opts Options) error {
	var buf bytes.Buffer
	if err := Write(&buf, format, sum, opts); err != nil {
		return err
	}
	return filelock.WriteFile(path, buf.Bytes())
}

// Counts tallies outcomes by kind.
type Counts struct {
	Pass  int `json:"passed"`
	Fail  int `json:"failed"`
	Skip  int `json:"skipped"`
	XFail int `json:"xfailed"`
	XPass int `json:"xpassed"`
	Total int `json:"total"`
}

// Count tallies outcomes.
func Count(outs []harness.Outcome) Counts {
	var c Counts
	for _, o := range outs {
		switch o.Kind {
		case outcome.Pass:
			c.Pass++
		case outcome.Fail:
			c.Fail++
		case outcome.Skip:
			c.Skip++
		case outcome.XFail:
			c.XFail++
		case outcome.XPass:
			c.XPass++
		}
		c.Total++
	}
	return c
}

// ExitCode is the process exit status implied by outs: 1 when the run
// failed, else 0.
func ExitCode(outs []harness.Outcome) int {
	if Failed(outs) {
		return 1
	}
	return 0
}

// Failed reports whether any outcome makes the run unsuccessful.
func Failed(outs []harness.Outcome) bool {
	for _, o := range outs {
		if o.Kind.IsFailure() {
			return true
		}
	}
	return false
}
