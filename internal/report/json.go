package report

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/google/uuid"

	"github.com/CursiveCrow/spectest/internal/harness"
	"github.com/CursiveCrow/spectest/pkg/diagnostic"
)

type jReport struct {
	RunID      string     `json:"run_id"`
	Version    string     `json:"version,omitempty"`
	Timestamp  string     `json:"timestamp"`
	DurationMS int64      `json:"duration_ms"`
	Aborted    bool       `json:"aborted"`
	Counts     Counts     `json:"counts"`
	Tests      []jTest    `json:"tests"`
	NotRun     []string   `json:"not_run,omitempty"`
	Coverage   *jCoverage `json:"coverage,omitempty"`
}

type jTest struct {
	Name        string        `json:"name"`
	Category    string        `json:"category"`
	Project     bool          `json:"project,omitempty"`
	Mode        string        `json:"mode"`
	Outcome     string        `json:"outcome"`
	Message     string        `json:"message,omitempty"`
	DurationMS  int64         `json:"duration_ms"`
	ExitCode    *int          `json:"exit_code,omitempty"`
	Diagnostics []jDiagnostic `json:"diagnostics,omitempty"`
	CodesHit    []string      `json:"codes_hit,omitempty"`
	Spec        []string      `json:"spec,omitempty"`
}

type jDiagnostic struct {
	Code     string `json:"code"`
	Severity string `json:"severity"`
	Message  string `json:"message,omitempty"`
	File     string `json:"file,omitempty"`
	Line     *int   `json:"line,omitempty"`
	Column   *int   `json:"column,omitempty"`
}

type jCoverage struct {
	Known   int      `json:"known"`
	Hit     int      `json:"hit"`
	Percent float64  `json:"percent"`
	Missing []string `json:"missing"`
	Rules   []string `json:"rules,omitempty"`

	MissingBySeverity map[string][]string `json:"missing_by_severity,omitempty"`
}

func writeJSON(w io.Writer, sum *harness.Summary, opts Options) error {
	runID := opts.RunID
	if runID == "" {
		runID = uuid.NewString()
	}

	r := jReport{
		RunID:      runID,
		Version:    opts.Version,
		Timestamp:  opts.timestamp(),
		DurationMS: sum.Duration.Milliseconds(),
		Aborted:    sum.Aborted,
		Counts:     Count(sum.Outcomes),
		Tests:      make([]jTest, 0, len(sum.Outcomes)),
	}
	for _, o := range sum.Outcomes {
		r.Tests = append(r.Tests, toJTest(o))
	}
	for _, tc := range sum.NotRun {
		r.NotRun = append(r.NotRun, tc.Name)
	}
	if c := opts.Coverage; c != nil {
		r.Coverage = &jCoverage{
			Known:   len(c.Known),
			Hit:     len(c.Hit),
			Percent: c.Percent(),
			Missing: c.Missing(),
			Rules:   c.Rules,

			MissingBySeverity: c.MissingBySeverity(),
		}
	}

	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling json output: %w", err)
	}
	data = append(data, '\n')
	_, err = w.Write(data)
	return err
}

func toJTest(o harness.Outcome) jTest {
	t := jTest{
		Name:       o.Test.Name,
		Category:   o.Test.Category,
		Project:    o.Test.IsProject,
		Mode:       o.Header.Mode.String(),
		Outcome:    o.Kind.String(),
		Message:    o.Message,
		DurationMS: o.Duration.Milliseconds(),
		CodesHit:   o.CodesHit,
		Spec:       o.Header.SpecRefs,
	}
	if o.HasExitCode {
		code := o.ExitCode
		t.ExitCode = &code
	}
	for _, d := range o.Diagnostics {
		t.Diagnostics = append(t.Diagnostics, toJDiagnostic(d))
	}
	return t
}

func toJDiagnostic(d diagnostic.Actual) jDiagnostic {
	jd := jDiagnostic{
		Code:     d.Code,
		Severity: string(d.Severity),
		Message:  d.Message,
		File:     d.File,
	}
	if d.HasLine {
		line := d.Line
		jd.Line = &line
	}
	if d.HasColumn {
		col := d.Column
		jd.Column = &col
	}
	return jd
}
