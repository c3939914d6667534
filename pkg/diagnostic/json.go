package diagnostic

import (
	"encoding/json"
	"fmt"

	"fortio.org/safecast"
)

// Report is the structured diagnostics payload a toolchain prints in JSON mode.
type Report struct {
	Diagnostics []Actual
	ExitCode    int
	HasExitCode bool
}

type jReport struct {
	Diagnostics []jDiagnostic `json:"diagnostics"`
	ExitCode    *int          `json:"exit_code"`
}

type jDiagnostic struct {
	Code     string `json:"code"`
	Severity string `json:"severity"`
	Message  string `json:"message"`
	Span     *jSpan `json:"span"`
}

type jSpan struct {
	File   *string `json:"file"`
	Line   *int64 `json:"line"`
	Column *int64 `json:"column"`
}

// DecodeJSON decodes a JSON diagnostics payload. Optional fields that are
// missing from the payload stay absent in the result.
func DecodeJSON(data []byte) (*Report, error) {
	var raw jReport
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode diagnostics: %w", err)
	}

	r := &Report{Diagnostics: make([]Actual, 0, len(raw.Diagnostics))}
	if raw.ExitCode != nil {
		r.ExitCode, r.HasExitCode = *raw.ExitCode, true
	}

	for i, jd := range raw.Diagnostics {
		if jd.Code == "" || jd.Severity == "" {
			return nil, fmt.Errorf("decode diagnostics: entry %d: code and severity are required", i)
		}
		d := Actual{
			Code:     jd.Code,
			Severity: NormalizeSeverity(jd.Severity),
			Message:  jd.Message,
		}
		if jd.Span != nil {
			loc, err := jd.Span.location()
			if err != nil {
				return nil, fmt.Errorf("decode diagnostics: entry %d: %w", i, err)
			}
			d.Location = loc
		}
		r.Diagnostics = append(r.Diagnostics, d)
	}
	return r, nil
}

func (s *jSpan) location() (Location, error) {
	var loc Location
	if s.File != nil {
		loc.File, loc.HasFile = *s.File, true
	}
	if s.Line != nil {
		line, err := spanField(*s.Line)
		if err != nil {
			return loc, fmt.Errorf("span line %d: %w", *s.Line, err)
		}
		loc.Line, loc.HasLine = line, true
	}
	if s.Column != nil {
		col, err := spanField(*s.Column)
		if err != nil {
			return loc, fmt.Errorf("span column %d: %w", *s.Column, err)
		}
		loc.Column, loc.HasColumn = col, true
	}
	return loc, nil
}

// spanField narrows a line or column number, which must fit in a uint32.
func spanField(v int64) (int, error) {
	u, err := safecast.Conv[uint32](v)
	if err != nil {
		return 0, err
	}
	return safecast.Conv[int](u)
}
