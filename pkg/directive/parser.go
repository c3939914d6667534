package directive

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"regexp"
	"strconv"
	"strings"
)

// headerKind identifies a file-level directive keyword.
type headerKind int

const (
	headerRun headerKind = iota
	headerDiag
	headerDiagNot
	headerStdout
	headerExit
	headerSpec
	headerDesc
	headerSkip
	headerXFail
	headerSpecCov
	headerAssembly
	headerOutputPipeline
)

// headerKeywords maps directive keywords to their kinds.
var headerKeywords = map[string]headerKind{
	"RUN":             headerRun,
	"DIAG":            headerDiag,
	"DIAG-NOT":        headerDiagNot,
	"STDOUT":          headerStdout,
	"EXIT":            headerExit,
	"SPEC":            headerSpec,
	"DESC":            headerDesc,
	"SKIP":            headerSkip,
	"XFAIL":           headerXFail,
	"SPEC_COV":        headerSpecCov,
	"ASSEMBLY":        headerAssembly,
	"OUTPUT_PIPELINE": headerOutputPipeline,
}

// Directive patterns.
var (
	// headerPattern matches "// KEY: value" header directives.
	headerPattern = regexp.MustCompile(`^\s*//\s*(RUN|DIAG-NOT|DIAG|STDOUT|EXIT|SPEC|DESC|SKIP|XFAIL):\s*(.*?)\s*$`)

	// markerPattern matches "# KEY: value" test-only marker lines.
	markerPattern = regexp.MustCompile(`^\s*#\s*(SPEC_COV|ASSEMBLY|OUTPUT_PIPELINE):\s*(.*?)\s*$`)

	// linePattern matches "//~<offset> SEVERITY CODE[: message]" anywhere on a line.
	linePattern = regexp.MustCompile(
		`//~([v^]|[+-]?\d+)?\s*(ERROR|WARN|INFO)\s+([A-Z]-[A-Z]{3}-\d{4})(?::\s*(.+))?`)

	// codeLiteralPattern matches any diagnostic code literal.
	codeLiteralPattern = regexp.MustCompile(`\b[EWIP]-[A-Z]{3}-\d{4}\b`)
)

// ParseFile reads and parses the directives of the file at path.
func ParseFile(path string) (*Directives, []Warning, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	d, warnings, err := ParseReader(f)
	if err != nil {
		return nil, nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return d, warnings, nil
}

// Parse extracts directives from source text. Malformed directives are
// returned as warnings and leave the corresponding defaults in place.
func Parse(source string) (*Directives, []Warning) {
	// Reading from a strings.Reader only fails on oversized lines.
	d, warnings, err := ParseReader(strings.NewReader(source))
	if err != nil {
		warnings = append(warnings, Warning{Message: err.Error()})
	}
	return d, warnings
}

// ParseReader extracts directives from r line by line.
func ParseReader(r io.Reader) (*Directives, []Warning, error) {
	d := &Directives{}
	var warnings []Warning

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()

		if m := headerPattern.FindStringSubmatch(line); m != nil {
			if w := d.Header.apply(headerKeywords[m[1]], m[2]); w != "" {
				warnings = append(warnings, Warning{Line: lineNo, Message: w})
			}
		} else if m := markerPattern.FindStringSubmatch(line); m != nil {
			if w := d.Header.apply(headerKeywords[m[1]], m[2]); w != "" {
				warnings = append(warnings, Warning{Line: lineNo, Message: w})
			}
		}

		// A line may carry both a header and a line directive.
		if ld := parseLineDirective(line, lineNo); ld != nil {
			d.Lines = append(d.Lines, *ld)
		}
	}
	if err := scanner.Err(); err != nil {
		return d, warnings, err
	}
	return d, warnings, nil
}

// apply records one header directive and returns a warning message if the
// value is malformed.
func (h *Header) apply(kind headerKind, value string) string {
	switch kind {
	case headerRun:
		mode, err := ParseRunMode(value)
		if err != nil {
			return fmt.Sprintf("RUN: %v, keeping %s", err, h.Mode)
		}
		h.Mode = mode
	case headerDiag:
		if code := firstField(value); code != "" {
			h.RequiredDiags = append(h.RequiredDiags, code)
		}
	case headerDiagNot:
		if code := firstField(value); code != "" {
			h.ForbiddenDiags = append(h.ForbiddenDiags, code)
		}
	case headerStdout:
		if value != "" {
			h.Stdout = append(h.Stdout, value)
		}
	case headerExit:
		code, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Sprintf("EXIT: %q is not an integer", value)
		}
		h.ExitCode, h.HasExitCode = code, true
	case headerSpec:
		if value != "" {
			h.SpecRefs = append(h.SpecRefs, value)
		}
	case headerDesc:
		h.Description = value
	case headerSkip:
		h.SkipReason = value
	case headerXFail:
		h.XFailReason = value
	case headerSpecCov:
		for rule := range strings.FieldsFuncSeq(value, isListSep) {
			h.CoverageRules = append(h.CoverageRules, rule)
		}
	case headerAssembly:
		h.Assembly = value
	case headerOutputPipeline:
		switch strings.ToLower(value) {
		case "on", "true", "1":
			h.OutputPipeline = ToggleOn
		case "off", "false", "0":
			h.OutputPipeline = ToggleOff
		default:
			return fmt.Sprintf("OUTPUT_PIPELINE: expected on or off, got %q", value)
		}
	}
	return ""
}

func isListSep(r rune) bool {
	return r == ',' || r == ' ' || r == '\t'
}

func firstField(s string) string {
	if fields := strings.Fields(s); len(fields) > 0 {
		return fields[0]
	}
	return ""
}

func parseLineDirective(line string, lineNo int) *LineDirective {
	m := linePattern.FindStringSubmatch(line)
	if m == nil {
		return nil
	}

	offset := parseOffset(m[1])
	ld := &LineDirective{
		SourceLine: lineNo,
		TargetLine: lineNo + int(offset),
		Offset:     offset,
		Severity:   m[2],
		Code:       m[3],
	}
	if msg := strings.TrimSpace(m[4]); msg != "" {
		ld.Message, ld.HasMessage = msg, true
	}
	return ld
}

func parseOffset(s string) Offset {
	switch s {
	case "":
		return 0
	case "^":
		return -1
	case "v":
		return 1
	}
	// The pattern admits only a signed decimal here.
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return Offset(n)
}

// CodesMentioned returns every diagnostic code literal in source, in order
// of first appearance.
func CodesMentioned(source string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, c := range codeLiteralPattern.FindAllString(source, -1) {
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	return out
}
