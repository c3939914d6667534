package diagnostic

import (
	"bufio"
	"regexp"
	"strconv"
	"strings"
)

// textPattern matches one rendered diagnostic line:
//
//	E-TYP-1901 (error): message @path/to/file.cursive:12:5
//
// The location suffix is optional. The file part is greedy so that paths
// containing a drive letter keep their colon.
var textPattern = regexp.MustCompile(
	`^([A-Z]-[A-Z]{3}-\d{4})\s+\((?i:(error|warning|info))\):\s*(.+?)(?:\s+@(.+):(\d+):(\d+))?$`)

// ParseText extracts diagnostics from compiler text output, one per line.
// Lines that do not look like a diagnostic are ignored.
func ParseText(text string) []Actual {
	var out []Actual
	scanner := bufio.NewScanner(strings.NewReader(text))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		if d, ok := parseLine(scanner.Text()); ok {
			out = append(out, d)
		}
	}
	return out
}

func parseLine(line string) (Actual, bool) {
	m := textPattern.FindStringSubmatch(strings.TrimSpace(line))
	if m == nil {
		return Actual{}, false
	}

	d := Actual{
		Code:     m[1],
		Severity: NormalizeSeverity(m[2]),
		Message:  strings.TrimSpace(m[3]),
	}
	if m[4] == "" {
		return d, true
	}

	// The pattern guarantees digits; only overflow can fail here.
	lineNo, errLine := strconv.Atoi(m[5])
	col, errCol := strconv.Atoi(m[6])
	d.File, d.HasFile = m[4], true
	if errLine == nil {
		d.Line, d.HasLine = lineNo, true
	}
	if errCol == nil {
		d.Column, d.HasColumn = col, true
	}
	return d, true
}
