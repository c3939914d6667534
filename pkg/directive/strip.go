package directive

import "strings"

// StripAnnotations blanks out test-only marker lines so the toolchain
// never sees them. Line numbering is preserved.
func StripAnnotations(source string) string {
	if !strings.Contains(source, "#") {
		return source
	}
	lines := strings.SplitAfter(source, "\n")
	for i, line := range lines {
		if !markerPattern.MatchString(strings.TrimRight(line, "\r\n")) {
			continue
		}
		switch {
		case strings.HasSuffix(line, "\r\n"):
			lines[i] = "\r\n"
		case strings.HasSuffix(line, "\n"):
			lines[i] = "\n"
		default:
			lines[i] = ""
		}
	}
	return strings.Join(lines, "")
}
