package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/CursiveCrow/spectest/internal/harness"
	"github.com/CursiveCrow/spectest/pkg/outcome"
)

// writeTAP renders TAP version 13. XPass is reported as "not ok" because
// it fails the run.
func writeTAP(w io.Writer, sum *harness.Summary) error {
	var b strings.Builder
	b.WriteString("TAP version 13\n")
	fmt.Fprintf(&b, "1..%d\n", len(sum.Outcomes))

	for i, o := range sum.Outcomes {
		n := i + 1
		switch o.Kind {
		case outcome.Pass:
			fmt.Fprintf(&b, "ok %d - %s\n", n, o.Test.Name)
		case outcome.Skip:
			fmt.Fprintf(&b, "ok %d - %s # SKIP %s\n", n, o.Test.Name, firstLine(o.Message))
		case outcome.XFail:
			fmt.Fprintf(&b, "not ok %d - %s # TODO %s\n", n, o.Test.Name, firstLine(o.Message))
		default:
			fmt.Fprintf(&b, "not ok %d - %s\n", n, o.Test.Name)
			writeTAPComment(&b, o.Message)
		}
	}

	if sum.Aborted {
		fmt.Fprintf(&b, "# interrupted: %d tests not run\n", len(sum.NotRun))
	}
	_, err := io.WriteString(w, b.String())
	return err
}

func writeTAPComment(b *strings.Builder, msg string) {
	for line := range strings.SplitSeq(strings.TrimRight(msg, "\n"), "\n") {
		if line == "" {
			continue
		}
		b.WriteString("# ")
		b.WriteString(line)
		b.WriteByte('\n')
	}
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(s, "\n")
	return line
}
