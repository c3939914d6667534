package report

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
	runewidth "github.com/mattn/go-runewidth"
	"github.com/mitchellh/go-wordwrap"

	"github.com/CursiveCrow/spectest/internal/discovery"
	"github.com/CursiveCrow/spectest/internal/harness"
	"github.com/CursiveCrow/spectest/pkg/outcome"
)

const (
	stderrSnippet = 500
	symbolsPerRow = 80
	detailIndent  = "    "
)

// palette colors outcome kinds consistently.
type palette struct {
	pass  *color.Color
	fail  *color.Color
	skip  *color.Color
	xfail *color.Color
	xpass *color.Color
	dim   *color.Color
	bold  *color.Color
}

func newPalette(enabled bool) *palette {
	p := &palette{
		pass:  color.New(color.FgGreen),
		fail:  color.New(color.FgRed, color.Bold),
		skip:  color.New(color.FgYellow),
		xfail: color.New(color.FgCyan),
		xpass: color.New(color.FgMagenta, color.Bold),
		dim:   color.New(color.Faint),
		bold:  color.New(color.Bold),
	}
	for _, c := range []*color.Color{p.pass, p.fail, p.skip, p.xfail, p.xpass, p.dim, p.bold} {
		if enabled {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
	return p
}

func (p *palette) kind(k outcome.Kind) *color.Color {
	switch k {
	case outcome.Pass:
		return p.pass
	case outcome.Fail:
		return p.fail
	case outcome.Skip:
		return p.skip
	case outcome.XFail:
		return p.xfail
	case outcome.XPass:
		return p.xpass
	}
	return p.bold
}

func writeHuman(w io.Writer, sum *harness.Summary, opts Options) error {
	p := newPalette(opts.Color)
	var b strings.Builder

	if !opts.ProgressShown && len(sum.Outcomes) > 0 {
		for i, o := range sum.Outcomes {
			if i > 0 && i%symbolsPerRow == 0 {
				b.WriteByte('\n')
			}
			b.WriteString(p.kind(o.Kind).Sprint(o.Kind.Symbol()))
		}
		b.WriteByte('\n')
	}

	for _, o := range sum.Outcomes {
		if opts.Verbose || o.Kind.IsFailure() {
			writeDetail(&b, p, o, opts)
		}
	}

	c := Count(sum.Outcomes)
	b.WriteByte('\n')
	fmt.Fprintf(&b, "Results: %s passed, %s failed, %s skipped, %s xfailed, %s xpassed\n",
		p.pass.Sprint(c.Pass), p.fail.Sprint(c.Fail), p.skip.Sprint(c.Skip),
		p.xfail.Sprint(c.XFail), p.xpass.Sprint(c.XPass))
	fmt.Fprintf(&b, "Total: %d tests in %s\n", c.Total, sum.Duration.Round(time.Millisecond))

	if sum.Aborted {
		fmt.Fprintf(&b, "%s %d tests not run\n", p.fail.Sprint("Interrupted:"), len(sum.NotRun))
	}
	if opts.Coverage != nil {
		writeCoverageHuman(&b, p, opts.Coverage, opts.Verbose)
	}

	_, err := io.WriteString(w, b.String())
	return err
}

func writeDetail(b *strings.Builder, p *palette, o harness.Outcome, opts Options) {
	label := strings.ToUpper(o.Kind.String())
	fmt.Fprintf(b, "\n%s %s %s\n", p.kind(o.Kind).Sprint(label), p.bold.Sprint(o.Test.Name),
		p.dim.Sprintf("(%s)", o.Duration.Round(time.Millisecond)))

	if o.Message != "" {
		b.WriteString(indent(wrap(o.Message, opts.Width-len(detailIndent))))
	}
	if o.Kind.IsFailure() && strings.TrimSpace(o.Stderr) != "" {
		b.WriteString(detailIndent + p.dim.Sprint("stderr:") + "\n")
		b.WriteString(indent(p.dim.Sprint(snippet(o.Stderr, stderrSnippet))))
	}
}

func wrap(s string, width int) string {
	if width <= 0 {
		return s
	}
	return wordwrap.WrapString(s, uint(width))
}

func indent(s string) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	for i, l := range lines {
		lines[i] = detailIndent + l
	}
	return strings.Join(lines, "\n") + "\n"
}

// snippet trims s to about n display columns.
func snippet(s string, n int) string {
	s = strings.TrimSpace(s)
	if runewidth.StringWidth(s) <= n {
		return s
	}
	return runewidth.Truncate(s, n, "...")
}

// Progress streams one status symbol per finished test. It is safe for
// concurrent use by scheduler workers.
type Progress struct {
	mu      sync.Mutex
	w       io.Writer
	p       *palette
	verbose bool
	count   int
}

// NewProgress returns an observer that writes to w.
func NewProgress(w io.Writer, colorEnabled, verbose bool) *Progress {
	return &Progress{w: w, p: newPalette(colorEnabled), verbose: verbose}
}

func (pr *Progress) TestStarted(tc discovery.TestCase) {
	if !pr.verbose {
		return
	}
	pr.mu.Lock()
	defer pr.mu.Unlock()
	fmt.Fprintf(pr.w, "%s %s\n", pr.p.dim.Sprint("RUN "), tc.Name)
}

func (pr *Progress) TestFinished(o harness.Outcome) {
	pr.mu.Lock()
	defer pr.mu.Unlock()
	if pr.verbose {
		fmt.Fprintf(pr.w, "%s %s\n", pr.p.kind(o.Kind).Sprintf("%-4s", strings.ToUpper(o.Kind.String())), o.Test.Name)
		return
	}
	fmt.Fprint(pr.w, pr.p.kind(o.Kind).Sprint(o.Kind.Symbol()))
	pr.count++
	if pr.count%symbolsPerRow == 0 {
		fmt.Fprintln(pr.w)
	}
}

// Done terminates a partially filled symbol row.
func (pr *Progress) Done() {
	pr.mu.Lock()
	defer pr.mu.Unlock()
	if !pr.verbose && pr.count%symbolsPerRow != 0 {
		fmt.Fprintln(pr.w)
	}
}
