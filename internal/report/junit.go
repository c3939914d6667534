package report

import (
	"encoding/xml"
	"fmt"
	"io"
	"maps"
	"slices"

	"github.com/CursiveCrow/spectest/internal/harness"
	"github.com/CursiveCrow/spectest/pkg/outcome"
)

type testSuites struct {
	XMLName  xml.Name    `xml:"testsuites"`
	Name     string      `xml:"name,attr"`
	Tests    int         `xml:"tests,attr"`
	Failures int         `xml:"failures,attr"`
	Skipped  int         `xml:"skipped,attr"`
	Time     string      `xml:"time,attr"`
	Suites   []testSuite `xml:"testsuite"`
}

type testSuite struct {
	Name      string     `xml:"name,attr"`
	Tests     int        `xml:"tests,attr"`
	Failures  int        `xml:"failures,attr"`
	Skipped   int        `xml:"skipped,attr"`
	Time      string     `xml:"time,attr"`
	Timestamp string     `xml:"timestamp,attr,omitempty"`
	Cases     []testCase `xml:"testcase"`
}

type testCase struct {
	Name      string       `xml:"name,attr"`
	Classname string       `xml:"classname,attr"`
	Time      string       `xml:"time,attr"`
	Failure   *withMessage `xml:"failure,omitempty"`
	Skipped   *withMessage `xml:"skipped,omitempty"`
	SystemErr string       `xml:"system-err,omitempty"`
}

type withMessage struct {
	Message string `xml:"message,attr,omitempty"`
	Type    string `xml:"type,attr,omitempty"`
	Body    string `xml:",chardata"`
}

func seconds(ms int64) string {
	return fmt.Sprintf("%.3f", float64(ms)/1000)
}

func writeJUnit(w io.Writer, sum *harness.Summary, opts Options) error {
	byCategory := make(map[string][]harness.Outcome)
	for _, o := range sum.Outcomes {
		byCategory[o.Test.Category] = append(byCategory[o.Test.Category], o)
	}

	report := testSuites{
		Name: "spectest",
		Time: seconds(sum.Duration.Milliseconds()),
	}
	timestamp := opts.timestamp()

	for _, category := range slices.Sorted(maps.Keys(byCategory)) {
		suite := testSuite{Name: category, Timestamp: timestamp}
		var ms int64
		for _, o := range byCategory[category] {
			tc := testCase{
				Name:      o.Test.Name,
				Classname: category,
				Time:      seconds(o.Duration.Milliseconds()),
			}
			switch o.Kind {
			case outcome.Fail, outcome.XPass:
				tc.Failure = &withMessage{Message: firstLine(o.Message), Type: o.Kind.String(), Body: o.Message}
				tc.SystemErr = snippet(o.Stderr, stderrSnippet)
				suite.Failures++
			case outcome.Skip:
				tc.Skipped = &withMessage{Message: o.Message}
				suite.Skipped++
			case outcome.XFail:
				// JUnit has no expected-failure state.
				tc.Skipped = &withMessage{Message: "expected failure: " + firstLine(o.Message), Body: o.Message}
				suite.Skipped++
			}
			ms += o.Duration.Milliseconds()
			suite.Tests++
			suite.Cases = append(suite.Cases, tc)
		}
		suite.Time = seconds(ms)

		report.Tests += suite.Tests
		report.Failures += suite.Failures
		report.Skipped += suite.Skipped
		report.Suites = append(report.Suites, suite)
	}

	data, err := xml.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal junit report: %w", err)
	}
	if _, err := io.WriteString(w, xml.Header); err != nil {
		return err
	}
	data = append(data, '\n')
	_, err = w.Write(data)
	return err
}
