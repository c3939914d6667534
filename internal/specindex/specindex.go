// Package specindex extracts the catalogue of diagnostic codes defined by
// the language specification document.
package specindex

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	east "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/text"
)

// Entry is one diagnostic code defined by the language reference.
type Entry struct {
	Code     string
	Severity string
}

var (
	codePattern    = regexp.MustCompile(`^[EWIP]-[A-Z]{2,4}-\d{4}$`)
	literalPattern = regexp.MustCompile(`\b[EWIP]-[A-Z]{2,4}-\d{4}\b`)
)

// Load reads the index from path. Markdown documents contribute the codes
// listed in their tables; any other file contributes every code literal.
func Load(path string) ([]Entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read spec index: %w", err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".md", ".markdown":
		return ParseMarkdown(data), nil
	}
	return ParseText(data), nil
}

// ParseMarkdown collects codes from table rows whose first cell is a code
// span, reading the severity from the second cell.
func ParseMarkdown(source []byte) []Entry {
	md := goldmark.New(goldmark.WithExtensions(extension.Table))
	doc := md.Parser().Parse(text.NewReader(source))

	var entries []Entry
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering || n.Kind() != east.KindTableRow {
			return ast.WalkContinue, nil
		}
		first := n.FirstChild()
		if first == nil {
			return ast.WalkSkipChildren, nil
		}
		span, ok := first.FirstChild().(*ast.CodeSpan)
		if !ok {
			return ast.WalkSkipChildren, nil
		}
		code := strings.TrimSpace(nodeText(span, source))
		if !codePattern.MatchString(code) {
			return ast.WalkSkipChildren, nil
		}

		sev := severityOf(code)
		if second := first.NextSibling(); second != nil {
			if s := strings.ToLower(strings.TrimSpace(nodeText(second, source))); s != "" {
				sev = s
			}
		}
		entries = append(entries, Entry{Code: code, Severity: sev})
		return ast.WalkSkipChildren, nil
	})
	return dedupe(entries)
}

// ParseText collects every code literal in data.
func ParseText(data []byte) []Entry {
	var entries []Entry
	for _, m := range literalPattern.FindAll(data, -1) {
		code := string(m)
		entries = append(entries, Entry{Code: code, Severity: severityOf(code)})
	}
	return dedupe(entries)
}

// Codes returns the codes of entries as a set.
func Codes(entries []Entry) map[string]struct{} {
	set := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		set[e.Code] = struct{}{}
	}
	return set
}

// Severities maps each code to its severity.
func Severities(entries []Entry) map[string]string {
	m := make(map[string]string, len(entries))
	for _, e := range entries {
		m[e.Code] = e.Severity
	}
	return m
}

func nodeText(n ast.Node, source []byte) string {
	var buf bytes.Buffer
	_ = ast.Walk(n, func(c ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		if t, ok := c.(*ast.Text); ok {
			buf.Write(t.Segment.Value(source))
		}
		return ast.WalkContinue, nil
	})
	return buf.String()
}

func severityOf(code string) string {
	switch code[0] {
	case 'E':
		return "error"
	case 'W':
		return "warning"
	case 'I':
		return "info"
	case 'P':
		return "panic"
	}
	return ""
}

// dedupe sorts entries by code and keeps the first entry of each code.
func dedupe(entries []Entry) []Entry {
	slices.SortStableFunc(entries, func(a, b Entry) int {
		return strings.Compare(a.Code, b.Code)
	})
	return slices.CompactFunc(entries, func(a, b Entry) bool {
		return a.Code == b.Code
	})
}
