package specindex

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const sampleSpec = "# Diagnostics\n\n" +
	"Some prose mentioning `E-TYP-9999` outside a table.\n\n" +
	"| Code | Severity | Condition |\n" +
	"| ---- | -------- | --------- |\n" +
	"| `E-TYP-1901` | Error | Type mismatch |\n" +
	"| `W-SEM-0001` | Warning | Unused binding |\n" +
	"| `E-MOD-1204` | Error | Import cycle |\n" +
	"| E-TYP-1902 | Error | Not a code span |\n" +
	"| `E-TYP-1901` | Error | Duplicate row |\n"

func TestParseMarkdown(t *testing.T) {
	got := ParseMarkdown([]byte(sampleSpec))
	require.Equal(t, []Entry{
		{Code: "E-MOD-1204", Severity: "error"},
		{Code: "E-TYP-1901", Severity: "error"},
		{Code: "W-SEM-0001", Severity: "warning"},
	}, got)
}

func TestParseText(t *testing.T) {
	got := ParseText([]byte("E-TYP-1901\tType mismatch\nW-SEM-0001 unused\nP-RUN-0001 panic\nE-TYP-1901 again\n"))
	require.Equal(t, []Entry{
		{Code: "E-TYP-1901", Severity: "error"},
		{Code: "P-RUN-0001", Severity: "panic"},
		{Code: "W-SEM-0001", Severity: "warning"},
	}, got)
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	md := filepath.Join(dir, "Cursive0.md")
	require.NoError(t, os.WriteFile(md, []byte(sampleSpec), 0o644))
	entries, err := Load(md)
	require.NoError(t, err)
	require.Len(t, entries, 3)

	txt := filepath.Join(dir, "codes.txt")
	require.NoError(t, os.WriteFile(txt, []byte(sampleSpec), 0o644))
	entries, err = Load(txt)
	require.NoError(t, err)
	require.Contains(t, Codes(entries), "E-TYP-9999")
	require.Contains(t, Codes(entries), "E-TYP-1902")

	_, err = Load(filepath.Join(dir, "missing.md"))
	require.Error(t, err)
}

func TestLoad_fixture(t *testing.T) {
	entries, err := Load(filepath.Join("..", "..", "testdata", "spec", "diagnostics.md"))
	require.NoError(t, err)
	require.Equal(t, []Entry{
		{Code: "E-MOD-1304", Severity: "error"},
		{Code: "E-MOD-1305", Severity: "error"},
		{Code: "E-TYP-1901", Severity: "error"},
		{Code: "I-TYP-0001", Severity: "info"},
		{Code: "P-RUN-0003", Severity: "panic"},
		{Code: "W-NAM-2001", Severity: "warning"},
	}, entries)
}
