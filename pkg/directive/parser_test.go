package directive

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/CursiveCrow/spectest/pkg/diagnostic"
)

func TestParse_header(t *testing.T) {
	src := `// RUN: compile-fail
// DIAG: E-TYP-1901
// DIAG: E-RES-0100 trailing words ignored
// DIAG-NOT: W-SEM-0001
// SPEC: 5.2.1
// DESC: assignment of mismatched types
// XFAIL: tracked in #41
# SPEC_COV: typing.assign, typing.coerce
# ASSEMBLY: lib
# OUTPUT_PIPELINE: on
procedure main() -> i32 { result 0 }
`
	d, warnings := Parse(src)
	require.Empty(t, warnings)

	want := Header{
		Mode:           CompileFail,
		RequiredDiags:  []string{"E-TYP-1901", "E-RES-0100"},
		ForbiddenDiags: []string{"W-SEM-0001"},
		SpecRefs:       []string{"5.2.1"},
		Description:    "assignment of mismatched types",
		XFailReason:    "tracked in #41",
		CoverageRules:  []string{"typing.assign", "typing.coerce"},
		Assembly:       "lib",
		OutputPipeline: ToggleOn,
	}
	if diff := cmp.Diff(want, d.Header); diff != "" {
		t.Errorf("header mismatch (-want +got):\n%s", diff)
	}
	require.Empty(t, d.Lines)
}

func TestParse_runPassHeader(t *testing.T) {
	src := "// RUN: run-pass\n// STDOUT: hello\n// STDOUT: world\n// EXIT: 3\n"
	d, warnings := Parse(src)
	require.Empty(t, warnings)
	require.Equal(t, RunPass, d.Header.Mode)
	require.Equal(t, []string{"hello", "world"}, d.Header.Stdout)
	require.True(t, d.Header.HasExitCode)
	require.Equal(t, 3, d.Header.ExpectedExit())
}

func TestParse_repeatedSpec(t *testing.T) {
	d, warnings := Parse("// SPEC: 5.2.1\n// SPEC: 5.2.3\n// SPEC:\n")
	require.Empty(t, warnings)
	require.Equal(t, []string{"5.2.1", "5.2.3"}, d.Header.SpecRefs)
}

func TestParse_defaults(t *testing.T) {
	d, warnings := Parse("procedure main() -> i32 { result 0 }\n")
	require.Empty(t, warnings)
	require.Equal(t, CompilePass, d.Header.Mode)
	require.False(t, d.Header.HasExitCode)
	require.Equal(t, 0, d.Header.ExpectedExit())
	require.Empty(t, d.Header.SkipReason)
	require.Empty(t, d.Header.XFailReason)
}

func TestParse_lastWins(t *testing.T) {
	d, _ := Parse("// RUN: run-pass\n// SKIP: first\n// RUN: compile-fail\n// SKIP: second\n")
	require.Equal(t, CompileFail, d.Header.Mode)
	require.Equal(t, "second", d.Header.SkipReason)
}

func TestParse_malformed(t *testing.T) {
	tests := []struct {
		name    string
		src     string
		check   func(t *testing.T, d *Directives)
		warning string
	}{
		{
			name:    "unknown_mode",
			src:     "// RUN: compile-maybe\n",
			warning: "unknown run mode",
			check: func(t *testing.T, d *Directives) {
				require.Equal(t, CompilePass, d.Header.Mode)
			},
		},
		{
			name:    "bad_exit",
			src:     "// RUN: run-pass\n// EXIT: seven\n",
			warning: "not an integer",
			check: func(t *testing.T, d *Directives) {
				require.Equal(t, RunPass, d.Header.Mode)
				require.False(t, d.Header.HasExitCode)
			},
		},
		{
			name:    "bad_toggle",
			src:     "# OUTPUT_PIPELINE: maybe\n",
			warning: "OUTPUT_PIPELINE",
			check: func(t *testing.T, d *Directives) {
				require.Equal(t, ToggleUnset, d.Header.OutputPipeline)
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, warnings := Parse(tt.src)
			require.Len(t, warnings, 1)
			require.Contains(t, warnings[0].Message, tt.warning)
			tt.check(t, d)
		})
	}
}

func TestParse_lineDirectives(t *testing.T) {
	src := strings.Join([]string{
		"// RUN: compile-fail",                                // 1
		"procedure main() -> i32 {",                           // 2
		"    let x: i32 = true //~ ERROR E-TYP-1901: mismatch", // 3
		"    //~^ WARN W-SEM-0001",                            // 4
		"    //~v INFO I-GEN-0002",                            // 5
		"    let y = x",                                       // 6
		"    //~3 ERROR E-RES-0100",                           // 7
		"    //~-2 ERROR E-RES-0101: back two",                // 8
		"    // ~ ERROR E-TYP-1901 not a directive",           // 9
		"}",
	}, "\n")

	d, warnings := Parse(src)
	require.Empty(t, warnings)

	want := []LineDirective{
		{SourceLine: 3, TargetLine: 3, Offset: 0, Severity: "ERROR", Code: "E-TYP-1901", Message: "mismatch", HasMessage: true},
		{SourceLine: 4, TargetLine: 3, Offset: -1, Severity: "WARN", Code: "W-SEM-0001"},
		{SourceLine: 5, TargetLine: 6, Offset: 1, Severity: "INFO", Code: "I-GEN-0002"},
		{SourceLine: 7, TargetLine: 10, Offset: 3, Severity: "ERROR", Code: "E-RES-0100"},
		{SourceLine: 8, TargetLine: 6, Offset: -2, Severity: "ERROR", Code: "E-RES-0101", Message: "back two", HasMessage: true},
	}
	if diff := cmp.Diff(want, d.Lines); diff != "" {
		t.Errorf("line directives mismatch (-want +got):\n%s", diff)
	}
}

func TestParse_onePerLine(t *testing.T) {
	d, _ := Parse("x //~ ERROR E-TYP-1901 //~ ERROR E-TYP-1902\n")
	require.Len(t, d.Lines, 1)
	require.Equal(t, "E-TYP-1901", d.Lines[0].Code)
}

func TestDirectives_Expected(t *testing.T) {
	d, _ := Parse("a\nb //~^ ERROR E-TYP-1901: bad\n")
	got := d.Expected()
	require.Equal(t, []diagnostic.Expected{
		{TargetLine: 1, Severity: "ERROR", Code: "E-TYP-1901", Message: "bad", HasMessage: true},
	}, got)
}

func TestParseFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "t.cursive")
	require.NoError(t, os.WriteFile(path, []byte("// RUN: run-fail\n// DIAG: P-RUN-0001\n"), 0o644))

	d, warnings, err := ParseFile(path)
	require.NoError(t, err)
	require.Empty(t, warnings)
	require.Equal(t, RunFail, d.Header.Mode)
	require.Equal(t, []string{"P-RUN-0001"}, d.Header.RequiredDiags)

	_, _, err = ParseFile(filepath.Join(t.TempDir(), "missing.cursive"))
	require.Error(t, err)
}

func TestParseRunMode(t *testing.T) {
	for _, name := range []string{"compile-pass", "compile-fail", "run-pass", "run-fail"} {
		mode, err := ParseRunMode(name)
		require.NoError(t, err)
		require.Equal(t, name, mode.String())
	}
	_, err := ParseRunMode("Run-Pass")
	require.Error(t, err)
	require.True(t, RunFail.Runs())
	require.False(t, CompileFail.Runs())
}

func TestCodesMentioned(t *testing.T) {
	src := "// DIAG: E-TYP-1901\n//~ WARN W-SEM-0001\n// again E-TYP-1901 and P-RUN-0002, not XE-TYP-1901\n"
	require.Equal(t, []string{"E-TYP-1901", "W-SEM-0001", "P-RUN-0002"}, CodesMentioned(src))
}
