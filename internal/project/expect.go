package project

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"github.com/CursiveCrow/spectest/pkg/directive"
)

// ExpectFile describes the expectations of a project test.
const ExpectFile = "expect.toml"

// Expect is a decoded expect.toml.
type Expect struct {
	Mode        string     `toml:"mode"`
	Diag        string     `toml:"diag"`
	Diags       []string   `toml:"diags"`
	Forbidden   []string   `toml:"forbidden"`
	Stdout      []string   `toml:"stdout"`
	ExitCode    *int       `toml:"exit_code"`
	Skip        string     `toml:"skip"`
	XFail       string     `toml:"xfail"`
	Description string     `toml:"description"`
	Spec        StringList `toml:"spec"`
	Assembly    string     `toml:"assembly"`
}

// StringList decodes from either a single string or an array of strings.
type StringList []string

func (l *StringList) UnmarshalTOML(v any) error {
	switch v := v.(type) {
	case string:
		*l = StringList{v}
	case []any:
		out := make(StringList, 0, len(v))
		for i, item := range v {
			s, ok := item.(string)
			if !ok {
				return fmt.Errorf("element %d: expected a string, got %T", i, item)
			}
			out = append(out, s)
		}
		*l = out
	default:
		return fmt.Errorf("expected a string or an array of strings, got %T", v)
	}
	return nil
}

// LoadExpect reads the expect.toml in dir.
func LoadExpect(dir string) (*Expect, error) {
	var e Expect
	md, err := toml.DecodeFile(filepath.Join(dir, ExpectFile), &e)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", ExpectFile, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("decode %s: unknown keys %v", ExpectFile, undecoded)
	}
	return &e, nil
}

// Header converts the expectations to the directive header used for
// single-file tests. Without an explicit mode a project that declares
// diagnostics is a compile-fail test.
func (e *Expect) Header() (directive.Header, error) {
	h := directive.Header{
		ForbiddenDiags: e.Forbidden,
		Stdout:         e.Stdout,
		SkipReason:     e.Skip,
		XFailReason:    e.XFail,
		Description:    e.Description,
		SpecRefs:       []string(e.Spec),
		Assembly:       e.Assembly,
	}
	if e.Diag != "" {
		h.RequiredDiags = append(h.RequiredDiags, e.Diag)
	}
	h.RequiredDiags = append(h.RequiredDiags, e.Diags...)
	if e.ExitCode != nil {
		h.ExitCode, h.HasExitCode = *e.ExitCode, true
	}

	switch {
	case e.Mode != "":
		mode, err := directive.ParseRunMode(e.Mode)
		if err != nil {
			return h, fmt.Errorf("%s: %w", ExpectFile, err)
		}
		h.Mode = mode
	case len(h.RequiredDiags) > 0:
		h.Mode = directive.CompileFail
	default:
		h.Mode = directive.CompilePass
	}
	return h, nil
}

func exists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}
