// Package discovery finds conformance tests under a tests root.
package discovery

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/spf13/afero"
)

const (
	// SourceExt is the extension of single-file tests.
	SourceExt = ".cursive"

	// ExpectFile marks a directory as a multi-file project test.
	ExpectFile = "expect.toml"
)

// DefaultCategories are the top-level test directories searched by default.
var DefaultCategories = []string{"ui", "run-pass", "run-fail", "codegen"}

// ErrInvalidFilter is returned for a malformed filter pattern.
var ErrInvalidFilter = errors.New("invalid filter pattern")

// TestCase is one discovered test.
type TestCase struct {
	// Name is the slash-separated path relative to the tests root. It is
	// the stable identifier used for sorting and reporting.
	Name string `json:"name"`

	// Path is the file (or project directory) on disk.
	Path string `json:"path"`

	// Category is the top-level directory the test lives in.
	Category string `json:"category"`

	// IsProject is set for directory tests described by expect.toml.
	IsProject bool `json:"is_project"`
}

// Options configures discovery.
type Options struct {
	// Root is the tests root directory.
	Root string

	// Categories limits the search. Empty means DefaultCategories.
	Categories []string

	// Filter is an optional glob matched against test names. Patterns
	// without a slash also match against the final path element.
	Filter string
}

// Discover walks the tests root and returns every matching test sorted by name.
func Discover(fsys afero.Fs, opts Options) ([]TestCase, error) {
	if opts.Filter != "" && !doublestar.ValidatePattern(opts.Filter) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidFilter, opts.Filter)
	}
	categories := opts.Categories
	if len(categories) == 0 {
		categories = DefaultCategories
	}

	var tests []TestCase
	for _, category := range categories {
		dir := filepath.Join(opts.Root, category)
		ok, err := afero.DirExists(fsys, dir)
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", dir, err)
		}
		if !ok {
			slog.Debug("category directory missing", "dir", dir)
			continue
		}

		found, err := walkCategory(fsys, opts.Root, category, dir)
		if err != nil {
			return nil, err
		}
		tests = append(tests, found...)
	}

	if opts.Filter != "" {
		tests = slices.DeleteFunc(tests, func(tc TestCase) bool {
			return !matchFilter(opts.Filter, tc.Name)
		})
	}

	slices.SortFunc(tests, func(a, b TestCase) int {
		return strings.Compare(a.Name, b.Name)
	})
	return tests, nil
}

func walkCategory(fsys afero.Fs, root, category, dir string) ([]TestCase, error) {
	var tests []TestCase
	err := afero.Walk(fsys, dir, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return fmt.Errorf("walk %s: %w", p, err)
		}

		if info.IsDir() {
			if p != dir && strings.HasPrefix(info.Name(), ".") {
				return filepath.SkipDir
			}
			isProject, err := afero.Exists(fsys, filepath.Join(p, ExpectFile))
			if err != nil {
				return err
			}
			if !isProject {
				return nil
			}
			tc, err := newTestCase(root, category, p, true)
			if err != nil {
				return err
			}
			tests = append(tests, tc)
			// Sources inside a project belong to it.
			return filepath.SkipDir
		}

		if filepath.Ext(p) != SourceExt {
			return nil
		}
		tc, err := newTestCase(root, category, p, false)
		if err != nil {
			return err
		}
		tests = append(tests, tc)
		return nil
	})
	if err != nil && !errors.Is(err, fs.SkipDir) {
		return nil, err
	}
	return tests, nil
}

func newTestCase(root, category, p string, isProject bool) (TestCase, error) {
	rel, err := filepath.Rel(root, p)
	if err != nil {
		return TestCase{}, fmt.Errorf("relative path of %s: %w", p, err)
	}
	return TestCase{
		Name:      filepath.ToSlash(rel),
		Path:      p,
		Category:  category,
		IsProject: isProject,
	}, nil
}

func matchFilter(pattern, name string) bool {
	// ValidatePattern ran up front, so Match cannot fail here.
	if ok, _ := doublestar.Match(pattern, name); ok {
		return true
	}
	if !strings.Contains(pattern, "/") {
		ok, _ := doublestar.Match(pattern, path.Base(name))
		return ok
	}
	return false
}
