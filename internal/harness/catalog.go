package harness

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"

	"github.com/puzpuzpuz/xsync/v4"
	"golang.org/x/sync/errgroup"

	"github.com/CursiveCrow/spectest/internal/discovery"
	"github.com/CursiveCrow/spectest/internal/project"
	"github.com/CursiveCrow/spectest/pkg/diagnostic"
	"github.com/CursiveCrow/spectest/pkg/directive"
)

// Expectations is what a test declares about its own outcome.
type Expectations struct {
	Header   directive.Header
	Expected []diagnostic.Expected

	// Mentioned holds every diagnostic code the test refers to.
	Mentioned []string
}

// Catalog caches parsed expectations by test name so that discovery-time
// scans and execution share one parse per test.
type Catalog struct {
	entries *xsync.Map[string, *Expectations]
}

func NewCatalog() *Catalog {
	return &Catalog{entries: xsync.NewMap[string, *Expectations]()}
}

// Get returns the expectations of tc, parsing them on first use.
// Concurrent callers for the same test share a single parse. Failures are
// not cached.
func (c *Catalog) Get(tc discovery.TestCase) (*Expectations, error) {
	var err error
	exp, _ := c.entries.LoadOrCompute(tc.Name, func() (*Expectations, bool) {
		var loaded *Expectations
		loaded, err = load(tc)
		return loaded, err != nil
	})
	if err != nil {
		return nil, err
	}
	return exp, nil
}

// Preload parses every test concurrently. Tests that fail to parse are
// logged and left for the executor to report.
func (c *Catalog) Preload(ctx context.Context, tests []discovery.TestCase) {
	var g errgroup.Group
	g.SetLimit(runtime.GOMAXPROCS(0))
	for _, tc := range tests {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if _, err := c.Get(tc); err != nil {
				slog.Warn("cannot read test expectations", "test", tc.Name, "err", err)
			}
			return nil
		})
	}
	_ = g.Wait()
}

// Mentioned returns the union of codes referenced by all cached tests.
func (c *Catalog) Mentioned() map[string]struct{} {
	codes := make(map[string]struct{})
	c.entries.Range(func(_ string, exp *Expectations) bool {
		for _, code := range exp.Mentioned {
			codes[code] = struct{}{}
		}
		return true
	})
	return codes
}

func load(tc discovery.TestCase) (*Expectations, error) {
	if tc.IsProject {
		return loadProject(tc)
	}

	source, err := os.ReadFile(tc.Path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", tc.Name, err)
	}
	d, warnings := directive.Parse(string(source))
	for _, w := range warnings {
		slog.Warn("ignoring malformed directive", "test", tc.Name, "line", w.Line, "msg", w.Message)
	}
	return &Expectations{
		Header:    d.Header,
		Expected:  d.Expected(),
		Mentioned: directive.CodesMentioned(string(source)),
	}, nil
}

func loadProject(tc discovery.TestCase) (*Expectations, error) {
	e, err := project.LoadExpect(tc.Path)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", tc.Name, err)
	}
	h, err := e.Header()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", tc.Name, err)
	}

	exp := &Expectations{Header: h}
	exp.Mentioned = append(exp.Mentioned, h.RequiredDiags...)
	exp.Mentioned = append(exp.Mentioned, h.ForbiddenDiags...)

	// Codes cited anywhere in the project's sources count as mentioned.
	err = filepath.WalkDir(tc.Path, func(p string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() || filepath.Ext(p) != discovery.SourceExt {
			return err
		}
		data, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		exp.Mentioned = append(exp.Mentioned, directive.CodesMentioned(string(data))...)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", tc.Name, err)
	}
	return exp, nil
}
