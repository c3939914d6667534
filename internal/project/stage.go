package project

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"golang.org/x/sync/errgroup"

	"github.com/CursiveCrow/spectest/pkg/directive"
)

const (
	// SingleFileAssembly is the assembly name generated for single-file tests.
	SingleFileAssembly = "test"

	sourceExt  = ".cursive"
	runtimeDir = "runtime"
)

// StageOptions configures workspace creation.
type StageOptions struct {
	// TempRoot is the parent of the workspace. Empty uses os.TempDir.
	TempRoot string

	// RuntimeLib is copied into the workspace's runtime directory when set.
	RuntimeLib string

	// Keep leaves the workspace on disk after Close.
	Keep bool
}

// Workspace is a private, disposable copy of one test.
type Workspace struct {
	// Dir is the workspace root.
	Dir string

	// Manifest is the path of the workspace's Cursive.toml.
	Manifest string

	keep bool
}

// Close removes the workspace unless it was staged with Keep.
func (w *Workspace) Close() error {
	if w.keep {
		slog.Info("keeping workspace", "dir", w.Dir)
		return nil
	}
	return os.RemoveAll(w.Dir)
}

// StageFile builds a one-assembly project around the single source at src.
func StageFile(src string, opts StageOptions) (*Workspace, error) {
	source, err := os.ReadFile(src)
	if err != nil {
		return nil, fmt.Errorf("read test source: %w", err)
	}

	ws, err := newWorkspace(opts)
	if err != nil {
		return nil, err
	}

	err = ws.stageFile(string(source), opts)
	if err != nil {
		return nil, errors.Join(err, ws.Close())
	}
	return ws, nil
}

func (w *Workspace) stageFile(source string, opts StageOptions) error {
	if err := writeManifest(w.Manifest); err != nil {
		return err
	}

	srcDir := filepath.Join(w.Dir, "src")
	if err := os.MkdirAll(srcDir, 0o755); err != nil {
		return fmt.Errorf("create source dir: %w", err)
	}
	main := filepath.Join(srcDir, "main"+sourceExt)
	if err := os.WriteFile(main, []byte(directive.StripAnnotations(source)), 0o644); err != nil {
		return fmt.Errorf("write test source: %w", err)
	}
	return w.copyRuntime(opts.RuntimeLib)
}

// StageProject copies the project directory at src into a fresh workspace.
func StageProject(src string, opts StageOptions) (*Workspace, error) {
	if !exists(filepath.Join(src, ManifestFile)) {
		return nil, fmt.Errorf("project %s has no %s", src, ManifestFile)
	}

	ws, err := newWorkspace(opts)
	if err != nil {
		return nil, err
	}
	if err := copyTree(ws.Dir, src); err != nil {
		return nil, errors.Join(err, ws.Close())
	}
	if err := ws.copyRuntime(opts.RuntimeLib); err != nil {
		return nil, errors.Join(err, ws.Close())
	}
	return ws, nil
}

func newWorkspace(opts StageOptions) (*Workspace, error) {
	dir, err := os.MkdirTemp(opts.TempRoot, "spectest-")
	if err != nil {
		return nil, fmt.Errorf("create workspace: %w", err)
	}
	return &Workspace{
		Dir:      dir,
		Manifest: filepath.Join(dir, ManifestFile),
		keep:     opts.Keep,
	}, nil
}

func writeManifest(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create manifest: %w", err)
	}
	defer f.Close()

	enc := toml.NewEncoder(f)
	enc.Indent = ""
	err = enc.Encode(struct {
		Assembly Assembly `toml:"assembly"`
	}{
		Assembly: Assembly{Name: SingleFileAssembly, Kind: "executable", Root: "src"},
	})
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	return f.Close()
}

func (w *Workspace) copyRuntime(lib string) error {
	if lib == "" {
		return nil
	}
	info, err := os.Stat(lib)
	if err != nil {
		return fmt.Errorf("runtime library: %w", err)
	}
	dir := filepath.Join(w.Dir, runtimeDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create runtime dir: %w", err)
	}
	return copyFile(filepath.Join(dir, filepath.Base(lib)), lib, info.Mode(), false)
}

// copyTree copies src into dst in parallel. Dot files and previous build
// output are skipped, and test-only annotations are stripped from sources.
func copyTree(dst, src string) error {
	src, err := filepath.EvalSymlinks(src)
	if err != nil {
		return fmt.Errorf("evaluate symlinks for %q: %w", src, err)
	}

	var errg errgroup.Group
	walkErr := filepath.Walk(src, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return fmt.Errorf("walk %q: %w", path, err)
		}
		if path == src {
			return nil
		}

		name := info.Name()
		if strings.HasPrefix(name, ".") || (info.IsDir() && name == DefaultOutDir && filepath.Dir(path) == src) {
			if info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		dstPath := filepath.Join(dst, path[len(src):])
		if info.IsDir() {
			if err := os.MkdirAll(dstPath, 0o755); err != nil {
				return fmt.Errorf("create directory %q: %w", dstPath, err)
			}
			return nil
		}
		if !info.Mode().IsRegular() {
			return nil
		}

		errg.Go(func() error {
			return copyFile(dstPath, path, info.Mode(), filepath.Ext(path) == sourceExt)
		})
		return nil
	})
	return errors.Join(errg.Wait(), walkErr)
}

// copyFile copies the contents and mode of src to dst.
func copyFile(dst, src string, mode os.FileMode, strip bool) error {
	if strip {
		data, err := os.ReadFile(src)
		if err != nil {
			return fmt.Errorf("read %q: %w", src, err)
		}
		return os.WriteFile(dst, []byte(directive.StripAnnotations(string(data))), mode.Perm())
	}

	srcF, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open source file %q: %w", src, err)
	}
	defer srcF.Close()

	dstF, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode.Perm())
	if err != nil {
		return fmt.Errorf("create destination file %q: %w", dst, err)
	}
	if _, err := io.Copy(dstF, srcF); err != nil {
		dstF.Close() // io.Copy already failed
		return fmt.Errorf("copy %q to %q: %w", src, dst, err)
	}
	if err := dstF.Close(); err != nil {
		return fmt.Errorf("close destination file %q: %w", dst, err)
	}
	return nil
}
