// Package project reads Cursive project manifests and stages tests into
// private workspaces the compiler can build.
package project

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/BurntSushi/toml"
)

// ManifestFile is the project manifest file name.
const ManifestFile = "Cursive.toml"

// DefaultOutDir is used when an assembly does not name one.
const DefaultOutDir = "build"

// ErrNoExecutable is returned when a manifest declares no executable assembly.
var ErrNoExecutable = errors.New("no executable assembly")

// Assembly is one build target of a project.
type Assembly struct {
	Name   string `toml:"name"`
	Kind   string `toml:"kind"`
	Root   string `toml:"root"`
	OutDir string `toml:"out_dir,omitempty"`
}

// Manifest is a decoded Cursive.toml.
type Manifest struct {
	Assemblies []Assembly
}

// LoadManifest reads the manifest in dir.
func LoadManifest(dir string) (*Manifest, error) {
	data, err := os.ReadFile(filepath.Join(dir, ManifestFile))
	if err != nil {
		return nil, err
	}
	return ParseManifest(data)
}

// ParseManifest decodes manifest text. The assemblies live under the
// "assembly" key, or "assemblies" when that is absent, as either a single
// table or an array of tables.
func ParseManifest(data []byte) (*Manifest, error) {
	var raw struct {
		Assembly   toml.Primitive `toml:"assembly"`
		Assemblies toml.Primitive `toml:"assemblies"`
	}
	md, err := toml.Decode(string(data), &raw)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", ManifestFile, err)
	}

	var prim toml.Primitive
	switch {
	case md.IsDefined("assembly"):
		prim = raw.Assembly
	case md.IsDefined("assemblies"):
		prim = raw.Assemblies
	default:
		return nil, fmt.Errorf("decode %s: missing [assembly]", ManifestFile)
	}

	m := &Manifest{}
	if err := md.PrimitiveDecode(prim, &m.Assemblies); err != nil {
		var one Assembly
		if err := md.PrimitiveDecode(prim, &one); err != nil {
			return nil, fmt.Errorf("decode %s assembly: %w", ManifestFile, err)
		}
		m.Assemblies = []Assembly{one}
	}
	for i, a := range m.Assemblies {
		if a.Name == "" {
			return nil, fmt.Errorf("decode %s: assembly %d has no name", ManifestFile, i)
		}
	}
	return m, nil
}

// Executable returns the executable assembly called name, or the first
// executable assembly when name is empty.
func (m *Manifest) Executable(name string) (*Assembly, error) {
	for i := range m.Assemblies {
		a := &m.Assemblies[i]
		if a.Kind != "executable" {
			continue
		}
		if name == "" || a.Name == name {
			return a, nil
		}
	}
	if name != "" {
		return nil, fmt.Errorf("%w named %q", ErrNoExecutable, name)
	}
	return nil, ErrNoExecutable
}

// ExecutablePath is where the compiler writes the binary for a.
func ExecutablePath(projectRoot string, a *Assembly) string {
	outDir := a.OutDir
	if outDir == "" {
		outDir = DefaultOutDir
	}
	return filepath.Join(projectRoot, outDir, "bin", a.Name+exeSuffix())
}

func exeSuffix() string {
	if runtime.GOOS == "windows" {
		return ".exe"
	}
	return ""
}
