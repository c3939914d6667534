// Package config loads harness settings from a config file, the
// environment, and well-known locations next to the tests root.
package config

import (
	"errors"
	"fmt"
	"io"
	"maps"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	shellwords "github.com/mattn/go-shellwords"
	yaml "gopkg.in/yaml.v3"
)

// Environment variables read by the harness.
const (
	EnvCompiler      = "SPECTEST_COMPILER"
	EnvCompilerFlags = "SPECTEST_COMPILER_FLAGS"
	EnvLLVMBin       = "C0_LLVM_BIN"
)

const (
	DefaultTimeout = 60 * time.Second
	compilerName   = "cursivec0"
	runtimeName    = "cursive0_rt"
)

// FileNames are the config files looked up in the tests root, in order.
var FileNames = []string{"spectest.toml", "spectest.yaml", "spectest.yml", "config.toml"}

// Config holds every harness setting.
type Config struct {
	Compiler CompilerConfig    `toml:"compiler" yaml:"compiler"`
	Runtime  RuntimeConfig     `toml:"runtime" yaml:"runtime"`
	Harness  HarnessConfig     `toml:"harness" yaml:"harness"`
	Env      map[string]string `toml:"env" yaml:"env"` // extra child environment
}

// CompilerConfig describes the compiler under test.
type CompilerConfig struct {
	// Path is the compiler executable.
	Path string `toml:"path" yaml:"path"`

	// Args are extra arguments, split with shell quoting rules.
	Args string `toml:"args" yaml:"args"`

	// DiagJSON reads diagnostics from the JSON payload instead of stderr.
	DiagJSON bool `toml:"diag_json" yaml:"diag_json"`

	// NoOutputForCompileOnly skips codegen for compile-only tests.
	NoOutputForCompileOnly bool `toml:"no_output_for_compile_only" yaml:"no_output_for_compile_only"`

	// LLVMBin is exported to the compiler as C0_LLVM_BIN.
	LLVMBin string `toml:"llvm_bin" yaml:"llvm_bin"`
}

// RuntimeConfig describes the runtime support library linked into programs.
type RuntimeConfig struct {
	Path string `toml:"path" yaml:"path"`
}

// HarnessConfig controls discovery and scheduling.
type HarnessConfig struct {
	Root       string        `toml:"root" yaml:"root"`
	Jobs       int           `toml:"jobs" yaml:"jobs"`
	Timeout    time.Duration `toml:"timeout" yaml:"timeout"`
	Categories []string      `toml:"categories" yaml:"categories"`
	KeepTemp   bool          `toml:"keep_temp" yaml:"keep_temp"`
	TempRoot   string        `toml:"temp_root" yaml:"temp_root"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Harness: HarnessConfig{
			Jobs:    runtime.GOMAXPROCS(0),
			Timeout: DefaultTimeout,
		},
	}
}

// Load reads the config file at path over the defaults. The format is
// chosen by extension.
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".toml":
		md, err := toml.Decode(string(data), cfg)
		if err != nil {
			return nil, fmt.Errorf("%s: failed to parse TOML: %w", path, err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			return nil, fmt.Errorf("%s: unknown keys %v", path, undecoded)
		}
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(strings.NewReader(string(data)))
		dec.KnownFields(true)
		// An empty document leaves the defaults untouched.
		if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%s: failed to parse YAML: %w", path, err)
		}
	default:
		return nil, fmt.Errorf("%s: unsupported config format %q", path, ext)
	}

	// Relative paths in the file are relative to the file.
	base := filepath.Dir(path)
	cfg.Compiler.Path = resolve(base, cfg.Compiler.Path)
	cfg.Compiler.LLVMBin = resolve(base, cfg.Compiler.LLVMBin)
	cfg.Runtime.Path = resolve(base, cfg.Runtime.Path)
	cfg.Harness.Root = resolve(base, cfg.Harness.Root)
	return cfg, nil
}

// Find returns the first config file present in dir, or "" when there is none.
func Find(dir string) (string, error) {
	for _, name := range FileNames {
		p := filepath.Join(dir, name)
		if _, err := os.Stat(p); err == nil {
			return p, nil
		} else if !errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("stat %q: %w", p, err)
		}
	}
	return "", nil
}

func resolve(base, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(base, p)
}

// ApplyEnv overlays settings taken from the process environment.
func (c *Config) ApplyEnv(getenv func(string) string) {
	if v := getenv(EnvCompiler); v != "" {
		c.Compiler.Path = v
	}
	if v := getenv(EnvLLVMBin); v != "" && c.Compiler.LLVMBin == "" {
		c.Compiler.LLVMBin = v
	}
	if v := getenv(EnvCompilerFlags); v != "" {
		c.Compiler.Args = strings.TrimSpace(c.Compiler.Args + " " + v)
	}
}

// CompilerArgs splits the configured extra compiler arguments.
func (c *Config) CompilerArgs() ([]string, error) {
	if strings.TrimSpace(c.Compiler.Args) == "" {
		return nil, nil
	}
	args, err := shellwords.Parse(c.Compiler.Args)
	if err != nil {
		return nil, fmt.Errorf("compiler args: %w", err)
	}
	return args, nil
}

// ChildEnv is the environment added to every compiler invocation.
func (c *Config) ChildEnv() map[string]string {
	env := make(map[string]string, len(c.Env)+1)
	maps.Copy(env, c.Env)
	if c.Compiler.LLVMBin != "" {
		env[EnvLLVMBin] = c.Compiler.LLVMBin
	}
	return env
}

// Detect fills in the compiler and runtime paths from the usual build
// locations around the tests root when they are not configured.
func (c *Config) Detect() {
	if c.Harness.Root == "" {
		return
	}
	projectRoot := filepath.Dir(filepath.Clean(c.Harness.Root))
	if c.Compiler.Path == "" {
		c.Compiler.Path = firstExisting(candidates(projectRoot, compilerName+exeSuffix()))
	}
	if c.Runtime.Path == "" {
		c.Runtime.Path = firstExisting(candidates(projectRoot, runtimeName+libSuffix()))
	}
}

func candidates(projectRoot, file string) []string {
	return []string{
		filepath.Join(projectRoot, "build", file),
		filepath.Join(projectRoot, "build", "Release", file),
		filepath.Join(projectRoot, "build", "Debug", file),
		filepath.Join(projectRoot, "build", "runtime", file),
		filepath.Join(projectRoot, "runtime", file),
	}
}

func firstExisting(paths []string) string {
	for _, p := range paths {
		if info, err := os.Stat(p); err == nil && !info.IsDir() {
			return p
		}
	}
	return ""
}

func exeSuffix() string {
	if runtime.GOOS == "windows" {
		return ".exe"
	}
	return ""
}

func libSuffix() string {
	if runtime.GOOS == "windows" {
		return ".lib"
	}
	return ".a"
}

// Validate reports configuration that cannot produce a run.
func (c *Config) Validate() error {
	var errs []error
	if c.Harness.Root == "" {
		errs = append(errs, errors.New("tests root is not set"))
	} else if info, err := os.Stat(c.Harness.Root); err != nil || !info.IsDir() {
		errs = append(errs, fmt.Errorf("tests root %q is not a directory", c.Harness.Root))
	}
	if c.Compiler.Path == "" {
		errs = append(errs, errors.New("compiler not found; set --compiler, [compiler].path or "+EnvCompiler))
	}
	if c.Harness.Jobs < 1 {
		errs = append(errs, fmt.Errorf("jobs must be at least 1, got %d", c.Harness.Jobs))
	}
	// Zero disables the per-test bound.
	if c.Harness.Timeout < 0 {
		errs = append(errs, fmt.Errorf("timeout must not be negative, got %s", c.Harness.Timeout))
	}
	if _, err := c.CompilerArgs(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
