// Package main implements the CLI driver for the spectest conformance harness.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"runtime/pprof"
	"syscall"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/CursiveCrow/spectest/internal/config"
	"github.com/CursiveCrow/spectest/internal/discovery"
	"github.com/CursiveCrow/spectest/internal/harness"
	"github.com/CursiveCrow/spectest/internal/report"
	"github.com/CursiveCrow/spectest/internal/specindex"
	"github.com/CursiveCrow/spectest/internal/toolchain"
)

// Config holds all command-line options.
type Config struct {
	Root       string        // tests root directory
	ConfigFile string        // explicit config file
	Filter     string        // glob over test names
	Categories []string      // top-level test directories
	Jobs       int           // concurrent tests
	Timeout    time.Duration // per-process bound
	Verbose    bool          // detail for every test plus debug logging
	Format     string        // report format
	Output     string        // report file; stdout when empty
	Coverage   bool          // append diagnostic-code coverage
	SpecIndex  string        // spec document listing known codes
	List       bool          // list tests without running them
	Compiler   string        // compiler under test
	Runtime    string        // runtime support library
	DiagJSON   bool          // read diagnostics as JSON
	NoOutput   bool          // skip codegen for compile-only tests
	KeepTemp   bool          // keep staged workspaces
	UI         bool          // live progress view
	NoColor    bool          // disable ANSI colors
	Profile    bool          // enables CPU and memory profiling
}

const (
	exitFailures    = 1
	exitError       = 2
	exitInterrupted = 130
)

var (
	// Set via ldflags during build.
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
)

var cfg Config

func main() {
	if err := newRootCmd().Execute(); err != nil {
		_ = teardown(nil, nil)
		if err.Error() != "" {
			fmt.Fprintln(os.Stderr, err.Error())
		}
		var cErr *codedError
		if errors.As(err, &cErr) {
			os.Exit(cErr.code)
		}
		os.Exit(exitError)
	}
}

func newRootCmd() *cobra.Command {
	var rootCmd = &cobra.Command{
		Use:   "spectest [tests-root]",
		Short: "Run the Cursive conformance suite against a compiler",
		Long: `spectest discovers conformance tests, compiles each one with the
compiler under test, and checks the outcome against the directives
written in the test source.

Exit status is 0 when every test passed, was skipped, or failed as
expected; 1 when any test failed or unexpectedly passed; 2 on a harness
error.`,
		Example: `  spectest tests                          # Run the whole suite
  spectest -f 'ui/**/generics*' tests     # Run matching tests
  spectest --format junit -o report.xml   # JUnit report for CI
  spectest --coverage --spec-index docs/Cursive0.md tests
  spectest --list tests                   # List tests only`,
		Args:               cobra.MaximumNArgs(1),
		RunE:               runCommand,
		PersistentPreRunE:  setup,
		PersistentPostRunE: teardown,
		SilenceUsage:       true,
		SilenceErrors:      true,
		Version:            version,
	}

	rootCmd.SetVersionTemplate(fmt.Sprintf("spectest version %s\n  commit: %s\n  built:  %s\n", version, gitCommit, buildTime))

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfg.Root, "root", "", "Tests root directory (default \"tests\")")
	flags.StringVarP(&cfg.ConfigFile, "config", "c", "", "Config file (default: spectest.toml or spectest.yaml in the tests root)")
	flags.StringVarP(&cfg.Filter, "filter", "f", "", "Only run tests whose name matches this glob")
	flags.StringSliceVar(&cfg.Categories, "category", nil, "Test categories to search (default ui,run-pass,run-fail,codegen)")
	flags.IntVarP(&cfg.Jobs, "jobs", "j", runtime.GOMAXPROCS(0), "Number of tests to run in parallel")
	flags.DurationVarP(&cfg.Timeout, "timeout", "t", config.DefaultTimeout, "Timeout for each compile and run step (0 disables)")
	flags.BoolVarP(&cfg.Verbose, "verbose", "v", false, "Enable verbose output")
	flags.StringVar(&cfg.Format, "format", string(report.FormatHuman), "Report format: human, json, junit or tap")
	flags.StringVarP(&cfg.Output, "output", "o", "", "Write the report to this file instead of stdout")
	flags.BoolVar(&cfg.Coverage, "coverage", false, "Report diagnostic code coverage")
	flags.StringVar(&cfg.SpecIndex, "spec-index", "", "Specification document listing the known diagnostic codes")
	flags.BoolVarP(&cfg.List, "list", "l", false, "List matching tests and exit")
	flags.StringVar(&cfg.Compiler, "compiler", "", "Compiler executable (overrides "+config.EnvCompiler+")")
	flags.StringVar(&cfg.Runtime, "runtime", "", "Runtime support library linked into test programs")
	flags.BoolVar(&cfg.DiagJSON, "diag-json", false, "Read compiler diagnostics as JSON")
	flags.BoolVar(&cfg.NoOutput, "no-output", false, "Skip code generation for compile-only tests")
	flags.BoolVar(&cfg.KeepTemp, "keep-temp", false, "Keep staged test workspaces")
	flags.BoolVar(&cfg.UI, "ui", false, "Show a live progress view when attached to a terminal")
	flags.BoolVar(&cfg.NoColor, "no-color", false, "Disable colored output")
	flags.BoolVar(&cfg.Profile, "profile", false, "Enable CPU and memory profiling (writes cpu.prof and mem.prof to current directory)")

	return rootCmd
}

func runCommand(cmd *cobra.Command, args []string) error {
	if len(args) > 0 {
		cfg.Root = args[0]
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	format, err := report.ParseFormat(cfg.Format)
	if err != nil {
		return errWithCode(err, exitError)
	}

	hc, err := loadConfig(cmd, &cfg)
	if err != nil {
		return errWithCode(fmt.Errorf("configure: %w", err), exitError)
	}

	tests, err := discovery.Discover(afero.NewOsFs(), discovery.Options{
		Root:       hc.Harness.Root,
		Categories: hc.Harness.Categories,
		Filter:     cfg.Filter,
	})
	if err != nil {
		return errWithCode(fmt.Errorf("discover tests: %w", err), exitError)
	}
	slog.Info("discovered tests", "root", hc.Harness.Root, "num", len(tests))

	if cfg.List {
		return listTests(cmd.OutOrStdout(), tests)
	}
	if err := hc.Validate(); err != nil {
		return errWithCode(fmt.Errorf("configure: %w", err), exitError)
	}

	sum, catalog, err := runTests(ctx, hc, tests, format)
	if err != nil {
		return errWithCode(err, exitError)
	}

	opts := report.Options{
		Verbose:       cfg.Verbose,
		Color:         useColor(os.Stdout) && cfg.Output == "",
		Width:         terminalWidth(os.Stdout),
		ProgressShown: showProgress(format) && !useUI(),
		Version:       version,
	}
	if cfg.Coverage {
		known, severity, err := knownCodes(catalog)
		if err != nil {
			return errWithCode(err, exitError)
		}
		opts.Coverage = report.ComputeCoverage(sum.Outcomes, known)
		opts.Coverage.Severity = severity
	}

	if cfg.Output != "" {
		err = report.WriteFile(cfg.Output, format, sum, opts)
	} else {
		err = report.Write(cmd.OutOrStdout(), format, sum, opts)
	}
	if err != nil {
		return errWithCode(fmt.Errorf("write report: %w", err), exitError)
	}

	if sum.Aborted {
		return errWithCode(errors.New("interrupted"), exitInterrupted)
	}
	if code := report.ExitCode(sum.Outcomes); code != 0 {
		return errWithCode(nil, code)
	}
	return nil
}

// loadConfig merges, lowest precedence first, the defaults, the config
// file, the environment and explicitly set flags.
func loadConfig(cmd *cobra.Command, c *Config) (*config.Config, error) {
	root := c.Root
	if root == "" {
		root = "tests"
	}

	path := c.ConfigFile
	if path == "" {
		var err error
		if path, err = config.Find(root); err != nil {
			return nil, err
		}
	}

	hc := config.Default()
	if path != "" {
		var err error
		if hc, err = config.Load(path); err != nil {
			return nil, err
		}
		slog.Info("loaded config", "file", path)
	}
	if hc.Harness.Root == "" || c.Root != "" {
		hc.Harness.Root = root
	}
	hc.ApplyEnv(os.Getenv)

	flags := cmd.Flags()
	if flags.Changed("category") {
		hc.Harness.Categories = c.Categories
	}
	if flags.Changed("jobs") {
		hc.Harness.Jobs = c.Jobs
	}
	if flags.Changed("timeout") {
		hc.Harness.Timeout = c.Timeout
	}
	if flags.Changed("compiler") {
		hc.Compiler.Path = c.Compiler
	}
	if flags.Changed("runtime") {
		hc.Runtime.Path = c.Runtime
	}
	if flags.Changed("diag-json") {
		hc.Compiler.DiagJSON = c.DiagJSON
	}
	if flags.Changed("no-output") {
		hc.Compiler.NoOutputForCompileOnly = c.NoOutput
	}
	if flags.Changed("keep-temp") {
		hc.Harness.KeepTemp = c.KeepTemp
	}

	hc.Detect()
	slog.Debug("resolved config",
		"root", hc.Harness.Root,
		"compiler", hc.Compiler.Path,
		"runtime", hc.Runtime.Path,
		"jobs", hc.Harness.Jobs,
		"timeout", hc.Harness.Timeout)
	return hc, nil
}

func runTests(ctx context.Context, hc *config.Config, tests []discovery.TestCase, format report.Format) (*harness.Summary, *harness.Catalog, error) {
	args, err := hc.CompilerArgs()
	if err != nil {
		return nil, nil, err
	}

	catalog := harness.NewCatalog()
	catalog.Preload(ctx, tests)

	exec := harness.NewExecutor(toolchain.OSRunner{}, catalog, harness.ExecutorOptions{
		Compiler:               hc.Compiler.Path,
		CompilerArgs:           args,
		RuntimeLib:             hc.Runtime.Path,
		Env:                    hc.ChildEnv(),
		Timeout:                hc.Harness.Timeout,
		DiagJSON:               hc.Compiler.DiagJSON,
		NoOutputForCompileOnly: hc.Compiler.NoOutputForCompileOnly,
		TempRoot:               hc.Harness.TempRoot,
		KeepTemp:               hc.Harness.KeepTemp,
	})

	slog.Info("running tests", "num", len(tests), "jobs", hc.Harness.Jobs)
	if useUI() {
		sum, err := runWithUI(ctx, exec, hc.Harness.Jobs, tests)
		return sum, catalog, err
	}

	var observer harness.Observer
	if showProgress(format) {
		progress := report.NewProgress(os.Stdout, useColor(os.Stdout), cfg.Verbose)
		defer progress.Done()
		observer = progress
	}
	sum := harness.NewScheduler(exec, hc.Harness.Jobs, observer).Run(ctx, tests)
	slog.Info("run completed", "dur", sum.Duration, "aborted", sum.Aborted)
	return sum, catalog, nil
}

// knownCodes is the coverage universe: codes from the code index plus
// every code the test sources mention. The severities come from the index.
func knownCodes(catalog *harness.Catalog) (map[string]struct{}, map[string]string, error) {
	known := catalog.Mentioned()
	if cfg.SpecIndex == "" {
		return known, nil, nil
	}
	entries, err := specindex.Load(cfg.SpecIndex)
	if err != nil {
		return nil, nil, fmt.Errorf("load spec index: %w", err)
	}
	for code := range specindex.Codes(entries) {
		known[code] = struct{}{}
	}
	slog.Info("loaded spec index", "file", cfg.SpecIndex, "codes", len(entries))
	return known, specindex.Severities(entries), nil
}

func listTests(w io.Writer, tests []discovery.TestCase) error {
	for _, tc := range tests {
		if _, err := fmt.Fprintln(w, tc.Name); err != nil {
			return err
		}
	}
	return nil
}

// showProgress streams status symbols while tests run. Machine formats
// and file output keep stdout clean.
func showProgress(format report.Format) bool {
	return format == report.FormatHuman && cfg.Output == ""
}

func useUI() bool {
	return cfg.UI && isatty.IsTerminal(os.Stdout.Fd())
}

func useColor(f *os.File) bool {
	if cfg.NoColor || os.Getenv("NO_COLOR") != "" {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func terminalWidth(f *os.File) int {
	w, _, err := term.GetSize(int(f.Fd()))
	if err != nil {
		return 0
	}
	return w
}

var cpuProfile *os.File

func setup(_ *cobra.Command, _ []string) error {
	// Disable logger unless verbose flag is set.
	slog.SetDefault(slog.New(slog.DiscardHandler))
	if cfg.Verbose {
		opts := &slog.HandlerOptions{Level: slog.LevelDebug}
		var handler slog.Handler = slog.NewTextHandler(os.Stderr, opts)
		if cfg.Format == string(report.FormatJSON) {
			handler = slog.NewJSONHandler(os.Stderr, opts)
		}
		slog.SetDefault(slog.New(handler))
	}

	if !cfg.Profile {
		return nil
	}

	var err error
	cpuProfile, err = os.Create("cpu.prof")
	if err != nil {
		return fmt.Errorf("creating cpu.prof: %w", err)
	}
	if err := pprof.StartCPUProfile(cpuProfile); err != nil {
		_ = cpuProfile.Close()
		cpuProfile = nil
		return fmt.Errorf("starting CPU profile: %w", err)
	}
	slog.Info("cpu profiling started", "file", "cpu.prof")
	return nil
}

func teardown(_ *cobra.Command, _ []string) error {
	if !cfg.Profile || cpuProfile == nil {
		return nil
	}

	pprof.StopCPUProfile()
	_ = cpuProfile.Close()
	cpuProfile = nil
	slog.Info("cpu profiling stopped", "file", "cpu.prof")

	memFile, err := os.Create("mem.prof")
	if err != nil {
		return fmt.Errorf("creating mem.prof: %w", err)
	}
	defer memFile.Close()
	runtime.GC() // Get up-to-date statistics
	if err := pprof.WriteHeapProfile(memFile); err != nil {
		return fmt.Errorf("writing memory profile: %w", err)
	}
	slog.Info("memory profiling completed", "file", "mem.prof")
	return nil
}

func errWithCode(err error, code int) error {
	return &codedError{err: err, code: code}
}

type codedError struct {
	err  error
	code int
}

func (e *codedError) Error() string {
	if e.err != nil {
		return e.err.Error()
	}
	return ""
}

func (e *codedError) Unwrap() error { return e.err }
