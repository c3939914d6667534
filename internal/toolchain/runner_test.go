package toolchain

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const helperEnv = "SPECTEST_HELPER_PROCESS"

// TestMain lets the test binary stand in for external processes.
func TestMain(m *testing.M) {
	switch os.Getenv(helperEnv) {
	case "":
		os.Exit(m.Run())
	case "exit":
		fmt.Fprint(os.Stdout, "first\r\nsecond\n")
		fmt.Fprint(os.Stderr, "E-TYP-1901 (error): boom\n")
		code, _ := strconv.Atoi(os.Getenv("SPECTEST_HELPER_CODE"))
		os.Exit(code)
	case "pwd":
		wd, _ := os.Getwd()
		fmt.Fprint(os.Stdout, wd)
		os.Exit(0)
	case "sleep":
		time.Sleep(time.Minute)
		os.Exit(0)
	}
}

func helper(t *testing.T, mode string, env map[string]string) Command {
	t.Helper()
	exe, err := os.Executable()
	require.NoError(t, err)
	merged := map[string]string{helperEnv: mode}
	for k, v := range env {
		merged[k] = v
	}
	return Command{Argv: []string{exe}, Env: merged}
}

func TestOSRunner_Run(t *testing.T) {
	tests := []struct {
		name string
		code string
		want int
	}{
		{"success", "0", 0},
		{"failure", "3", 3},
		{"panic_code", "101", 101},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := OSRunner{}.Run(t.Context(), helper(t, "exit", map[string]string{"SPECTEST_HELPER_CODE": tt.code}))
			require.NoError(t, err)
			require.Equal(t, tt.want, res.ExitCode)
			require.Equal(t, "first\nsecond\n", res.Stdout)
			require.Equal(t, "E-TYP-1901 (error): boom\n", res.Stderr)
		})
	}
}

func TestOSRunner_dir(t *testing.T) {
	dir := t.TempDir()
	cmd := helper(t, "pwd", nil)
	cmd.Dir = dir
	res, err := OSRunner{}.Run(t.Context(), cmd)
	require.NoError(t, err)

	want, err := os.Stat(dir)
	require.NoError(t, err)
	got, err := os.Stat(res.Stdout)
	require.NoError(t, err)
	require.True(t, os.SameFile(want, got))
}

func TestOSRunner_timeout(t *testing.T) {
	ctx, cancel := context.WithTimeout(t.Context(), 200*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := OSRunner{}.Run(ctx, helper(t, "sleep", nil))
	require.ErrorIs(t, err, ErrTimeout)
	require.Less(t, time.Since(start), 30*time.Second)
}

func TestOSRunner_launchFailure(t *testing.T) {
	_, err := OSRunner{}.Run(t.Context(), Command{Argv: []string{"/definitely/not/a/compiler"}})
	require.ErrorIs(t, err, ErrLaunch)

	_, err = OSRunner{}.Run(t.Context(), Command{})
	require.ErrorIs(t, err, ErrLaunch)
}

func TestMergeEnv(t *testing.T) {
	got := mergeEnv([]string{"A=1", "B=2", "PATH=/bin"}, map[string]string{"B": "3", "C": "4"})
	require.Equal(t, []string{"A=1", "PATH=/bin", "B=3", "C=4"}, got)
}
