package main

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// NOTE: Each shell waits for any child of the test process, so these tests
// must not run in parallel.

func runTestShell(t *testing.T, script string) (string, string) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	cfg := defaultConfig()
	cfg.prompt = "> "

	out := &bytes.Buffer{}
	errOut := &bytes.Buffer{}

	if err := runShell(ctx, cfg, strings.NewReader(script), out, errOut); err != nil {
		t.Fatalf("expected not to receive error: got '%v'", err)
	}

	return out.String(), errOut.String()
}

func testContains(t *testing.T, output string, want ...string) {
	t.Helper()

	for _, w := range want {
		if !strings.Contains(output, w) {
			t.Errorf("expected output to contain '%v': got '%v'", w, output)
		}
	}
}

func TestShell(t *testing.T) {
	t.Run("Test exit", func(t *testing.T) {
		out, _ := runTestShell(t, "exit\njobs\n")

		testContains(t, out, "> Bye\n")

		if strings.Contains(out, "no jobs running") {
			t.Errorf("expected no commands after exit: got '%v'", out)
		}
	})

	t.Run("Test end of input", func(t *testing.T) {
		out, _ := runTestShell(t, "\njobs\n")

		testContains(t, out, "no jobs running at the moment.\n", "\nBye\n")
	})

	t.Run("Test resume with no jobs", func(t *testing.T) {
		out, _ := runTestShell(t, "fg\nbg 2\nexit\n")

		if got := strings.Count(out, "no jobs to manipulate\n"); got != 2 {
			t.Errorf("expected message per resume: got '%v', want '%v'", got, 2)
		}
	})

	t.Run("Test background job", func(t *testing.T) {
		out, _ := runTestShell(t, "sleep 30 &\njobs\nbg\nbg 5\nfg 0\nexit\n")

		testContains(
			t,
			out,
			"Background job running... pid: ",
			"POSITION  PID",
			"sleep",
			"Background",
			"This job (sleep) is already in the background!\n",
			"Index 5 out of bounds for jobs\n",
			"Index 0 out of bounds for jobs\n",
		)
	})

	t.Run("Test foreground job", func(t *testing.T) {
		out, _ := runTestShell(t, "false\nexit\n")

		testContains(t, out, "command: false, EXITED, info: 1\n")
	})

	t.Run("Test unknown program", func(t *testing.T) {
		out, errOut := runTestShell(t, "jobshell-test-unknown-program\nexit\n")

		testContains(t, out, "command: jobshell-test-unknown-program, EXITED, info: 255\n")

		if errOut == "" {
			t.Errorf("expected diagnostic: got '%v'", errOut)
		}
	})

	t.Run("Test parse error", func(t *testing.T) {
		_, errOut := runTestShell(t, "cat <\nexit\n")

		testContains(t, errOut, "missing path for redirection")
	})

	t.Run("Test change directory", func(t *testing.T) {
		wd, err := os.Getwd()
		if err != nil {
			t.Fatalf("expected not to receive error: got '%v'", err)
		}

		// Restores the working directory after the test.
		t.Chdir(wd)

		dir, err := filepath.EvalSymlinks(t.TempDir())
		if err != nil {
			t.Fatalf("expected not to receive error: got '%v'", err)
		}

		missing := filepath.Join(dir, "missing")

		out, _ := runTestShell(t, "cd "+dir+"\ncd "+missing+"\nexit\n")

		testContains(t, out, "No such directory "+missing+"\n")

		got, err := os.Getwd()
		if err != nil {
			t.Fatalf("expected not to receive error: got '%v'", err)
		}

		if got != dir {
			t.Errorf("expected working directory: got '%v', want '%v'", got, dir)
		}
	})

	t.Run("Test cancelled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		pr, pw := io.Pipe()
		defer pw.Close()

		out := &bytes.Buffer{}

		if err := runShell(ctx, defaultConfig(), pr, out, io.Discard); err != nil {
			t.Errorf("expected not to receive error: got '%v'", err)
		}
	})
}
