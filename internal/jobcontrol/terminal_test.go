package jobcontrol_test

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"syscall"
	"testing"

	"github.com/nixpig/jobshell/internal/jobcontrol"
	"golang.org/x/sys/unix"
)

func TestTTYNotInteractive(t *testing.T) {
	t.Parallel()

	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("expected not to receive error: got '%v'", err)
	}

	defer r.Close()
	defer w.Close()

	tty := jobcontrol.NewTTY(r)

	if tty.Interactive() {
		t.Fatal("expected pipe not to be interactive")
	}

	if err := tty.Acquire(); err != nil {
		t.Errorf("expected not to receive error: got '%v'", err)
	}

	if err := tty.Assign(1); err != nil {
		t.Errorf("expected not to receive error: got '%v'", err)
	}

	if err := tty.Reclaim(); err != nil {
		t.Errorf("expected not to receive error: got '%v'", err)
	}

	owner, err := tty.Owner()
	if err != nil {
		t.Errorf("expected not to receive error: got '%v'", err)
	}

	if owner != unix.Getpgrp() {
		t.Errorf("expected owner: got '%d', want '%d'", owner, unix.Getpgrp())
	}
}

// ttyChildEnv marks the re-executed test binary that runs as a session leader
// on a pseudo-terminal.
const ttyChildEnv = "JOBSHELL_TTY_CHILD"

func openPTY(t *testing.T) (*os.File, *os.File) {
	t.Helper()

	master, err := os.OpenFile("/dev/ptmx", os.O_RDWR, 0)
	if err != nil {
		t.Skipf("pseudo-terminals not available: %v", err)
	}

	t.Cleanup(func() { master.Close() })

	fd := int(master.Fd())

	if err := unix.IoctlSetPointerInt(fd, unix.TIOCSPTLCK, 0); err != nil {
		t.Fatalf("expected not to receive error: got '%v'", err)
	}

	n, err := unix.IoctlGetInt(fd, unix.TIOCGPTN)
	if err != nil {
		t.Fatalf("expected not to receive error: got '%v'", err)
	}

	slave, err := os.OpenFile(fmt.Sprintf("/dev/pts/%d", n), os.O_RDWR|unix.O_NOCTTY, 0)
	if err != nil {
		t.Fatalf("expected not to receive error: got '%v'", err)
	}

	t.Cleanup(func() { slave.Close() })

	return master, slave
}

func TestTTYInteractive(t *testing.T) {
	if os.Getenv(ttyChildEnv) == "1" {
		testTTYOwnership(t)
		return
	}

	_, slave := openPTY(t)

	cmd := exec.Command(os.Args[0], "-test.run=^TestTTYInteractive$")
	cmd.Env = append(os.Environ(), ttyChildEnv+"=1")
	cmd.Stdin = slave

	var output bytes.Buffer
	cmd.Stdout = &output
	cmd.Stderr = &output

	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true, Setctty: true, Ctty: 0}

	if err := cmd.Run(); err != nil {
		t.Errorf("expected terminal handoff to succeed: got '%v' (output: '%s')", err, output.String())
	}
}

// testTTYOwnership runs in a session leader whose controlling terminal is
// standard input.
func testTTYOwnership(t *testing.T) {
	tty := jobcontrol.NewTTY(os.Stdin)

	if !tty.Interactive() {
		t.Fatal("expected pseudo-terminal to be interactive")
	}

	if err := tty.Acquire(); err != nil {
		t.Fatalf("expected not to receive error: got '%v'", err)
	}

	testOwner(t, tty, unix.Getpgrp())

	child := exec.Command("sleep", "5")
	child.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if err := child.Start(); err != nil {
		t.Fatalf("expected not to receive error: got '%v'", err)
	}

	defer func() {
		child.Process.Kill()
		child.Wait()
	}()

	if err := tty.Assign(child.Process.Pid); err != nil {
		t.Fatalf("expected not to receive error: got '%v'", err)
	}

	testOwner(t, tty, child.Process.Pid)

	// The interpreter is now a background group of its own terminal.
	if err := tty.Reclaim(); err != nil {
		t.Fatalf("expected not to receive error: got '%v'", err)
	}

	testOwner(t, tty, unix.Getpgrp())
}

func testOwner(t *testing.T, tty *jobcontrol.TTY, want int) {
	t.Helper()

	got, err := tty.Owner()
	if err != nil {
		t.Fatalf("expected not to receive error: got '%v'", err)
	}

	if got != want {
		t.Errorf("expected terminal owner: got '%d', want '%d'", got, want)
	}
}
