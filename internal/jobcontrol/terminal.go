package jobcontrol

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"unsafe"

	"golang.org/x/sys/unix"
	"golang.org/x/term"
)

// Terminal arbitrates ownership of the controlling terminal. Every Assign is
// paired with a Reclaim, including on error paths.
type Terminal interface {
	// Assign makes pgid the foreground process group of the terminal.
	Assign(pgid int) error

	// Reclaim makes the interpreter's own process group the foreground process
	// group of the terminal.
	Reclaim() error
}

// TTY is a Terminal backed by a terminal device. When the file is not a
// terminal, e.g. input is piped, every operation is a no-op.
type TTY struct {
	fd          int
	pgid        int
	interactive bool
}

// NewTTY creates a TTY for f, normally os.Stdin.
func NewTTY(f *os.File) *TTY {
	fd := int(f.Fd())

	return &TTY{
		fd:          fd,
		pgid:        unix.Getpgrp(),
		interactive: term.IsTerminal(fd),
	}
}

// Interactive reports whether the TTY is backed by a terminal device.
func (t *TTY) Interactive() bool {
	return t.interactive
}

// Fd returns the file descriptor of the terminal.
func (t *TTY) Fd() int {
	return t.fd
}

// Acquire moves the interpreter into a process group of its own and takes the
// terminal. A session leader cannot change its group, so EPERM from setpgid
// is tolerated and the current group is kept.
func (t *TTY) Acquire() error {
	if !t.interactive {
		return nil
	}

	if err := unix.Setpgid(0, 0); err != nil && !errors.Is(err, unix.EPERM) {
		return fmt.Errorf("set own process group: %w", err)
	}

	t.pgid = unix.Getpgrp()

	owner, err := t.Owner()
	if err != nil {
		return fmt.Errorf("get terminal owner: %w", err)
	}

	if owner == t.pgid {
		return nil
	}

	return t.Reclaim()
}

func (t *TTY) Assign(pgid int) error {
	if !t.interactive {
		return nil
	}

	// The interpreter is not the foreground group when reclaiming, so the
	// kernel would stop it with SIGTTOU unless the signal is blocked.
	if err := withSignalBlocked(unix.SIGTTOU, func() error {
		return unix.IoctlSetPointerInt(t.fd, unix.TIOCSPGRP, pgid)
	}); err != nil {
		return fmt.Errorf("assign terminal to group %d: %w", pgid, err)
	}

	return nil
}

func (t *TTY) Reclaim() error {
	return t.Assign(t.pgid)
}

// Owner returns the foreground process group of the terminal.
func (t *TTY) Owner() (int, error) {
	if !t.interactive {
		return t.pgid, nil
	}

	return unix.IoctlGetInt(t.fd, unix.TIOCGPGRP)
}

// withSignalBlocked runs fn on a locked OS thread with sig blocked in that
// thread's signal mask.
func withSignalBlocked(sig unix.Signal, fn func() error) error {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	var set, old unix.Sigset_t
	sigaddset(&set, sig)

	if err := unix.PthreadSigmask(unix.SIG_BLOCK, &set, &old); err != nil {
		return fmt.Errorf("block %s: %w", unix.SignalName(sig), err)
	}

	defer unix.PthreadSigmask(unix.SIG_SETMASK, &old, nil)

	return fn()
}

func sigaddset(set *unix.Sigset_t, sig unix.Signal) {
	bits := uint(unsafe.Sizeof(set.Val[0]) * 8)
	n := uint(sig) - 1

	set.Val[n/bits] |= 1 << (n % bits)
}
