package jobcontrol

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"syscall"

	"github.com/nixpig/jobshell/internal/jobcontrol/cgroups"
	"golang.org/x/sys/unix"
)

// ExitLaunchFailed is the exit code reported for a launch that failed on the
// child side, i.e. the program could not be executed or a redirection could
// not be opened.
const ExitLaunchFailed = 255

// LaunchRequest describes a program to launch, as produced by the command
// parser.
type LaunchRequest struct {
	// Argv is the program and its arguments. Argv[0] is also the display label
	// of the job.
	Argv []string

	Background bool

	// InputPath and OutputPath, if set, are opened and bound to the standard
	// input and output of the program.
	InputPath  string
	OutputPath string
}

// Launcher spawns programs, each in a new process group led by the program's
// own process.
type Launcher struct {
	// ctty is the terminal descriptor used to hand the terminal to foreground
	// children before they exec, or -1 when not interactive.
	ctty int

	cgroupRoot string
	limits     *cgroups.Limits

	stdin  *os.File
	stdout *os.File
	stderr *os.File

	logger *slog.Logger
}

// process is a launched child.
type process struct {
	pid    int
	cgroup *cgroups.Cgroup
}

// NewLauncher creates a Launcher. When cgroupRoot is set every child is
// started inside a new cgroup below it, with limits applied.
func NewLauncher(
	ctty int,
	cgroupRoot string,
	limits *cgroups.Limits,
	logger *slog.Logger,
) *Launcher {
	return &Launcher{
		ctty:       ctty,
		cgroupRoot: cgroupRoot,
		limits:     limits,
		stdin:      os.Stdin,
		stdout:     os.Stdout,
		stderr:     os.Stderr,
		logger:     logger,
	}
}

// launch starts the program for req. name identifies the child's cgroup.
//
// Failures to open redirections wrap ErrRedirectFailed, failures to execute
// the program wrap ErrExecFailed, and anything else wraps ErrSpawnFailed.
func (l *Launcher) launch(name string, req LaunchRequest) (*process, error) {
	if len(req.Argv) == 0 || req.Argv[0] == "" {
		return nil, ErrEmptyCommand
	}

	stdin, stdout, closeFiles, err := l.openRedirections(req)
	if err != nil {
		return nil, err
	}

	defer closeFiles()

	cmd := exec.Command(req.Argv[0], req.Argv[1:]...)
	cmd.Stdin = stdin
	cmd.Stdout = stdout
	cmd.Stderr = l.stderr

	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	// The child takes the terminal itself before exec, so a foreground program
	// never runs without it regardless of when the parent gets scheduled.
	if !req.Background && l.ctty >= 0 {
		cmd.SysProcAttr.Foreground = true
		cmd.SysProcAttr.Ctty = l.ctty
	}

	var cg *cgroups.Cgroup
	if l.cgroupRoot != "" {
		cg, err = cgroups.Create(l.cgroupRoot, name, l.limits)
		if err != nil {
			return nil, fmt.Errorf("%w: create cgroup: %w", ErrSpawnFailed, err)
		}

		cmd.SysProcAttr.UseCgroupFD = true
		cmd.SysProcAttr.CgroupFD = cg.FD()
	}

	if err := cmd.Start(); err != nil {
		if cg != nil {
			if err := cg.Destroy(); err != nil {
				l.logger.Warn("destroy cgroup of failed launch", "cgroup", cg.Name(), "err", err)
			}
		}

		if isExecError(err) {
			return nil, fmt.Errorf("%w: %s: %w", ErrExecFailed, req.Argv[0], err)
		}

		return nil, fmt.Errorf("%w: %s: %w", ErrSpawnFailed, req.Argv[0], err)
	}

	pid := cmd.Process.Pid

	// Set the group from the parent as well so it is in place before the
	// parent waits or registers the job. EACCES means the child has already
	// exec'd with its group set.
	if err := unix.Setpgid(pid, pid); err != nil &&
		!errors.Is(err, unix.EACCES) &&
		!errors.Is(err, unix.ESRCH) {
		return nil, fmt.Errorf("%w: set process group of %d: %w", ErrSpawnFailed, pid, err)
	}

	// The child is reaped with wait4 by the Reaper, not through os.Process.
	cmd.Process.Release()

	return &process{pid: pid, cgroup: cg}, nil
}

func (l *Launcher) openRedirections(
	req LaunchRequest,
) (*os.File, *os.File, func(), error) {
	var opened []io.Closer

	closeFiles := func() {
		for _, f := range opened {
			f.Close()
		}
	}

	stdin, stdout := l.stdin, l.stdout

	if req.InputPath != "" {
		f, err := os.Open(req.InputPath)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("%w: %w", ErrRedirectFailed, err)
		}

		opened = append(opened, f)
		stdin = f
	}

	if req.OutputPath != "" {
		f, err := os.OpenFile(
			req.OutputPath,
			os.O_WRONLY|os.O_CREATE|os.O_TRUNC,
			0644,
		)
		if err != nil {
			closeFiles()
			return nil, nil, nil, fmt.Errorf("%w: %w", ErrRedirectFailed, err)
		}

		opened = append(opened, f)
		stdout = f
	}

	return stdin, stdout, closeFiles, nil
}

// isExecError reports whether err from exec.Cmd.Start means the program image
// could not be loaded, as opposed to the process not being created at all.
func isExecError(err error) bool {
	var execErr *exec.Error
	if errors.As(err, &execErr) {
		return true
	}

	var pathErr *os.PathError
	if errors.As(err, &pathErr) {
		return errors.Is(pathErr.Err, unix.ENOENT) ||
			errors.Is(pathErr.Err, unix.EACCES) ||
			errors.Is(pathErr.Err, unix.ENOEXEC) ||
			errors.Is(pathErr.Err, unix.ENOTDIR) ||
			errors.Is(pathErr.Err, unix.EISDIR)
	}

	return false
}
