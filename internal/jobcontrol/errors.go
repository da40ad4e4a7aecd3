package jobcontrol

import (
	"errors"
	"fmt"
)

var (
	ErrJobNotFound       = errors.New("job not found")
	ErrIndexOutOfRange   = errors.New("index out of range")
	ErrAlreadyBackground = errors.New("job already in background")
	ErrEmptyCommand      = errors.New("command cannot be empty")
	ErrReaperStopped     = errors.New("reaper stopped")

	// ErrSpawnFailed is returned when the child process could not be created.
	// The interpreter carries on with the next request.
	ErrSpawnFailed = errors.New("spawn failed")

	// ErrExecFailed and ErrRedirectFailed describe failures on the child side
	// of a launch. The Manager never returns them to its caller; they complete
	// the launch as EXITED with ExitLaunchFailed.
	ErrExecFailed     = errors.New("exec failed")
	ErrRedirectFailed = errors.New("redirect failed")
)

// IndexOutOfRangeError is returned when a job position does not refer to a
// job in the Table.
type IndexOutOfRangeError struct {
	Position int
	Size     int
}

func (e IndexOutOfRangeError) Error() string {
	return fmt.Sprintf("position %d out of range for %d jobs", e.Position, e.Size)
}

func (e IndexOutOfRangeError) Is(target error) bool {
	return target == ErrIndexOutOfRange
}

// AlreadyBackgroundError is returned when asking a job that is not stopped to
// continue in the background.
type AlreadyBackgroundError struct {
	Command string
}

func (e AlreadyBackgroundError) Error() string {
	return fmt.Sprintf("job (%s) is already in the background", e.Command)
}

func (e AlreadyBackgroundError) Is(target error) bool {
	return target == ErrAlreadyBackground
}
