package jobcontrol

import "sync/atomic"

// JobState is the role of a Job relative to the controlling terminal, or
// JobStateStopped when the job's process group is stopped.
type JobState int

const (
	// JobStateUnknown is the zero value for functions that return a (possibly
	// absent) JobState.
	JobStateUnknown JobState = iota

	// JobStateForeground indicates the job owns the controlling terminal and
	// the interpreter is waiting on it. At most one job is ever in this state
	// and it is never held in the Table.
	JobStateForeground

	// JobStateBackground indicates the job is running without the terminal.
	JobStateBackground

	// JobStateStopped indicates the job's process group has been stopped by a
	// signal. It can be resumed in the foreground or background.
	JobStateStopped
)

// NOTE: Keep in sync with the JobState values above.
var jobStates = []string{
	"Unknown",
	"Foreground",
	"Background",
	"Stopped",
}

func (s JobState) String() string {
	if int(s) < 0 || int(s) >= len(jobStates) {
		return jobStates[0]
	}

	return jobStates[s]
}

// AtomicJobState wraps an atomic.Int32 so a Job's state can be read from any
// goroutine while the control goroutine updates it.
type AtomicJobState struct {
	v atomic.Int32
}

func (a *AtomicJobState) Load() JobState {
	return JobState(a.v.Load())
}

func (a *AtomicJobState) Store(s JobState) {
	a.v.Store(int32(s))
}

// Swap stores s and returns the previous JobState.
func (a *AtomicJobState) Swap(s JobState) JobState {
	return JobState(a.v.Swap(int32(s)))
}
