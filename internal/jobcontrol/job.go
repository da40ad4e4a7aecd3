package jobcontrol

import (
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/nixpig/jobshell/internal/jobcontrol/cgroups"
)

// Job is a process group launched on behalf of the user. Its state is the only
// attribute that changes after creation.
type Job struct {
	id      string
	pgid    int
	command string

	state      AtomicJobState
	terminated atomic.Bool

	cgroup *cgroups.Cgroup
}

// NewJob creates a Job for the process group pgid, labelled with command (the
// program name, not the full argument vector).
func NewJob(pgid int, command string, state JobState) *Job {
	j := &Job{
		id:      uuid.NewString(),
		pgid:    pgid,
		command: command,
	}

	j.state.Store(state)

	return j
}

// ID returns the identity of the Job. It is stable for the Job's lifetime,
// unlike its position in a Table.
func (j *Job) ID() string {
	return j.id
}

// Pgid returns the process group id of the Job.
func (j *Job) Pgid() int {
	return j.pgid
}

// Command returns the display label of the Job.
func (j *Job) Command() string {
	return j.command
}

// State returns the current JobState of the Job.
func (j *Job) State() JobState {
	return j.state.Load()
}

// Terminated reports whether the Job's process group has been observed to
// exit or be killed.
func (j *Job) Terminated() bool {
	return j.terminated.Load()
}

// transition moves the Job to state to and returns the previous state. A
// terminated Job never changes state again.
func (j *Job) transition(to JobState) JobState {
	if j.Terminated() {
		panic(fmt.Sprintf("job %d (%s): transition to %s after termination", j.pgid, j.command, to))
	}

	return j.state.Swap(to)
}

// terminate marks the Job as terminated and releases its cgroup, if any.
// Terminating a Job twice is a programming error.
func (j *Job) terminate() error {
	if !j.terminated.CompareAndSwap(false, true) {
		panic(fmt.Sprintf("job %d (%s): terminated twice", j.pgid, j.command))
	}

	if j.cgroup == nil {
		return nil
	}

	if err := j.cgroup.Destroy(); err != nil {
		return fmt.Errorf("destroy cgroup %s for job %d: %w", j.cgroup.Name(), j.pgid, err)
	}

	return nil
}
