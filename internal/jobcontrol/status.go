package jobcontrol

import "golang.org/x/sys/unix"

// Outcome is the semantic meaning of a raw wait status.
type Outcome int

const (
	OutcomeExited Outcome = iota
	OutcomeSignaled
	OutcomeSuspended
	OutcomeContinued
)

var outcomes = []string{
	"EXITED",
	"SIGNALED",
	"SUSPENDED",
	"CONTINUED",
}

func (o Outcome) String() string {
	if int(o) < 0 || int(o) >= len(outcomes) {
		return "UNKNOWN"
	}

	return outcomes[o]
}

// Terminated reports whether the Outcome ends the life of a job.
func (o Outcome) Terminated() bool {
	return o == OutcomeExited || o == OutcomeSignaled
}

// Classify maps a raw wait status to an Outcome and its info value: the exit
// code for OutcomeExited, the signal number for OutcomeSignaled and
// OutcomeSuspended, and 0 for OutcomeContinued.
//
// Every status is classifiable. Anything that is not a stop, continue or
// signal termination is reported as an exit.
func Classify(ws unix.WaitStatus) (Outcome, int) {
	switch {
	case ws.Stopped():
		return OutcomeSuspended, int(ws.StopSignal())
	case ws.Continued():
		return OutcomeContinued, 0
	case ws.Signaled():
		return OutcomeSignaled, int(ws.Signal())
	default:
		return OutcomeExited, ws.ExitStatus()
	}
}
