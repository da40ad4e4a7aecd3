package jobcontrol_test

import (
	"testing"

	"github.com/nixpig/jobshell/internal/jobcontrol"
	"golang.org/x/sys/unix"
)

func TestClassify(t *testing.T) {
	t.Parallel()

	scenarios := map[string]struct {
		status      unix.WaitStatus
		wantOutcome jobcontrol.Outcome
		wantInfo    int
	}{
		"Exit success": {
			status:      0x0000,
			wantOutcome: jobcontrol.OutcomeExited,
			wantInfo:    0,
		},
		"Exit failure": {
			status:      0x0300,
			wantOutcome: jobcontrol.OutcomeExited,
			wantInfo:    3,
		},
		"Exit launch failed": {
			status:      0xff00,
			wantOutcome: jobcontrol.OutcomeExited,
			wantInfo:    jobcontrol.ExitLaunchFailed,
		},
		"Killed": {
			status:      unix.WaitStatus(unix.SIGKILL),
			wantOutcome: jobcontrol.OutcomeSignaled,
			wantInfo:    int(unix.SIGKILL),
		},
		"Killed with core dump": {
			status:      0x80 | unix.WaitStatus(unix.SIGSEGV),
			wantOutcome: jobcontrol.OutcomeSignaled,
			wantInfo:    int(unix.SIGSEGV),
		},
		"Stopped from terminal": {
			status:      unix.WaitStatus(unix.SIGTSTP)<<8 | 0x7f,
			wantOutcome: jobcontrol.OutcomeSuspended,
			wantInfo:    int(unix.SIGTSTP),
		},
		"Stopped by signal": {
			status:      unix.WaitStatus(unix.SIGSTOP)<<8 | 0x7f,
			wantOutcome: jobcontrol.OutcomeSuspended,
			wantInfo:    int(unix.SIGSTOP),
		},
		"Continued": {
			status:      0xffff,
			wantOutcome: jobcontrol.OutcomeContinued,
			wantInfo:    0,
		},
	}

	for scenario, config := range scenarios {
		t.Run(scenario, func(t *testing.T) {
			t.Parallel()

			gotOutcome, gotInfo := jobcontrol.Classify(config.status)

			if gotOutcome != config.wantOutcome {
				t.Errorf(
					"expected outcome: got '%s', want '%s'",
					gotOutcome,
					config.wantOutcome,
				)
			}

			if gotInfo != config.wantInfo {
				t.Errorf("expected info: got '%d', want '%d'", gotInfo, config.wantInfo)
			}
		})
	}
}

func TestOutcome(t *testing.T) {
	t.Parallel()

	t.Run("Test all outcomes are named", func(t *testing.T) {
		for _, o := range []jobcontrol.Outcome{
			jobcontrol.OutcomeExited,
			jobcontrol.OutcomeSignaled,
			jobcontrol.OutcomeSuspended,
			jobcontrol.OutcomeContinued,
		} {
			if o.String() == "UNKNOWN" {
				t.Errorf("unnamed outcome: '%d'", o)
			}
		}
	})

	t.Run("Test unknown outcome", func(t *testing.T) {
		if got := jobcontrol.Outcome(99).String(); got != "UNKNOWN" {
			t.Errorf("expected outcome name: got '%s', want 'UNKNOWN'", got)
		}
	})

	t.Run("Test terminated outcomes", func(t *testing.T) {
		if !jobcontrol.OutcomeExited.Terminated() || !jobcontrol.OutcomeSignaled.Terminated() {
			t.Error("expected exited and signaled to be terminated")
		}

		if jobcontrol.OutcomeSuspended.Terminated() || jobcontrol.OutcomeContinued.Terminated() {
			t.Error("expected suspended and continued not to be terminated")
		}
	})
}
