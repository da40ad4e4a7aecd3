package jobcontrol

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"

	"github.com/nixpig/jobshell/internal/jobcontrol/cgroups"
	"golang.org/x/sys/unix"
)

// Report describes one observed state change of a job.
type Report struct {
	// Foreground is true when the change was observed by the interpreter
	// waiting on the job, rather than autonomously.
	Foreground bool
	Pid        int
	Command    string
	Outcome    Outcome
	Info       int
}

func (r Report) String() string {
	if r.Foreground {
		return fmt.Sprintf(
			"Foreground pid: %d, command: %s, %s, info: %d",
			r.Pid, r.Command, r.Outcome, r.Info,
		)
	}

	return fmt.Sprintf(
		"Background pid: %d, command %s, %s, info: %d",
		r.Pid, r.Command, r.Outcome, r.Info,
	)
}

// LaunchOutcome is the result of Manager.Launch.
//
// A program that cannot be executed, or whose redirection cannot be opened,
// never becomes a process: os/exec reports the failure to the parent before
// any child runs. Such a launch completes immediately with a Report of
// OutcomeExited and ExitLaunchFailed, Pid 0 and Background false, even when
// background was requested, and no job is registered or listed.
type LaunchOutcome struct {
	Pid int

	// Background is true when the job was registered in the Table without
	// waiting for it.
	Background bool

	// Report is the state change that completed the launch: the foreground
	// job exiting, being killed or stopping, or a failure on the child side.
	// It is nil for background launches that started.
	Report *Report
}

// JobRef selects a job by position. The zero value selects the most recent
// job.
type JobRef struct {
	position int
	explicit bool
}

// Latest selects the job at the highest position.
func Latest() JobRef {
	return JobRef{}
}

// At selects the job at the 1-based position.
func At(position int) JobRef {
	return JobRef{position: position, explicit: true}
}

// Config configures a Manager.
type Config struct {
	// Terminal arbitrates the controlling terminal. If nil, terminal handoff
	// is skipped. A *TTY that is interactive also has foreground children
	// take the terminal before they exec.
	Terminal Terminal

	// Reports receives one line per observed state change and background
	// launch. Defaults to io.Discard.
	Reports io.Writer

	// Diagnostics receives messages for launches that failed on the child
	// side. Defaults to os.Stderr.
	Diagnostics io.Writer

	Logger *slog.Logger

	// CgroupRoot, if set, places every job in its own cgroup below it with
	// Limits applied.
	CgroupRoot string
	Limits     *cgroups.Limits

	EventCapacity int
}

// Manager launches and tracks jobs. Apart from Events, its methods are meant
// to be called from a single control goroutine.
type Manager struct {
	table      *Table
	terminal   Terminal
	launcher   *Launcher
	reaper     *Reaper
	foreground atomic.Pointer[Job]

	reports io.Writer
	diag    io.Writer
	logger  *slog.Logger

	cancel context.CancelFunc
}

// NewManager creates a Manager from cfg. Call Start before launching jobs.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.CgroupRoot != "" {
		if err := cgroups.Validate(cfg.CgroupRoot); err != nil {
			return nil, err
		}
	}

	m := &Manager{
		table:    NewTable(),
		terminal: cfg.Terminal,
		reports:  cfg.Reports,
		diag:     cfg.Diagnostics,
		logger:   cfg.Logger,
		cancel:   func() {},
	}

	if m.terminal == nil {
		m.terminal = nopTerminal{}
	}

	if m.reports == nil {
		m.reports = io.Discard
	}

	if m.diag == nil {
		m.diag = os.Stderr
	}

	if m.logger == nil {
		m.logger = slog.New(slog.DiscardHandler)
	}

	ctty := -1
	if tty, ok := m.terminal.(*TTY); ok && tty.Interactive() {
		ctty = tty.Fd()
	}

	m.launcher = NewLauncher(ctty, cfg.CgroupRoot, cfg.Limits, m.logger)
	m.reaper = NewReaper(m.logger, cfg.EventCapacity)

	return m, nil
}

// Start begins collecting child state changes. Collection stops when ctx is
// cancelled or Close is called.
func (m *Manager) Start(ctx context.Context) {
	ctx, m.cancel = context.WithCancel(ctx)
	m.reaper.Start(ctx)
}

// Close stops collecting child state changes and waits for the Reaper to
// exit. Jobs are left running; see Shutdown.
func (m *Manager) Close() {
	m.cancel()
	<-m.reaper.Done()
}

// Events returns the channel of pending child state changes. Each Event
// received from it must be passed to Reconcile.
func (m *Manager) Events() <-chan Event {
	return m.reaper.Events()
}

// Drain reconciles every pending state change without blocking and returns
// how many were reconciled.
func (m *Manager) Drain() int {
	var n int

	for {
		select {
		case ev, ok := <-m.reaper.Events():
			if !ok {
				return n
			}

			m.Reconcile(ev)
			n++
		default:
			return n
		}
	}
}

// Reconcile applies a state change of a background or stopped job to the
// Table and reports it. Changes for untracked processes are logged and
// dropped.
func (m *Manager) Reconcile(ev Event) {
	job, err := m.table.ByGroup(ev.Pid)
	if err != nil {
		m.logger.Warn(
			"state change for untracked process",
			"pid", ev.Pid,
			"status", uint32(ev.Status),
		)
		return
	}

	outcome, info := Classify(ev.Status)

	switch {
	case outcome.Terminated():
		m.table.Remove(job)
		m.finish(job)
	case outcome == OutcomeSuspended:
		job.transition(JobStateStopped)
	case outcome == OutcomeContinued:
		job.transition(JobStateBackground)
	}

	m.emit(Report{
		Pid:     job.pgid,
		Command: job.command,
		Outcome: outcome,
		Info:    info,
	})
}

// Launch starts the program in req. A background launch registers the job and
// returns immediately. A foreground launch hands the job the terminal and
// waits until it exits, is killed or stops; a stopped job is registered as
// JobStateStopped.
//
// Failures on the child side complete the launch with OutcomeExited and
// ExitLaunchFailed. Only a failure to create the process returns an error.
func (m *Manager) Launch(req LaunchRequest) (*LaunchOutcome, error) {
	if len(req.Argv) == 0 || req.Argv[0] == "" {
		return nil, ErrEmptyCommand
	}

	state := JobStateForeground
	if req.Background {
		state = JobStateBackground
	}

	job := NewJob(0, req.Argv[0], state)

	unblock := m.reaper.Block()
	defer unblock()

	proc, err := m.launcher.launch(job.id, req)
	if err != nil {
		if errors.Is(err, ErrExecFailed) || errors.Is(err, ErrRedirectFailed) {
			fmt.Fprintln(m.diag, err)

			report := Report{
				Foreground: !req.Background,
				Command:    job.command,
				Outcome:    OutcomeExited,
				Info:       ExitLaunchFailed,
			}

			m.emit(report)

			return &LaunchOutcome{Report: &report}, nil
		}

		return nil, err
	}

	job.pgid = proc.pid
	job.cgroup = proc.cgroup

	if req.Background {
		m.table.Add(job)

		fmt.Fprintf(
			m.reports,
			"Background job running... pid: %d, command: %s\n",
			job.pgid,
			job.command,
		)

		return &LaunchOutcome{Pid: job.pgid, Background: true}, nil
	}

	m.setForeground(job)

	release := m.handoff(job)
	defer release()

	unblock()

	report, err := m.waitForeground(job)
	release()

	if err != nil {
		return nil, err
	}

	m.emit(*report)

	return &LaunchOutcome{Pid: job.pgid, Report: report}, nil
}

// List returns the jobs in the Table in position order.
func (m *Manager) List() []JobInfo {
	return m.table.Snapshot()
}

// ResumeForeground hands the terminal to the selected job, continues it if it
// is stopped, and waits until it exits, is killed or stops again.
//
// The job is taken out of the Table before waiting and only put back, as
// JobStateStopped, if it stops again.
func (m *Manager) ResumeForeground(ref JobRef) (*Report, error) {
	unblock := m.reaper.Block()
	defer unblock()

	job, err := m.resolve(ref)
	if err != nil {
		return nil, err
	}

	m.table.Remove(job)
	prev := job.transition(JobStateForeground)
	m.setForeground(job)

	release := m.handoff(job)
	defer release()

	if prev == JobStateStopped {
		m.signal(job, unix.SIGCONT)
	}

	unblock()

	report, err := m.waitForeground(job)
	release()

	if err != nil {
		return nil, err
	}

	m.emit(*report)

	return report, nil
}

// ResumeBackground continues the selected job in the background. The job must
// be stopped, otherwise an AlreadyBackgroundError is returned and nothing
// changes. The terminal is not touched.
func (m *Manager) ResumeBackground(ref JobRef) error {
	unblock := m.reaper.Block()
	defer unblock()

	job, err := m.resolve(ref)
	if err != nil {
		return err
	}

	if job.State() != JobStateStopped {
		return AlreadyBackgroundError{Command: job.command}
	}

	job.transition(JobStateBackground)

	return m.signal(job, unix.SIGCONT)
}

// Shutdown makes a 'best effort' attempt to end every job left in the Table
// by sending its process group SIGHUP followed by SIGCONT, so a stopped group
// can act on the hangup.
func (m *Manager) Shutdown() {
	unblock := m.reaper.Block()
	defer unblock()

	m.sync()

	var wg sync.WaitGroup

	for job := range m.table.All() {
		wg.Go(func() {
			// NOTE: Errors are logged by signal and otherwise ignored; nothing
			// more can be done for a job the interpreter is abandoning.
			m.signal(job, unix.SIGHUP)

			// A group may stop after the Table was synced, so every group is
			// continued, not only those known to be stopped.
			m.signal(job, unix.SIGCONT)
		})
	}

	wg.Wait()
}

// sync reconciles every state change the Reaper has collected, including one
// it is still queueing, so decisions are made on current job states. The
// caller must hold the Reaper's Block.
func (m *Manager) sync() {
	for m.reaper.inFlight() {
		ev, ok := <-m.reaper.Events()
		if !ok {
			return
		}

		m.Reconcile(ev)
	}

	m.Drain()
}

// resolve returns the job selected by ref after bringing the Table up to
// date. The caller must hold the Reaper's Block.
func (m *Manager) resolve(ref JobRef) (*Job, error) {
	m.sync()

	if !ref.explicit {
		return m.table.Latest()
	}

	return m.table.ByPosition(ref.position)
}

// waitForeground blocks until the foreground job exits, is killed or stops.
// State changes of other jobs observed meanwhile are reconciled as they
// arrive. The continue that follows resuming a stopped job is skipped.
func (m *Manager) waitForeground(job *Job) (*Report, error) {
	defer m.foreground.CompareAndSwap(job, nil)

	for ev := range m.reaper.Events() {
		if ev.Pid != job.pgid {
			m.Reconcile(ev)
			continue
		}

		outcome, info := Classify(ev.Status)

		switch {
		case outcome.Terminated():
			m.finish(job)
		case outcome == OutcomeContinued:
			m.logger.Debug("foreground job continued", "pgid", job.pgid)
			continue
		case outcome == OutcomeSuspended:
			job.transition(JobStateStopped)
			m.table.Add(job)
		}

		return &Report{
			Foreground: true,
			Pid:        job.pgid,
			Command:    job.command,
			Outcome:    outcome,
			Info:       info,
		}, nil
	}

	return nil, ErrReaperStopped
}

func (m *Manager) setForeground(job *Job) {
	if !m.foreground.CompareAndSwap(nil, job) {
		panic(fmt.Sprintf(
			"job %d (%s) made foreground while job %d is foreground",
			job.pgid,
			job.command,
			m.foreground.Load().pgid,
		))
	}
}

// handoff assigns the terminal to job and returns a function that reclaims it.
// The returned function is safe to call more than once.
func (m *Manager) handoff(job *Job) func() {
	if err := m.terminal.Assign(job.pgid); err != nil {
		m.logger.Warn("assign terminal", "pgid", job.pgid, "err", err)
	}

	return sync.OnceFunc(func() {
		if err := m.terminal.Reclaim(); err != nil {
			m.logger.Warn("reclaim terminal", "err", err)
		}
	})
}

// signal sends sig to the process group of job. A group that no longer
// exists is not an error: its termination is still to be reconciled.
func (m *Manager) signal(job *Job, sig unix.Signal) error {
	err := unix.Kill(-job.pgid, sig)

	switch {
	case err == nil:
		return nil
	case errors.Is(err, unix.ESRCH):
		m.logger.Debug("signal exited group", "pgid", job.pgid, "signal", unix.SignalName(sig))
		return nil
	default:
		m.logger.Warn("signal group", "pgid", job.pgid, "signal", unix.SignalName(sig), "err", err)
		return fmt.Errorf("signal group %d: %w", job.pgid, err)
	}
}

func (m *Manager) finish(job *Job) {
	if err := job.terminate(); err != nil {
		m.logger.Warn("release job resources", "pgid", job.pgid, "err", err)
	}
}

func (m *Manager) emit(r Report) {
	fmt.Fprintln(m.reports, r.String())
}

type nopTerminal struct{}

func (nopTerminal) Assign(int) error { return nil }
func (nopTerminal) Reclaim() error   { return nil }
