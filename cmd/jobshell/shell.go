package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"text/tabwriter"

	"github.com/nixpig/jobshell/internal/command"
	"github.com/nixpig/jobshell/internal/jobcontrol"
	"github.com/nixpig/jobshell/internal/jobcontrol/cgroups"
)

var errExit = errors.New("exit")

type shell struct {
	manager *jobcontrol.Manager
	lines   *lineReader
	prompt  string

	out    io.Writer
	errOut io.Writer
	logger *slog.Logger
}

func runShell(
	ctx context.Context,
	cfg *config,
	in io.Reader,
	out, errOut io.Writer,
) error {
	logger := cfg.logger(errOut)

	var terminal jobcontrol.Terminal

	if f, ok := in.(*os.File); ok {
		tty := jobcontrol.NewTTY(f)

		if tty.Interactive() {
			if err := tty.Acquire(); err != nil {
				return fmt.Errorf("acquire terminal: %w", err)
			}

			terminal = tty
		}
	}

	stop := jobcontrol.CatchInteractiveSignals(logger)
	defer stop()

	var limits *cgroups.Limits
	if cfg.cgroupRoot != "" {
		limits = cfg.limits()
	}

	manager, err := jobcontrol.NewManager(jobcontrol.Config{
		Terminal:    terminal,
		Reports:     out,
		Diagnostics: errOut,
		Logger:      logger,
		CgroupRoot:  cfg.cgroupRoot,
		Limits:      limits,
	})
	if err != nil {
		return fmt.Errorf("create job manager: %w", err)
	}

	manager.Start(ctx)
	defer manager.Close()
	defer manager.Shutdown()

	s := &shell{
		manager: manager,
		lines:   newLineReader(in),
		prompt:  cfg.prompt,
		out:     out,
		errOut:  errOut,
		logger:  logger,
	}

	return s.run(ctx)
}

func (s *shell) run(ctx context.Context) error {
	for {
		s.manager.Drain()

		fmt.Fprint(s.out, s.prompt)

		text, err := s.readLine(ctx)
		switch {
		case errors.Is(err, io.EOF):
			fmt.Fprintf(s.out, "\nBye\n")
			return nil
		case errors.Is(err, context.Canceled):
			fmt.Fprintln(s.out)
			return nil
		case err != nil:
			return err
		}

		req, err := command.Parse(text)
		if err != nil {
			fmt.Fprintf(s.errOut, "%s\n", err.Error())
			continue
		}

		if err := s.handle(req); err != nil {
			if errors.Is(err, errExit) {
				return nil
			}

			return err
		}
	}
}

// readLine waits for the next input line, reconciling state changes of
// background jobs as they arrive.
func (s *shell) readLine(ctx context.Context) (string, error) {
	s.lines.request()

	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()

		case ev, ok := <-s.manager.Events():
			if !ok {
				if err := ctx.Err(); err != nil {
					return "", err
				}

				return "", jobcontrol.ErrReaperStopped
			}

			fmt.Fprintln(s.out)
			s.manager.Reconcile(ev)
			fmt.Fprint(s.out, s.prompt)

		case l := <-s.lines.Lines():
			return l.text, l.err
		}
	}
}

func (s *shell) handle(req command.Request) error {
	switch r := req.(type) {
	case command.Empty:

	case command.Exit:
		fmt.Fprintf(s.out, "Bye\n")
		return errExit

	case command.ChangeDir:
		s.changeDir(r.Path)

	case command.Jobs:
		s.printJobs()

	case command.Foreground:
		_, err := s.manager.ResumeForeground(r.Ref)
		return s.resumeError(err)

	case command.Background:
		return s.resumeError(s.manager.ResumeBackground(r.Ref))

	case command.Launch:
		if _, err := s.manager.Launch(r.LaunchRequest); err != nil {
			if errors.Is(err, jobcontrol.ErrReaperStopped) {
				return err
			}

			fmt.Fprintf(s.errOut, "%s\n", err.Error())
		}

	default:
		s.logger.Warn("unhandled request", "type", fmt.Sprintf("%T", req))
	}

	return nil
}

func (s *shell) changeDir(path string) {
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintf(s.errOut, "%s\n", err.Error())
			return
		}

		path = home
	}

	if err := os.Chdir(path); err != nil {
		s.logger.Debug("change directory", "path", path, "err", err)
		fmt.Fprintf(s.out, "No such directory %s\n", path)
	}
}

func (s *shell) printJobs() {
	jobs := s.manager.List()

	if len(jobs) == 0 {
		fmt.Fprintf(s.out, "no jobs running at the moment.\n")
		return
	}

	w := tabwriter.NewWriter(s.out, 0, 0, 2, ' ', 0)

	fmt.Fprintf(w, "POSITION\tPID\tCOMMAND\tSTATE\t\n")

	for _, j := range jobs {
		fmt.Fprintf(w, "%d\t%d\t%s\t%s\t\n", j.Position, j.Pid, j.Command, j.State)
	}

	w.Flush()
}

// resumeError prints the user-facing message for a failed fg or bg. Only
// errors that leave the interpreter unable to continue are returned.
func (s *shell) resumeError(err error) error {
	var rangeErr jobcontrol.IndexOutOfRangeError
	var bgErr jobcontrol.AlreadyBackgroundError

	switch {
	case err == nil:

	case errors.As(err, &rangeErr) && rangeErr.Size == 0:
		fmt.Fprintf(s.out, "no jobs to manipulate\n")

	case errors.As(err, &rangeErr):
		fmt.Fprintf(s.out, "Index %d out of bounds for jobs\n", rangeErr.Position)

	case errors.As(err, &bgErr):
		fmt.Fprintf(s.out, "This job (%s) is already in the background!\n", bgErr.Command)

	case errors.Is(err, jobcontrol.ErrReaperStopped):
		return err

	default:
		fmt.Fprintf(s.errOut, "%s\n", err.Error())
	}

	return nil
}
