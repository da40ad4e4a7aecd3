package jobcontrol

import (
	"log/slog"
	"os"
	"os/signal"

	"golang.org/x/sys/unix"
)

// interactiveSignals are generated by the terminal for its foreground group.
var interactiveSignals = []os.Signal{
	unix.SIGINT,
	unix.SIGQUIT,
	unix.SIGTSTP,
	unix.SIGTTIN,
}

// CatchInteractiveSignals keeps terminal-generated signals from stopping or
// killing the interpreter until the returned function is called.
//
// The signals are caught and discarded rather than ignored: a caught signal
// reverts to its default action in a child at exec, whereas an ignored one
// would stay ignored in every launched program.
func CatchInteractiveSignals(logger *slog.Logger) func() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, interactiveSignals...)

	done := make(chan struct{})

	go func() {
		for {
			select {
			case sig := <-sigCh:
				logger.Debug("discarded signal", "signal", sig)
			case <-done:
				return
			}
		}
	}()

	return func() {
		signal.Stop(sigCh)
		close(done)
	}
}
