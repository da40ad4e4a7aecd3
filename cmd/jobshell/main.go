// Command jobshell is an interactive command interpreter with job control.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	if err := run(); err != nil {
		os.Exit(1)
	}
}

func run() error {
	// NOTE: SIGINT is handled by jobcontrol.CatchInteractiveSignals.
	ctx, cancel := signal.NotifyContext(
		context.Background(),
		syscall.SIGTERM,
		syscall.SIGHUP,
	)
	defer cancel()

	if err := rootCmd().ExecuteContext(ctx); err != nil {
		return err
	}

	return nil
}
