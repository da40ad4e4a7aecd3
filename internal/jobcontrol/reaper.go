package jobcontrol

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"

	"golang.org/x/sys/unix"
)

// defaultEventCapacity bounds the number of state changes queued between the
// Reaper and the control goroutine. When the queue is full the Reaper stops
// collecting and the kernel keeps holding the remaining statuses.
const defaultEventCapacity = 64

// Event is a raw child state change collected by the Reaper.
type Event struct {
	Pid    int
	Status unix.WaitStatus
}

// Reaper collects child state changes in response to SIGCHLD.
//
// On every notification it calls wait4 for any child, without blocking and
// including stops and continues, until no further change is available. Each
// change is queued as an Event. The Reaper never inspects or mutates jobs.
type Reaper struct {
	events chan Event
	logger *slog.Logger

	// mu is held around each wait4 call. Holding it from outside suspends
	// collection, the equivalent of blocking SIGCHLD.
	mu sync.Mutex

	// inflight counts statuses taken from the kernel but not yet queued.
	inflight atomic.Int64

	done chan struct{}
}

// NewReaper creates a Reaper that queues up to capacity Events.
func NewReaper(logger *slog.Logger, capacity int) *Reaper {
	if capacity <= 0 {
		capacity = defaultEventCapacity
	}

	return &Reaper{
		events: make(chan Event, capacity),
		logger: logger,
		done:   make(chan struct{}),
	}
}

// Start subscribes to SIGCHLD and begins collecting in a new goroutine until
// ctx is cancelled, at which point the Events channel is closed.
func (r *Reaper) Start(ctx context.Context) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, unix.SIGCHLD)

	go func() {
		defer func() {
			signal.Stop(sigCh)
			close(r.events)
			close(r.done)
		}()

		// Children may have changed state before the subscription.
		if !r.collect(ctx) {
			return
		}

		for {
			select {
			case <-ctx.Done():
				return
			case <-sigCh:
				if !r.collect(ctx) {
					return
				}
			}
		}
	}()
}

// Events returns the channel of collected state changes, in the order they
// were collected.
func (r *Reaper) Events() <-chan Event {
	return r.events
}

// Done returns a channel that is closed when the Reaper has stopped.
func (r *Reaper) Done() <-chan struct{} {
	return r.done
}

// Block suspends collection until the returned function is called. The
// returned function is safe to call more than once.
func (r *Reaper) Block() func() {
	r.mu.Lock()

	return sync.OnceFunc(r.mu.Unlock)
}

// inFlight reports whether a collected state change has not yet been queued
// on the Events channel. While Block is held the count can only fall.
func (r *Reaper) inFlight() bool {
	return r.inflight.Load() > 0
}

// collect drains every available state change. It returns false if ctx was
// cancelled while queueing.
func (r *Reaper) collect(ctx context.Context) bool {
	for {
		var ws unix.WaitStatus

		r.mu.Lock()
		pid, err := unix.Wait4(
			-1,
			&ws,
			unix.WNOHANG|unix.WUNTRACED|unix.WCONTINUED,
			nil,
		)
		if err == nil && pid > 0 {
			r.inflight.Add(1)
		}
		r.mu.Unlock()

		switch {
		case err == nil && pid > 0:
			r.logger.Debug("collected child state change", "pid", pid, "status", uint32(ws))

			select {
			case r.events <- Event{Pid: pid, Status: ws}:
				r.inflight.Add(-1)
			case <-ctx.Done():
				r.inflight.Add(-1)
				return false
			}

		case errors.Is(err, unix.EINTR):
			continue

		case err == nil, errors.Is(err, unix.ECHILD):
			// Nothing more to collect until the next SIGCHLD.
			return true

		default:
			r.logger.Warn("wait for children", "err", err)
			return true
		}
	}
}
