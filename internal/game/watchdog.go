// internal/game/watchdog.go
package game

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// WatchdogOutcome is how a TurnWatchdog finished.
type WatchdogOutcome int32

const (
	WatchdogPending WatchdogOutcome = iota
	WatchdogFired
	WatchdogCancelled
)

func (o WatchdogOutcome) String() string {
	switch o {
	case WatchdogFired:
		return "fired"
	case WatchdogCancelled:
		return "cancelled"
	default:
		return "pending"
	}
}

// ExpireFunc is what a watchdog calls when its deadline passes.
type ExpireFunc func(version int64)

// TurnWatchdog waits until one turn's deadline and then reports the turn
// version it was armed with. It never checks whether that version is still
// current; the receiver of the expiry does.
type TurnWatchdog struct {
	version  int64
	deadline time.Time
	expire   ExpireFunc
	now      func() time.Time

	ctx    context.Context
	cancel context.CancelFunc

	once    sync.Once
	done    chan struct{}
	outcome atomic.Int32
}

// NewTurnWatchdog builds a watchdog for version that expires at deadline.
// Cancelling parent cancels the watchdog too. Call Run to start waiting.
func NewTurnWatchdog(parent context.Context, expire ExpireFunc, deadline time.Time, version int64) *TurnWatchdog {
	ctx, cancel := context.WithCancel(parent)
	return &TurnWatchdog{
		version:  version,
		deadline: deadline,
		expire:   expire,
		now:      time.Now,
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
}

// Version is the turn version captured when the watchdog was armed.
func (w *TurnWatchdog) Version() int64 { return w.version }

// Deadline is the absolute time the watchdog fires at.
func (w *TurnWatchdog) Deadline() time.Time { return w.deadline }

// Done is closed once the watchdog has fired or been cancelled.
func (w *TurnWatchdog) Done() <-chan struct{} { return w.done }

// Outcome reports the current state of the watchdog.
func (w *TurnWatchdog) Outcome() WatchdogOutcome {
	return WatchdogOutcome(w.outcome.Load())
}

// Cancel asks the watchdog to stop. A watchdog that is already past its wait
// still fires.
func (w *TurnWatchdog) Cancel() {
	w.cancel()
}

// Run blocks until the deadline or cancellation. Only the first call waits;
// later calls block until the first finishes and return the same outcome.
func (w *TurnWatchdog) Run() WatchdogOutcome {
	w.once.Do(w.run)
	<-w.done
	return w.Outcome()
}

func (w *TurnWatchdog) run() {
	defer close(w.done)
	defer w.cancel()

	if wait := w.deadline.Sub(w.now()); wait > 0 {
		timer := time.NewTimer(wait)
		defer timer.Stop()
		select {
		case <-w.ctx.Done():
			w.outcome.Store(int32(WatchdogCancelled))
			return
		case <-timer.C:
		}
	} else if w.ctx.Err() != nil {
		w.outcome.Store(int32(WatchdogCancelled))
		return
	}

	w.outcome.Store(int32(WatchdogFired))
	w.expire(w.version)
}
