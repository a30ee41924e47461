package debugger

import (
	"os"
	"os/signal"
)

// installSignalOverlay installs a scoped SIGINT handler for the lifetime of
// one RunDebug call, per SPEC_FULL.md §4.9: the first interrupt sets
// step_pending (drop back into the REPL); a second interrupt received while
// already paused at the prompt quits the session. The signal-handling
// goroutine never touches Session fields directly - it only forwards a
// struct{} per interrupt on the returned channel. RunDebug's own goroutine
// (the sole reader/writer of stepPending/quit) decides what an interrupt
// means by consulting its own view of stepPending, the same way it already
// does for every other gating decision in its main loop. This keeps all
// Session state single-threaded, matching KTStephano-GVM/vm/devices.go's
// channel-mediated cross-goroutine coordination rather than shared mutable
// fields guarded by a mutex.
func (sess *Session) installSignalOverlay() (<-chan struct{}, func()) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt)

	stop := make(chan struct{}, 1)
	done := make(chan struct{})

	go func() {
		for {
			select {
			case <-sigCh:
				select {
				case stop <- struct{}{}:
				default:
				}
			case <-done:
				return
			}
		}
	}()

	cleanup := func() {
		signal.Stop(sigCh)
		close(done)
	}
	return stop, cleanup
}
