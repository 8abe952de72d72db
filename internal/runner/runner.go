// Package runner drives the engine's virtual clock in a background
// goroutine, mapping it onto wall-clock time via a timemachine.TimeMachine,
// and implements the "update barrier" that lets query callers observe
// state freshly integrated up to the current instant.
//
// The rendezvous needs a condition variable with a timed wait: the loop
// must both sleep until the next scheduled event and be woken early by a
// pause/resume/update call. sync.Cond has no timed wait, so it is paired
// with a time.Timer that calls Broadcast when it fires: a waiter is
// released either by an explicit Broadcast elsewhere or by the timer,
// and either way it loops back to recompute what to do next.
package runner

import (
	"sync"
	"time"

	"github.com/SovereignEdgeEU-COGNIT/use-case-3-sem-simulator/internal/engine"
	"github.com/SovereignEdgeEU-COGNIT/use-case-3-sem-simulator/internal/meter"
	"github.com/SovereignEdgeEU-COGNIT/use-case-3-sem-simulator/internal/semlog"
	"github.com/SovereignEdgeEU-COGNIT/use-case-3-sem-simulator/internal/timemachine"
)

// Runner owns a background goroutine that advances eng's virtual clock at
// eng's configured speed-up, with pause/resume/step-forward-while-paused
// control and an update barrier so external readers see consistent state.
type Runner struct {
	mu   sync.Mutex
	cond *sync.Cond

	eng *engine.Engine
	tm  *timemachine.TimeMachine

	running  bool
	updating bool
	shutdown bool
	stopTime int32

	done chan struct{}
}

// New returns a runner for eng, not yet started. Its time machine starts
// stopped at virtual time 0; the runner's own cached stop time starts
// unscheduled and is set by Start or Pause.
func New(eng *engine.Engine) *Runner {
	r := &Runner{
		eng:      eng,
		tm:       timemachine.New(eng.Config().Speedup),
		stopTime: meter.NoUpdateScheduled,
	}
	r.cond = sync.NewCond(&r.mu)
	return r
}

// Start launches the background driving goroutine. If start is false a
// stop at virtual time 0 is scheduled first, so the clock stays paused
// at its current virtual time until Resume.
func (r *Runner) Start(start bool) {
	r.mu.Lock()
	if !start {
		r.stopTime = r.tm.SetStop(0)
	}
	if r.stopTime != 0 {
		r.tm.Start(r.eng.Now())
	}
	if start {
		r.running = true
	}
	r.mu.Unlock()

	r.done = make(chan struct{})
	go func() {
		defer close(r.done)
		r.loop()
	}()
}

func min32(a, b int32) int32 {
	if a < b {
		return a
	}
	return b
}

// loop is the background goroutine body. It holds r.mu for the whole
// iteration except while parked in cond.Wait.
func (r *Runner) loop() {
	r.mu.Lock()
	r.running = true
	semlog.Debugf("runner: starting")

	for {
		now := r.tm.GetTime()
		if err := r.eng.StepForward(now - r.eng.Now()); err != nil {
			semlog.Errorf("runner: step forward: %v", err)
		}

		if r.shutdown {
			break
		}

		if now == r.stopTime {
			r.pauseAndWait()
			if r.shutdown {
				break
			}
			continue
		}

		nextWakeup := min32(r.eng.NextUpdateTime(), r.stopTime)
		r.updating = false
		r.cond.Broadcast()

		if nextWakeup == meter.NoUpdateScheduled {
			r.cond.Wait()
		} else {
			deadline := r.tm.GetWaitTime(nextWakeup)
			r.waitUntil(deadline)
		}
	}

	r.running = false
	r.mu.Unlock()
	semlog.Debugf("runner: finished")
}

// waitUntil parks on r.cond until either some other call broadcasts, or
// deadline passes, whichever comes first. Must be called with r.mu held.
func (r *Runner) waitUntil(deadline time.Time) {
	timer := time.AfterFunc(time.Until(deadline), func() {
		r.mu.Lock()
		r.cond.Broadcast()
		r.mu.Unlock()
	})
	defer timer.Stop()
	r.cond.Wait()
}

// pauseAndWait transitions the runner to paused and blocks until Resume
// or Finish. Must be called with r.mu held.
func (r *Runner) pauseAndWait() {
	semlog.Debugf("runner: pausing")
	r.running = false
	r.updating = false
	r.cond.Broadcast()
	for !r.running && !r.shutdown {
		r.cond.Wait()
	}
	semlog.Debugf("runner: resuming")
}

// Update is the barrier: it blocks until the background goroutine has
// integrated state up through the current instant, a no-op if the runner
// is paused (there is nothing pending to integrate).
func (r *Runner) Update() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.running {
		return
	}
	r.updating = true
	r.cond.Broadcast()
	for r.updating {
		r.cond.Wait()
	}
}

// SetSpeedup changes the wall-clock to virtual-time ratio going forward.
func (r *Runner) SetSpeedup(speedup int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tm.SetSpeedup(speedup)
}

// Resume clears any elapsed pause and restarts the clock from the
// engine's current virtual time.
func (r *Runner) Resume() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.running = true
	if r.stopTime <= r.eng.Now() {
		r.stopTime = meter.NoUpdateScheduled
	}
	r.tm.Start(r.eng.Now())
	r.cond.Broadcast()
}

// Pause schedules the clock to stop at virtual time when, which can never
// be scheduled in the virtual past.
func (r *Runner) Pause(when int32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stopTime = r.tm.SetStop(when)
	r.cond.Broadcast()
}

// IsRunning reports whether the background goroutine is actively
// advancing the clock (as opposed to paused).
func (r *Runner) IsRunning() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

// Time returns the engine's current virtual time.
func (r *Runner) Time() int32 {
	return r.eng.Now()
}

// Finish signals the background goroutine to shut down and waits for it
// to exit. The runner must not be reused afterward.
func (r *Runner) Finish() {
	r.mu.Lock()
	r.shutdown = true
	r.updating = true
	r.running = true
	r.mu.Unlock()

	r.cond.Broadcast()
	<-r.done

	r.mu.Lock()
	r.updating = false
	r.running = false
	r.mu.Unlock()
}
