// Package timemachine maps wall-clock time onto virtual simulation time
// through an integer speed-up factor, and computes absolute wall-clock
// deadlines for a desired virtual wake-up time. time.Time arithmetic is
// monotonic-clock based (see the time package's "Monotonic Clocks"
// section), so wall-clock jumps do not skew the mapping. Callers are
// expected to hold their own lock around a TimeMachine: this type
// performs no internal locking.
package timemachine

import (
	"math"
	"time"
)

// Unscheduled marks "no pause scheduled", numerically identical to
// meter.NoUpdateScheduled.
const Unscheduled = math.MaxInt32

// TimeMachine tracks the virtual time at the moment of the last speed or
// run-state change, so GetTime can derive the current virtual time from
// how much wall-clock time has elapsed since.
type TimeMachine struct {
	lastSwitch     int32
	lastSwitchReal time.Time
	speedup        int
	stopTime       int32
}

// New returns a time machine at virtual time 0, already stopped at 0
// (stopTime == 0).
func New(speedup int) *TimeMachine {
	return &TimeMachine{
		speedup:        speedup,
		lastSwitchReal: time.Now(),
	}
}

func simulatedSeconds(start, finish time.Time, speedup int) int32 {
	nanos := finish.Sub(start).Nanoseconds()
	return int32(nanos * int64(speedup) / int64(time.Second))
}

func min32(a, b int32) int32 {
	if a < b {
		return a
	}
	return b
}

// GetTime returns the current virtual time, clamped to stopTime.
func (t *TimeMachine) GetTime() int32 {
	ret := simulatedSeconds(t.lastSwitchReal, time.Now(), t.speedup) + t.lastSwitch
	return min32(ret, t.stopTime)
}

// GetWaitTime returns the absolute wall-clock deadline corresponding to
// virtual time wakeUpTime. A wakeUpTime at or before the current virtual
// time yields time.Now().
func (t *TimeMachine) GetWaitTime(wakeUpTime int32) time.Time {
	remaining := wakeUpTime - t.GetTime()
	if remaining <= 0 {
		return time.Now()
	}
	wholeSeconds := remaining / int32(t.speedup)
	remainderVirtual := remaining % int32(t.speedup)
	remainderReal := time.Duration(int64(remainderVirtual) * int64(time.Second) / int64(t.speedup))
	return time.Now().Add(time.Duration(wholeSeconds)*time.Second + remainderReal)
}

// SetSpeedup changes the speed-up factor going forward, preserving the
// virtual time accumulated under the old one.
func (t *TimeMachine) SetSpeedup(speedup int) {
	now := time.Now()
	virtualNow := min32(simulatedSeconds(t.lastSwitchReal, now, t.speedup)+t.lastSwitch, t.stopTime)
	t.lastSwitch = virtualNow
	t.lastSwitchReal = now
	t.speedup = speedup
}

// Start anchors the time machine to virtual time now and resumes running;
// if the stop time would already be in the past it is cleared.
func (t *TimeMachine) Start(now int32) {
	t.lastSwitch = now
	t.lastSwitchReal = time.Now()
	if t.stopTime <= now {
		t.stopTime = Unscheduled
	}
}

// SetStop schedules a pause at virtual time stopTime, which can never be
// set in the past relative to the current virtual time; it returns the
// effective stop time actually applied.
func (t *TimeMachine) SetStop(stopTime int32) int32 {
	now := t.GetTime()
	if stopTime > now {
		t.stopTime = stopTime
	} else {
		t.stopTime = now
	}
	return t.stopTime
}

// IsStopped reports whether the time machine's virtual clock is
// currently pinned at its scheduled stop time.
func (t *TimeMachine) IsStopped() bool {
	return t.stopTime == t.GetTime()
}

// StopTime reports the currently scheduled stop time (Unscheduled if
// none).
func (t *TimeMachine) StopTime() int32 {
	return t.stopTime
}
