// Package engine implements the energy-integration state machine: it
// advances virtual time from one wake-up to the next, applying scenario
// updates and device-injected currents and integrating energy over every
// elapsed interval in between.
package engine

import (
	"fmt"
	"sync"

	"github.com/SovereignEdgeEU-COGNIT/use-case-3-sem-simulator/internal/calculator"
	"github.com/SovereignEdgeEU-COGNIT/use-case-3-sem-simulator/internal/devicemgr"
	"github.com/SovereignEdgeEU-COGNIT/use-case-3-sem-simulator/internal/meter"
)

// ErrNegativeStep is returned by StepForward for a negative delta.
var ErrNegativeStep = fmt.Errorf("engine: step delta must be >= 0")

// Cursor is the forward-only scenario update source the engine consumes,
// satisfied by *scenario.Cursor.
type Cursor interface {
	Next() (meter.Update, bool, error)
}

// Engine owns the meter's live state and the scenario/device machinery
// that advances it.
type Engine struct {
	mu sync.Mutex

	state  meter.State
	now    int32
	cursor Cursor
	devs   *devicemgr.Manager

	currUpdate           meter.Update
	nextUpdate           meter.Update
	nextConfigUpdateTime int32
	bias                 calculator.Bias
}

// New builds an engine from a loaded scenario: it seeds the energy grid,
// primes the first scenario update and then performs a zero-second
// priming step so any update scheduled at timestamp 0 is applied before
// the first query.
func New(cfg meter.Config, initialEnergy [][3]meter.EnergyCell, cursor Cursor, devs *devicemgr.Manager) (*Engine, error) {
	e := &Engine{
		cursor: cursor,
		devs:   devs,
	}
	calculator.InitScenario(&e.state, cfg, initialEnergy)

	e.now = -1
	e.getValidUpdate()
	e.now = 0
	if err := e.stepForwardLocked(0); err != nil {
		return nil, err
	}
	return e, nil
}

// getValidUpdate advances the scenario cursor until it finds an update
// whose timestamp is strictly after now and whose tariff index is in
// range, silently skipping stale or invalid rows, or reaches EOF.
func (e *Engine) getValidUpdate() {
	for {
		upd, ok, err := e.cursor.Next()
		if err != nil {
			continue
		}
		if !ok {
			e.nextConfigUpdateTime = meter.NoUpdateScheduled
			return
		}
		if upd.Timestamp > e.now && upd.CurrentTariff < e.state.Config.TariffCount {
			e.nextUpdate = upd
			e.nextConfigUpdateTime = upd.Timestamp
			return
		}
	}
}

func min32(a, b int32) int32 {
	if a < b {
		return a
	}
	return b
}

// StepForward advances virtual time by delta seconds, applying every
// scenario update and device poll scheduled in between and integrating
// energy over each sub-interval.
func (e *Engine) StepForward(delta int32) error {
	if delta < 0 {
		return ErrNegativeStep
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stepForwardLocked(delta)
}

func (e *Engine) stepForwardLocked(delta int32) error {
	end := e.now + delta
	for {
		deviceNext := e.devs.NextUpdateTime()
		next := min32(min32(deviceNext, e.nextConfigUpdateTime), end)
		if next < e.now {
			next = e.now
		}

		calculator.AccumulateEnergy(&e.state, next-e.now)
		e.now = next

		switch {
		case e.now == e.nextConfigUpdateTime:
			e.currUpdate = e.nextUpdate
			info := calculator.PrepareInfoForDevice(e.currUpdate, e.now, e.state.Config.StartTime+int64(e.now))
			e.getValidUpdate()
			e.bias = e.devs.UpdateDevices(info)
			calculator.HandleUpdate(&e.state, e.currUpdate, e.bias)
		case deviceNext != meter.NoUpdateScheduled && e.now >= deviceNext:
			info := calculator.PrepareInfoForDevice(e.currUpdate, e.now, e.state.Config.StartTime+int64(e.now))
			e.bias = e.devs.UpdateDevices(info)
			calculator.HandleUpdate(&e.state, e.currUpdate, e.bias)
		}

		if end <= e.now {
			break
		}
	}
	return nil
}

// NextUpdateTime reports the earliest virtual time at which either a
// scenario update or a device poll is due, clamped to be no earlier than
// now.
func (e *Engine) NextUpdateTime() int32 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.nextUpdateTimeLocked()
}

func (e *Engine) nextUpdateTimeLocked() int32 {
	next := min32(e.devs.NextUpdateTime(), e.nextConfigUpdateTime)
	if next < e.now {
		next = e.now
	}
	return next
}

// Now returns the current virtual time.
func (e *Engine) Now() int32 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.now
}

// Config returns the meter's immutable identity and scenario parameters.
func (e *Engine) Config() meter.Config {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.Config
}

// TariffCurrent returns the currently active tariff index.
func (e *Engine) TariffCurrent() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.CurrentTariff
}

// Instant returns a copy of the latest instantaneous readings.
func (e *Engine) Instant() meter.Instant {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.Instant
}

// Power returns a copy of the latest derived power readings.
func (e *Engine) Power() meter.Power {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.Power
}

// Vector returns a copy of the latest complex-number vectors.
func (e *Engine) Vector() meter.Vector {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.Vector
}

// Thd returns a copy of the latest total-harmonic-distortion readings.
func (e *Engine) Thd() meter.Thd {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.Thd
}

// EnergyTotal sums every cell of the energy grid, across all tariffs and
// all phases, into a single cell.
func (e *Engine) EnergyTotal() meter.EnergyCell {
	e.mu.Lock()
	defer e.mu.Unlock()

	var total meter.EnergyCell
	for t := range e.state.Energy {
		for p := 0; p < 3; p++ {
			cell := e.state.Energy[t][p]
			total.ActivePlus.Add(cell.ActivePlus, 1)
			total.ActiveMinus.Add(cell.ActiveMinus, 1)
			total.ApparentPlus.Add(cell.ApparentPlus, 1)
			total.ApparentMinus.Add(cell.ApparentMinus, 1)
			for q := 0; q < 4; q++ {
				total.Reactive[q].Add(cell.Reactive[q], 1)
			}
		}
	}
	return total
}

// ErrTariffOutOfRange is returned by EnergyTariff for an index outside
// [0, TariffCount).
var ErrTariffOutOfRange = fmt.Errorf("engine: tariff index out of range")

// EnergyTariff returns the per-phase energy grid for one tariff index.
func (e *Engine) EnergyTariff(idx int) ([3]meter.EnergyCell, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if idx < 0 || idx >= len(e.state.Energy) {
		return [3]meter.EnergyCell{}, ErrTariffOutOfRange
	}
	return e.state.Energy[idx], nil
}

// SetTimeUTC shifts the engine's stored UTC offset so that its uptime
// (virtual time since construction) is unchanged while TimeUTC begins
// reporting utcSeconds at the current instant.
func (e *Engine) SetTimeUTC(utcSeconds int64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.state.Config.StartTime = utcSeconds - int64(e.now)
}

// TimeUTC returns the current wall-clock instant the virtual clock maps
// to, in Unix seconds.
func (e *Engine) TimeUTC() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.Config.StartTime + int64(e.now)
}

// Devices exposes the device manager so the facade can bracket device
// registration with the runner's update barrier.
func (e *Engine) Devices() *devicemgr.Manager {
	return e.devs
}
