// Package metersim is the SEM simulator's public API facade: a single
// entry point that wires together the scenario loader, the energy-
// integration engine, the device registry and the optional background
// runner, and brackets every runner-aware operation with the update
// barrier.
package metersim

import (
	"fmt"

	"github.com/SovereignEdgeEU-COGNIT/use-case-3-sem-simulator/internal/devicemgr"
	"github.com/SovereignEdgeEU-COGNIT/use-case-3-sem-simulator/internal/engine"
	"github.com/SovereignEdgeEU-COGNIT/use-case-3-sem-simulator/internal/meter"
	"github.com/SovereignEdgeEU-COGNIT/use-case-3-sem-simulator/internal/runner"
	"github.com/SovereignEdgeEU-COGNIT/use-case-3-sem-simulator/internal/scenario"
)

// Device is re-exported so callers don't need to import the internal
// devicemgr package to implement one.
type Device = devicemgr.Device

// Sentinel errors for the recoverable failure modes of the facade.
var (
	ErrRunnerExists   = fmt.Errorf("metersim: a runner already exists")
	ErrNoRunner       = fmt.Errorf("metersim: no runner has been created")
	ErrRefuse         = fmt.Errorf("metersim: refused, runner is currently running")
	ErrInvalidSpeedup = fmt.Errorf("metersim: speedup out of range (0, %d]", meter.MaxSpeedup)
)

// Simulator is a single meter simulation: its scenario-derived state, its
// devices and, optionally, a background runner driving its clock.
type Simulator struct {
	eng    *engine.Engine
	runner *runner.Runner
}

// New loads the scenario directory dir (config.toml + updates.csv) and
// constructs a simulator with no runner: queries and StepForward operate
// synchronously until CreateRunner is called.
func New(dir string) (*Simulator, error) {
	cfg, energyGrid, cursor, err := scenario.Load(dir)
	if err != nil {
		return nil, fmt.Errorf("metersim: %w", err)
	}
	devs := devicemgr.New()
	eng, err := engine.New(cfg, energyGrid, cursor, devs)
	if err != nil {
		return nil, fmt.Errorf("metersim: %w", err)
	}
	return &Simulator{eng: eng}, nil
}

// Close tears down any runner associated with the simulator. It is safe
// to call on a simulator with no runner.
func (s *Simulator) Close() error {
	if s.runner != nil {
		s.runner.Finish()
		s.runner = nil
	}
	return nil
}

// CreateRunner attaches a background runner to the simulator. If start is
// false the clock is left paused at its current virtual time until
// Resume is called.
func (s *Simulator) CreateRunner(start bool) error {
	if s.runner != nil {
		return ErrRunnerExists
	}
	r := runner.New(s.eng)
	s.runner = r
	r.Start(start)
	return nil
}

// DestroyRunner stops and discards the simulator's background runner, if
// any.
func (s *Simulator) DestroyRunner() {
	if s.runner == nil {
		return
	}
	s.runner.Finish()
	s.runner = nil
}

// Resume starts or continues the background runner's clock.
func (s *Simulator) Resume() error {
	if s.runner == nil {
		return ErrNoRunner
	}
	s.runner.Update()
	s.runner.Resume()
	return nil
}

// Pause schedules the background runner's clock to stop at virtual time
// when.
func (s *Simulator) Pause(when int32) error {
	if s.runner == nil {
		return ErrNoRunner
	}
	s.runner.Update()
	s.runner.Pause(when)
	return nil
}

// IsRunning reports whether the background runner is actively advancing
// the clock. A simulator with no runner is never running.
func (s *Simulator) IsRunning() bool {
	if s.runner == nil {
		return false
	}
	s.runner.Update()
	return s.runner.IsRunning()
}

// SetSpeedup changes the wall-clock to virtual-time ratio.
func (s *Simulator) SetSpeedup(speedup int) error {
	if speedup <= 0 || speedup > meter.MaxSpeedup {
		return ErrInvalidSpeedup
	}
	if s.runner == nil {
		return ErrNoRunner
	}
	s.runner.Update()
	s.runner.SetSpeedup(speedup)
	s.runner.Update()
	return nil
}

// StepForward advances virtual time by seconds while no runner is
// actively driving the clock. It refuses (ErrRefuse) if a runner exists
// and is currently running.
func (s *Simulator) StepForward(seconds int32) error {
	if s.runner != nil && s.runner.IsRunning() {
		return ErrRefuse
	}
	return s.eng.StepForward(seconds)
}

// NewDevice registers a device and returns its id.
func (s *Simulator) NewDevice(d Device) (int, error) {
	if s.runner != nil {
		s.runner.Update()
	}
	id, err := s.eng.Devices().NewDevice(d)
	if s.runner != nil {
		s.runner.Update()
	}
	return id, err
}

// DestroyDevice unregisters the device with the given id.
func (s *Simulator) DestroyDevice(id int) error {
	if s.runner != nil {
		s.runner.Update()
	}
	err := s.eng.Devices().DestroyDevice(id)
	if s.runner != nil {
		s.runner.Update()
	}
	return err
}

// NotifyDevicemgr schedules an out-of-cycle device poll on the next
// engine wake-up.
func (s *Simulator) NotifyDevicemgr() {
	if s.runner != nil {
		s.runner.Update()
	}
	s.eng.Devices().Notify()
	if s.runner != nil {
		s.runner.Update()
	}
}

func (s *Simulator) updateBarrier() {
	if s.runner != nil {
		s.runner.Update()
	}
}

// TariffCount returns the scenario's configured tariff count. Immutable
// after construction; never touches the runner barrier.
func (s *Simulator) TariffCount() int { return s.eng.Config().TariffCount }

// SerialNumber returns the meter's serial number. Immutable after
// construction; never touches the runner barrier.
func (s *Simulator) SerialNumber() string { return s.eng.Config().SerialNumber }

// PhaseCount returns the scenario's configured phase count. Immutable
// after construction; never touches the runner barrier.
func (s *Simulator) PhaseCount() int { return s.eng.Config().PhaseCount }

// MeterConstant returns the meter constant. Immutable after construction;
// never touches the runner barrier.
func (s *Simulator) MeterConstant() uint32 { return s.eng.Config().MeterConstant }

// TariffCurrent returns the currently active tariff index.
func (s *Simulator) TariffCurrent() int {
	s.updateBarrier()
	return s.eng.TariffCurrent()
}

// Frequency returns the latest measured frequency.
func (s *Simulator) Frequency() float64 {
	s.updateBarrier()
	return s.eng.Instant().Frequency
}

// Instant returns the latest instantaneous readings.
func (s *Simulator) Instant() meter.Instant {
	s.updateBarrier()
	return s.eng.Instant()
}

// Power returns the latest derived power readings.
func (s *Simulator) Power() meter.Power {
	s.updateBarrier()
	return s.eng.Power()
}

// Vector returns the latest complex-number vectors.
func (s *Simulator) Vector() meter.Vector {
	s.updateBarrier()
	return s.eng.Vector()
}

// Thd returns the latest total-harmonic-distortion readings.
func (s *Simulator) Thd() meter.Thd {
	s.updateBarrier()
	return s.eng.Thd()
}

// EnergyTotal sums the energy grid across every tariff.
func (s *Simulator) EnergyTotal() meter.EnergyCell {
	s.updateBarrier()
	return s.eng.EnergyTotal()
}

// EnergyTariff returns the per-phase energy grid for one tariff index.
func (s *Simulator) EnergyTariff(idx int) ([3]meter.EnergyCell, error) {
	s.updateBarrier()
	return s.eng.EnergyTariff(idx)
}

// Uptime returns virtual seconds elapsed since construction, read from
// the engine. If a runner exists, the update barrier first lets it
// integrate the engine up to the current instant.
func (s *Simulator) Uptime() int32 {
	s.updateBarrier()
	if s.runner != nil {
		return s.runner.Time()
	}
	return s.eng.Now()
}

// TimeUTC returns the wall-clock instant the virtual clock currently maps
// to, in Unix seconds.
func (s *Simulator) TimeUTC() int64 {
	s.updateBarrier()
	return s.eng.TimeUTC()
}

// SetTimeUTC shifts the virtual-to-UTC offset so TimeUTC begins reporting
// utcSeconds at the current instant, preserving Uptime.
func (s *Simulator) SetTimeUTC(utcSeconds int64) {
	s.updateBarrier()
	s.eng.SetTimeUTC(utcSeconds)
	s.updateBarrier()
}
