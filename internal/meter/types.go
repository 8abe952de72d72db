// Package meter holds the data types and constants shared by every SEM
// simulator component: energy registers, per-phase vectors, scenario
// updates and the device callback contract.
package meter

import "math"

// Numeric bounds and sentinels every component validates against.
const (
	MaxTariffCount        = 16
	MaxSerialNumberLength = 31
	MaxSpeedup            = 10000
	MaxMeterConstant      = math.MaxUint32
	MaxInitEnergyReg      = 100000000000000
	MaxVoltage            = 400.0
	MaxCurrent            = 100.0
	MaxThdU               = 1.0
	MaxThdI               = 1.0
	MaxFrequency          = 1000.0

	// NoUpdateScheduled marks "nothing pending" for both the device
	// manager's and the scenario cursor's next-wakeup fields, and doubles
	// as the time machine's "no pause scheduled" sentinel.
	NoUpdateScheduled = math.MaxInt32
	// UpdateNeededNow marks a device or scenario update that must be
	// applied on the very next engine wake-up.
	UpdateNeededNow = 0
)

// EnergyRegister is a fixed-point accumulator: an integer whole-unit value
// plus a fractional carry, renormalized on every Add so Value always holds
// the register's truncated total.
type EnergyRegister struct {
	Value    int64
	Fraction float64
}

// EnergyRegisterFromFloat splits v into its integer and fractional parts.
func EnergyRegisterFromFloat(v float64) EnergyRegister {
	whole := math.Floor(v)
	return EnergyRegister{Value: int64(whole), Fraction: v - whole}
}

// Add accumulates sign*src into the register, renormalizing the fraction
// back into [0, 1).
func (r *EnergyRegister) Add(src EnergyRegister, sign int64) {
	r.Value += sign * src.Value
	r.Fraction += float64(sign) * src.Fraction
	if math.Abs(r.Fraction) >= 1 {
		whole := math.Floor(r.Fraction)
		r.Value += int64(whole)
		r.Fraction -= whole
	} else if r.Fraction < 0 {
		r.Value--
		r.Fraction++
	}
}

// EnergyCell is one tariff/phase slot: active, reactive (four quadrants)
// and apparent registers, both directions.
type EnergyCell struct {
	ActivePlus    EnergyRegister
	ActiveMinus   EnergyRegister
	Reactive      [4]EnergyRegister
	ApparentPlus  EnergyRegister
	ApparentMinus EnergyRegister
}

// Config holds the meter's immutable identity and scenario parameters.
type Config struct {
	SerialNumber  string
	StartTime     int64 // Unix seconds corresponding to virtual time 0
	TariffCount   int
	PhaseCount    int
	MeterConstant uint32
	Speedup       int
}

// Instant is the latest per-phase instantaneous reading.
type Instant struct {
	Frequency      float64
	Voltage        [3]float64
	Current        [3]float64
	CurrentNeutral float64
	UIAngle        [3]float64 // degrees, current relative to its own phase voltage
}

// Power holds derived per-phase power quantities.
type Power struct {
	True     [3]float64
	Reactive [3]float64
	Apparent [3]float64
	Phi      [3]float64 // degrees
}

// Vector holds the complex-number representations used internally to
// derive Instant and Power.
type Vector struct {
	ComplexPower   [3]complex128
	PhaseVoltage   [3]complex128
	PhaseCurrent   [3]complex128
	ComplexNeutral complex128
}

// Thd holds total-harmonic-distortion readings for voltage and current.
type Thd struct {
	ThdU [3]float32
	ThdI [3]float32
}

// Update is one scenario row: the instantaneous readings that take effect
// at Timestamp.
type Update struct {
	Timestamp     int32
	CurrentTariff int
	Instant       Instant
	Thd           Thd
}

// InfoForDevice is passed to every device callback on each engine
// wake-up: the phase voltage vectors and the current time.
type InfoForDevice struct {
	Voltage [3]complex128
	Now     int32
	NowUTC  int64
}

// DeviceResponse is what a device callback returns: its injected phase
// currents and when it next needs to be polled (UpdateNeededNow,
// NoUpdateScheduled, or a future virtual timestamp).
type DeviceResponse struct {
	Current        [3]complex128
	NextUpdateTime int32
}

// State is the meter's full live state: identity, latest readings and the
// tariff x phase energy grid.
type State struct {
	Config        Config
	CurrentTariff int
	Instant       Instant
	Power         Power
	Vector        Vector
	Thd           Thd
	// Energy is indexed [tariff][phase]; phases beyond Config.PhaseCount
	// are always zero, matching the C layout's fixed 3-wide phase axis.
	Energy [][3]EnergyCell
}

// NewState allocates a zeroed energy grid sized for cfg.TariffCount.
func NewState(cfg Config) State {
	return State{
		Config: cfg,
		Energy: make([][3]EnergyCell, cfg.TariffCount),
	}
}
