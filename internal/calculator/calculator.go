// Package calculator implements the meter's pure vector and energy math:
// turning a scenario update plus device-injected bias currents into phase
// voltages, currents and powers, and integrating those powers into the
// energy grid over an elapsed interval.
package calculator

import (
	"math"
	"math/cmplx"

	"github.com/SovereignEdgeEU-COGNIT/use-case-3-sem-simulator/internal/meter"
)

// Bias holds the additive phase currents contributed by devices since the
// last scenario update, one complex current per phase.
type Bias struct {
	Current [3]complex128
}

// AccumulateBias folds one device's response into bias, summing its
// current contribution per phase.
func AccumulateBias(bias *Bias, res meter.DeviceResponse) {
	for i := range bias.Current {
		bias.Current[i] += res.Current[i]
	}
}

func phaseAngleRad(phase int) float64 {
	return float64(120*phase) * math.Pi / 180
}

// PrepareInfoForDevice builds the per-wake-up context handed to every
// device callback: the phase voltage vectors derived from the upcoming
// update's instantaneous voltages, with no bias applied yet.
func PrepareInfoForDevice(upd meter.Update, now int32, nowUTC int64) meter.InfoForDevice {
	var info meter.InfoForDevice
	for i := 0; i < 3; i++ {
		info.Voltage[i] = complex(upd.Instant.Voltage[i], 0) * cmplx.Exp(complex(0, phaseAngleRad(i)))
	}
	info.Now = now
	info.NowUTC = nowUTC
	return info
}

// HandleUpdate recomputes state's Instant/Power/Vector/Thd and current
// tariff from a newly-applied scenario update and the device bias
// accumulated since the previous one.
func HandleUpdate(state *meter.State, upd meter.Update, bias Bias) {
	state.CurrentTariff = upd.CurrentTariff
	state.Instant.Frequency = upd.Instant.Frequency
	state.Thd = upd.Thd

	phaseCount := state.Config.PhaseCount
	var neutral complex128
	for i := 0; i < phaseCount; i++ {
		voltage := complex(upd.Instant.Voltage[i], 0) * cmplx.Exp(complex(0, phaseAngleRad(i)))
		iAngleDeg := float64(120*i) + upd.Instant.UIAngle[i]
		current := complex(upd.Instant.Current[i], 0)*cmplx.Exp(complex(0, iAngleDeg*math.Pi/180)) + bias.Current[i]

		state.Vector.PhaseVoltage[i] = voltage
		state.Vector.PhaseCurrent[i] = current
		neutral -= current
	}
	state.Vector.ComplexNeutral = neutral
	state.Instant.CurrentNeutral = cmplx.Abs(neutral)

	for i := 0; i < phaseCount; i++ {
		current := state.Vector.PhaseCurrent[i]
		mag := cmplx.Abs(current)
		if mag < 1e-10 {
			state.Instant.Current[i] = 0
			state.Instant.UIAngle[i] = 0
		} else {
			state.Instant.Current[i] = mag
			angle := cmplx.Phase(current)*180/math.Pi - float64(120*i)
			for angle < 0 {
				angle += 360
			}
			state.Instant.UIAngle[i] = angle
		}
		state.Instant.Voltage[i] = upd.Instant.Voltage[i]

		uiAngleRad := state.Instant.UIAngle[i] * math.Pi / 180
		apparent := state.Instant.Voltage[i] * state.Instant.Current[i]
		state.Power.Apparent[i] = apparent
		state.Power.True[i] = math.Cos(uiAngleRad) * apparent
		state.Power.Reactive[i] = math.Sin(uiAngleRad) * apparent
		state.Power.Phi[i] = state.Instant.UIAngle[i]
		state.Vector.ComplexPower[i] = complex(apparent, 0) * cmplx.Exp(complex(0, uiAngleRad))
	}
}

// calculateApparent derives an apparent-energy register's initial value
// from its active and reactive components, sqrt(active^2 + reactive^2).
func calculateApparent(active, reactiveSum int64) int64 {
	return int64(math.Sqrt(float64(active)*float64(active) + float64(reactiveSum)*float64(reactiveSum)))
}

// InitScenario seeds state's energy grid from the scenario's initial
// register values and derives the apparent-energy registers from the
// active and reactive seeds.
func InitScenario(state *meter.State, cfg meter.Config, energy [][3]meter.EnergyCell) {
	state.Config = cfg
	state.Energy = make([][3]meter.EnergyCell, cfg.TariffCount)
	copy(state.Energy, energy)

	for t := range state.Energy {
		for p := 0; p < 3; p++ {
			cell := &state.Energy[t][p]
			cell.ApparentPlus.Value = calculateApparent(cell.ActivePlus.Value, cell.Reactive[0].Value+cell.Reactive[3].Value)
			cell.ApparentMinus.Value = calculateApparent(cell.ActiveMinus.Value, cell.Reactive[1].Value+cell.Reactive[2].Value)
		}
	}
}

// AccumulateEnergy integrates dt seconds of the current power readings
// into the energy grid cell for state.CurrentTariff, selecting the
// active/reactive/apparent registers by the signs of P and Q.
func AccumulateEnergy(state *meter.State, dt int32) {
	if dt == 0 {
		return
	}
	tariff := state.CurrentTariff
	if tariff < 0 || tariff >= len(state.Energy) {
		return
	}
	for i := 0; i < state.Config.PhaseCount; i++ {
		cell := &state.Energy[tariff][i]

		eApparent := meter.EnergyRegisterFromFloat(float64(dt) * state.Power.Apparent[i])
		eReactive := meter.EnergyRegisterFromFloat(float64(dt) * state.Power.Reactive[i])
		eActive := meter.EnergyRegisterFromFloat(float64(dt) * state.Power.True[i])

		isPositiveReactive := eReactive.Value >= 0
		var quadrant int
		if eActive.Value < 0 {
			if isPositiveReactive {
				quadrant = 2
			} else {
				quadrant = 3
			}
			cell.ActiveMinus.Add(eActive, -1)
			cell.ApparentMinus.Add(eApparent, 1)
		} else {
			if isPositiveReactive {
				quadrant = 1
			} else {
				quadrant = 4
			}
			cell.ActivePlus.Add(eActive, 1)
			cell.ApparentPlus.Add(eApparent, 1)
		}

		sign := int64(1)
		if !isPositiveReactive {
			sign = -1
		}
		cell.Reactive[quadrant-1].Add(eReactive, sign)
	}
}
