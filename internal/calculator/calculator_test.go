package calculator

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/SovereignEdgeEU-COGNIT/use-case-3-sem-simulator/internal/meter"
)

func TestInitScenario_DerivesApparentFromActiveAndReactive(t *testing.T) {
	cfg := meter.Config{TariffCount: 1, PhaseCount: 3}
	energy := make([][3]meter.EnergyCell, 1)
	energy[0][0] = meter.EnergyCell{
		ActivePlus: meter.EnergyRegister{Value: 3},
		Reactive:   [4]meter.EnergyRegister{{Value: 4}},
	}

	var state meter.State
	InitScenario(&state, cfg, energy)

	assert.Equal(t, int64(5), state.Energy[0][0].ApparentPlus.Value) // sqrt(3^2+4^2) = 5
}

func TestHandleUpdate_BalancedThreePhaseNeutralIsNearZero(t *testing.T) {
	cfg := meter.Config{TariffCount: 1, PhaseCount: 3}
	state := meter.NewState(cfg)

	upd := meter.Update{
		CurrentTariff: 0,
		Instant: meter.Instant{
			Frequency: 50,
			Voltage:   [3]float64{230, 230, 230},
			Current:   [3]float64{10, 10, 10},
		},
	}
	HandleUpdate(&state, upd, Bias{})

	assert.InDelta(t, 0, state.Instant.CurrentNeutral, 1e-9)
	for i := 0; i < 3; i++ {
		assert.InDelta(t, 2300, state.Power.True[i], 1e-6)
		assert.InDelta(t, 0, state.Power.Reactive[i], 1e-6)
		assert.InDelta(t, 2300, state.Power.Apparent[i], 1e-6)
		assert.InDelta(t, 10, state.Instant.Current[i], 1e-9)
	}
}

func TestHandleUpdate_DeviceBiasAddsToPhaseCurrent(t *testing.T) {
	cfg := meter.Config{TariffCount: 1, PhaseCount: 1}
	state := meter.NewState(cfg)

	upd := meter.Update{
		Instant: meter.Instant{Voltage: [3]float64{230}, Current: [3]float64{0}},
	}
	bias := Bias{Current: [3]complex128{complex(5, 0)}}
	HandleUpdate(&state, upd, bias)

	assert.InDelta(t, 5, state.Instant.Current[0], 1e-9)
	assert.InDelta(t, 1150, state.Power.True[0], 1e-6) // 230V * 5A
}

func TestHandleUpdate_TinyCurrentClampsToZero(t *testing.T) {
	cfg := meter.Config{TariffCount: 1, PhaseCount: 1}
	state := meter.NewState(cfg)

	upd := meter.Update{Instant: meter.Instant{Voltage: [3]float64{230}, Current: [3]float64{0}}}
	HandleUpdate(&state, upd, Bias{})

	assert.Equal(t, 0.0, state.Instant.Current[0])
	assert.Equal(t, 0.0, state.Instant.UIAngle[0])
}

// TestHandleUpdate_ReactivePowerAndPhiMatchNonzeroUIAngle is a regression
// test for the True/Reactive/Phi sign with uiAngle = {315, 135, 225},
// u=220, i={50,50,40}: ui_angle=0 on every phase (as in the
// balanced-neutral test above) leaves Q=0 and cannot distinguish
// conj(V)*I from V*conj(I).
func TestHandleUpdate_ReactivePowerAndPhiMatchNonzeroUIAngle(t *testing.T) {
	cfg := meter.Config{TariffCount: 1, PhaseCount: 3}
	state := meter.NewState(cfg)

	upd := meter.Update{
		Instant: meter.Instant{
			Voltage: [3]float64{220, 220, 220},
			Current: [3]float64{50, 50, 40},
			UIAngle: [3]float64{315, 135, 225},
		},
	}
	HandleUpdate(&state, upd, Bias{})

	sqrt2over2 := math.Sqrt(2) / 2
	wantTrue := []float64{50 * 220 * sqrt2over2, -50 * 220 * sqrt2over2, -40 * 220 * sqrt2over2}
	wantReactive := []float64{-50 * 220 * sqrt2over2, 50 * 220 * sqrt2over2, -40 * 220 * sqrt2over2}
	wantApparent := []float64{50 * 220, 50 * 220, 40 * 220}
	wantPhi := []float64{315, 135, 225}

	for i := 0; i < 3; i++ {
		assert.InDelta(t, wantTrue[i], state.Power.True[i], 1e-6, "phase %d true power", i)
		assert.InDelta(t, wantReactive[i], state.Power.Reactive[i], 1e-6, "phase %d reactive power", i)
		assert.InDelta(t, wantApparent[i], state.Power.Apparent[i], 1e-6, "phase %d apparent power", i)
		assert.InDelta(t, wantPhi[i], state.Power.Phi[i], 1e-9, "phase %d phi", i)
	}
}

func TestAccumulateEnergy_CreditsActivePlusOnPositivePower(t *testing.T) {
	cfg := meter.Config{TariffCount: 1, PhaseCount: 1}
	state := meter.NewState(cfg)
	state.Power.True[0] = 1000
	state.Power.Reactive[0] = 500
	state.Power.Apparent[0] = math.Hypot(1000, 500)

	AccumulateEnergy(&state, 10)

	cell := state.Energy[0][0]
	assert.Equal(t, int64(10000), cell.ActivePlus.Value)
	assert.Equal(t, int64(5000), cell.Reactive[0].Value)
	assert.Equal(t, int64(0), cell.ActiveMinus.Value)
}

func TestAccumulateEnergy_CreditsActiveMinusOnNegativePower(t *testing.T) {
	cfg := meter.Config{TariffCount: 1, PhaseCount: 1}
	state := meter.NewState(cfg)
	state.Power.True[0] = -1000
	state.Power.Reactive[0] = -500
	state.Power.Apparent[0] = 1000

	AccumulateEnergy(&state, 10)

	cell := state.Energy[0][0]
	assert.Equal(t, int64(10000), cell.ActiveMinus.Value)
	assert.Equal(t, int64(5000), cell.Reactive[2].Value) // quadrant 3 -> index 2
	assert.Equal(t, int64(10000), cell.ApparentMinus.Value)
}

// TestAccumulateEnergy_QuadrantSelectionWithNonzeroUIAngle integrates 7
// seconds of the same {315, 135, 225} uiAngle fixture as above: phase 1
// lands in quadrant IV, phase 2 in quadrant II and phase 3 in quadrant
// III.
func TestAccumulateEnergy_QuadrantSelectionWithNonzeroUIAngle(t *testing.T) {
	cfg := meter.Config{TariffCount: 1, PhaseCount: 3}
	state := meter.NewState(cfg)

	upd := meter.Update{
		Instant: meter.Instant{
			Voltage: [3]float64{220, 220, 220},
			Current: [3]float64{50, 50, 40},
			UIAngle: [3]float64{315, 135, 225},
		},
	}
	HandleUpdate(&state, upd, Bias{})
	AccumulateEnergy(&state, 7)

	cos45 := math.Cos(45 * math.Pi / 180)
	sin45 := math.Sin(45 * math.Pi / 180)

	phase1 := state.Energy[0][0]
	assert.InDelta(t, 7*50*220*cos45, float64(phase1.ActivePlus.Value), 1)
	assert.InDelta(t, 7*50*220*sin45, float64(phase1.Reactive[3].Value), 1) // quadrant IV
	assert.Equal(t, int64(0), phase1.ActiveMinus.Value)

	phase2 := state.Energy[0][1]
	assert.InDelta(t, 7*50*220*cos45, float64(phase2.ActiveMinus.Value), 1)
	assert.InDelta(t, 7*50*220*sin45, float64(phase2.Reactive[1].Value), 1) // quadrant II
	assert.Equal(t, int64(0), phase2.ActivePlus.Value)

	phase3 := state.Energy[0][2]
	assert.InDelta(t, 7*40*220*cos45, float64(phase3.ActiveMinus.Value), 1)
	assert.InDelta(t, 7*40*220*sin45, float64(phase3.Reactive[2].Value), 1) // quadrant III
	assert.Equal(t, int64(0), phase3.ActivePlus.Value)
}

func TestAccumulateEnergy_ZeroIntervalIsNoOp(t *testing.T) {
	cfg := meter.Config{TariffCount: 1, PhaseCount: 1}
	state := meter.NewState(cfg)
	state.Power.True[0] = 1000

	AccumulateEnergy(&state, 0)

	assert.Equal(t, int64(0), state.Energy[0][0].ActivePlus.Value)
}
