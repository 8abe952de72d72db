package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SovereignEdgeEU-COGNIT/use-case-3-sem-simulator/internal/devicemgr"
	"github.com/SovereignEdgeEU-COGNIT/use-case-3-sem-simulator/internal/meter"
)

// fakeCursor replays a fixed slice of updates in order, then reports EOF.
type fakeCursor struct {
	updates []meter.Update
	pos     int
}

func (f *fakeCursor) Next() (meter.Update, bool, error) {
	if f.pos >= len(f.updates) {
		return meter.Update{}, false, nil
	}
	upd := f.updates[f.pos]
	f.pos++
	return upd, true, nil
}

func baseConfig() meter.Config {
	return meter.Config{TariffCount: 1, PhaseCount: 1, Speedup: 1}
}

func TestNew_AppliesUpdateScheduledAtTimestampZero(t *testing.T) {
	cursor := &fakeCursor{updates: []meter.Update{
		{Timestamp: 0, CurrentTariff: 0, Instant: meter.Instant{Voltage: [3]float64{230}, Current: [3]float64{10}}},
	}}
	e, err := New(baseConfig(), nil, cursor, devicemgr.New())
	require.NoError(t, err)

	assert.Equal(t, int32(0), e.Now())
	assert.InDelta(t, 10, e.Instant().Current[0], 1e-9)
}

func TestStepForward_AppliesScheduledUpdateAtItsTimestamp(t *testing.T) {
	cursor := &fakeCursor{updates: []meter.Update{
		{Timestamp: 10, CurrentTariff: 0, Instant: meter.Instant{Voltage: [3]float64{230}, Current: [3]float64{5}}},
	}}
	e, err := New(baseConfig(), nil, cursor, devicemgr.New())
	require.NoError(t, err)

	require.NoError(t, e.StepForward(5))
	assert.Equal(t, int32(5), e.Now())
	assert.InDelta(t, 0, e.Instant().Current[0], 1e-9) // update not reached yet

	require.NoError(t, e.StepForward(10))
	assert.Equal(t, int32(15), e.Now())
	assert.InDelta(t, 5, e.Instant().Current[0], 1e-9)
}

func TestStepForward_ZeroDeltaStillRuns(t *testing.T) {
	e, err := New(baseConfig(), nil, &fakeCursor{}, devicemgr.New())
	require.NoError(t, err)

	require.NoError(t, e.StepForward(0))
	assert.Equal(t, int32(0), e.Now())
}

func TestStepForward_NegativeDeltaIsRejected(t *testing.T) {
	e, err := New(baseConfig(), nil, &fakeCursor{}, devicemgr.New())
	require.NoError(t, err)

	err = e.StepForward(-1)
	assert.ErrorIs(t, err, ErrNegativeStep)
}

func TestStepForward_AccumulatesEnergyOverElapsedInterval(t *testing.T) {
	cursor := &fakeCursor{updates: []meter.Update{
		{Timestamp: 0, CurrentTariff: 0, Instant: meter.Instant{Voltage: [3]float64{100}, Current: [3]float64{10}}},
	}}
	e, err := New(baseConfig(), nil, cursor, devicemgr.New())
	require.NoError(t, err)

	require.NoError(t, e.StepForward(10))
	total := e.EnergyTotal()
	// 100V * 10A * 10s = 10000 Ws of active-plus energy.
	assert.Equal(t, int64(10000), total.ActivePlus.Value)
}

func TestEnergyTariff_RejectsOutOfRangeIndex(t *testing.T) {
	e, err := New(baseConfig(), nil, &fakeCursor{}, devicemgr.New())
	require.NoError(t, err)

	_, err = e.EnergyTariff(5)
	assert.ErrorIs(t, err, ErrTariffOutOfRange)
}

func TestSetTimeUTC_PreservesUptime(t *testing.T) {
	cfg := baseConfig()
	cfg.StartTime = 1000
	e, err := New(cfg, nil, &fakeCursor{}, devicemgr.New())
	require.NoError(t, err)

	require.NoError(t, e.StepForward(50))
	assert.Equal(t, int64(1050), e.TimeUTC())

	e.SetTimeUTC(5000)
	assert.Equal(t, int64(5000), e.TimeUTC())
	assert.Equal(t, int32(50), e.Now()) // uptime unchanged
}

func TestGetValidUpdate_SkipsStaleAndOutOfRangeTariffRows(t *testing.T) {
	cursor := &fakeCursor{updates: []meter.Update{
		{Timestamp: -5, CurrentTariff: 0},              // stale relative to initial now=-1
		{Timestamp: 5, CurrentTariff: 9},                // tariff out of range (TariffCount=1)
		{Timestamp: 20, CurrentTariff: 0, Instant: meter.Instant{Voltage: [3]float64{1}, Current: [3]float64{1}}},
	}}
	e, err := New(baseConfig(), nil, cursor, devicemgr.New())
	require.NoError(t, err)

	require.NoError(t, e.StepForward(20))
	assert.InDelta(t, 1, e.Instant().Current[0], 1e-9)
}
