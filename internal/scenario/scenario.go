// Package scenario loads a scenario directory's config.toml (meter
// identity, speed-up and seed energy registers) and exposes updates.csv
// as a forward-only cursor of scenario updates.
package scenario

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/SovereignEdgeEU-COGNIT/use-case-3-sem-simulator/internal/meter"
	"github.com/SovereignEdgeEU-COGNIT/use-case-3-sem-simulator/internal/semlog"
)

// configFileName and updatesFileName are the two files read from a
// scenario directory. Only updates.csv must exist; a missing config.toml
// falls back to the default scenario.
const (
	configFileName  = "config.toml"
	updatesFileName = "updates.csv"
)

type tomlPhase struct {
	ActivePlus  int64 `toml:"activePlus"`
	ActiveMinus int64 `toml:"activeMinus"`
	Reactive1   int64 `toml:"reactive1"`
	Reactive2   int64 `toml:"reactive2"`
	Reactive3   int64 `toml:"reactive3"`
	Reactive4   int64 `toml:"reactive4"`
}

type tomlTariff struct {
	Phase1 tomlPhase `toml:"phase1"`
	Phase2 tomlPhase `toml:"phase2"`
	Phase3 tomlPhase `toml:"phase3"`
}

type tomlConfig struct {
	SerialNumber   string       `toml:"serialNumber"`
	Speedup        int          `toml:"speedup"`
	TariffCount    int          `toml:"tariffCount"`
	PhaseCount     int          `toml:"phaseCount"`
	MeterConstant  int64        `toml:"meterConstant"`
	StartTimestamp time.Time    `toml:"startTimestamp"`
	Tariff         []tomlTariff `toml:"tariff"`
}

// defaultConfig is the scenario every load starts from; config.toml keys
// override it one by one. StartTime -1 means "not set" and is replaced
// by the wall clock in Load.
func defaultConfig() meter.Config {
	return meter.Config{TariffCount: 1, PhaseCount: 3, Speedup: 1, StartTime: -1}
}

// Load reads config.toml and primes a Cursor over updates.csv in dir. If
// config.toml is missing or unparseable, the default single-tariff,
// three-phase scenario with speedup 1 is used instead, logging a
// warning.
func Load(dir string) (meter.Config, [][3]meter.EnergyCell, *Cursor, error) {
	cfg, energy, err := readScenario(filepath.Join(dir, configFileName))
	if err != nil {
		semlog.Warningf("scenario: falling back to default config: %v", err)
		cfg = defaultConfig()
		energy = make([][3]meter.EnergyCell, cfg.TariffCount)
	}
	if cfg.StartTime == -1 {
		cfg.StartTime = time.Now().Unix()
	}

	cursor, err := newCursor(filepath.Join(dir, updatesFileName))
	if err != nil {
		return meter.Config{}, nil, nil, fmt.Errorf("scenario: opening %s: %w", updatesFileName, err)
	}
	return cfg, energy, cursor, nil
}

// readScenario applies config.toml on top of the defaults. Every key is
// optional and an out-of-range value is logged and ignored, keeping the
// default for that key only; only a missing or unparseable file is an
// error.
func readScenario(path string) (meter.Config, [][3]meter.EnergyCell, error) {
	var raw tomlConfig
	md, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return meter.Config{}, nil, fmt.Errorf("reading %s: %w", path, err)
	}

	cfg := defaultConfig()
	if md.IsDefined("serialNumber") {
		if len(raw.SerialNumber) > meter.MaxSerialNumberLength {
			semlog.Errorf("scenario: serialNumber longer than %d characters, ignoring", meter.MaxSerialNumberLength)
		} else {
			cfg.SerialNumber = raw.SerialNumber
		}
	}
	if md.IsDefined("speedup") {
		if raw.Speedup <= 0 || raw.Speedup > meter.MaxSpeedup {
			semlog.Errorf("scenario: speedup %d out of range (0, %d], ignoring", raw.Speedup, meter.MaxSpeedup)
		} else {
			cfg.Speedup = raw.Speedup
		}
	}
	if md.IsDefined("tariffCount") {
		if raw.TariffCount <= 0 || raw.TariffCount > meter.MaxTariffCount {
			semlog.Errorf("scenario: tariffCount %d out of range (0, %d], ignoring", raw.TariffCount, meter.MaxTariffCount)
		} else {
			cfg.TariffCount = raw.TariffCount
		}
	}
	if md.IsDefined("phaseCount") {
		if raw.PhaseCount <= 0 || raw.PhaseCount > 3 {
			semlog.Errorf("scenario: phaseCount %d out of range (0, 3], ignoring", raw.PhaseCount)
		} else {
			cfg.PhaseCount = raw.PhaseCount
		}
	}
	if md.IsDefined("meterConstant") {
		if raw.MeterConstant < 0 || raw.MeterConstant > meter.MaxMeterConstant {
			semlog.Errorf("scenario: meterConstant %d out of range, ignoring", raw.MeterConstant)
		} else {
			cfg.MeterConstant = uint32(raw.MeterConstant)
		}
	}
	if md.IsDefined("startTimestamp") {
		cfg.StartTime = raw.StartTimestamp.Unix()
	}

	energy := make([][3]meter.EnergyCell, cfg.TariffCount)
	for t := 0; t < cfg.TariffCount && t < len(raw.Tariff); t++ {
		phases := [3]tomlPhase{raw.Tariff[t].Phase1, raw.Tariff[t].Phase2, raw.Tariff[t].Phase3}
		for p := 0; p < 3; p++ {
			energy[t][p] = toEnergyCell(phases[p])
		}
	}
	return cfg, energy, nil
}

// handleEnergyRegister validates a single seed register value against
// the scenario format's bound, logging and leaving the register at zero
// on an out-of-range value.
func handleEnergyRegister(name string, v int64) meter.EnergyRegister {
	if v < 0 || v > meter.MaxInitEnergyReg {
		semlog.Errorf("scenario: %s=%d out of range, ignoring", name, v)
		return meter.EnergyRegister{}
	}
	return meter.EnergyRegister{Value: v}
}

func toEnergyCell(p tomlPhase) meter.EnergyCell {
	return meter.EnergyCell{
		ActivePlus:  handleEnergyRegister("activePlus", p.ActivePlus),
		ActiveMinus: handleEnergyRegister("activeMinus", p.ActiveMinus),
		Reactive: [4]meter.EnergyRegister{
			handleEnergyRegister("reactive1", p.Reactive1),
			handleEnergyRegister("reactive2", p.Reactive2),
			handleEnergyRegister("reactive3", p.Reactive3),
			handleEnergyRegister("reactive4", p.Reactive4),
		},
	}
}

// Cursor is a forward-only reader over updates.csv, yielding syntactically
// valid rows in file order and skipping malformed lines with a logged
// warning.
type Cursor struct {
	f   *os.File
	r   *csv.Reader
	eof bool
}

func newCursor(path string) (*Cursor, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true
	return &Cursor{f: f, r: r}, nil
}

// Next returns the next syntactically valid update, or ok=false once
// updates.csv is exhausted.
func (c *Cursor) Next() (meter.Update, bool, error) {
	if c.eof {
		return meter.Update{}, false, nil
	}
	for {
		record, err := c.r.Read()
		if err == io.EOF {
			c.eof = true
			return meter.Update{}, false, nil
		}
		if err != nil {
			return meter.Update{}, false, fmt.Errorf("scenario: reading updates.csv: %w", err)
		}
		upd, perr := parseUpdateRow(record)
		if perr != nil {
			semlog.Warningf("scenario: skipping malformed updates.csv row: %v", perr)
			continue
		}
		return upd, true, nil
	}
}

// Close releases the underlying updates.csv file handle.
func (c *Cursor) Close() error {
	return c.f.Close()
}

// parseUpdateRow parses the 18 positional fields of one updates.csv line:
// timestamp, currentTariff, frequency, u1-3, i1-3, uiAngle1-3, thdU1-3,
// thdI1-3.
func parseUpdateRow(record []string) (meter.Update, error) {
	const wantFields = 18
	if len(record) != wantFields {
		return meter.Update{}, fmt.Errorf("expected %d fields, got %d", wantFields, len(record))
	}

	if record[0] == "" || record[0][0] < '0' || record[0][0] > '9' {
		return meter.Update{}, fmt.Errorf("timestamp: line does not start with a digit")
	}

	var upd meter.Update
	timestamp, err := strconv.ParseInt(record[0], 10, 32)
	if err != nil {
		return meter.Update{}, fmt.Errorf("timestamp: %w", err)
	}
	if timestamp < 0 {
		return meter.Update{}, fmt.Errorf("timestamp: %d must be >= 0", timestamp)
	}
	upd.Timestamp = int32(timestamp)

	tariff, err := strconv.ParseInt(record[1], 10, 32)
	if err != nil {
		return meter.Update{}, fmt.Errorf("currentTariff: %w", err)
	}
	upd.CurrentTariff = int(tariff)

	frequency, err := parseBoundedFloat(record[2], 0, meter.MaxFrequency)
	if err != nil {
		return meter.Update{}, fmt.Errorf("frequency: %w", err)
	}
	upd.Instant.Frequency = frequency

	for i := 0; i < 3; i++ {
		v, err := parseBoundedFloat(record[3+i], 0, meter.MaxVoltage)
		if err != nil {
			return meter.Update{}, fmt.Errorf("u%d: %w", i+1, err)
		}
		upd.Instant.Voltage[i] = v
	}
	for i := 0; i < 3; i++ {
		v, err := parseBoundedFloat(record[6+i], 0, meter.MaxCurrent)
		if err != nil {
			return meter.Update{}, fmt.Errorf("i%d: %w", i+1, err)
		}
		upd.Instant.Current[i] = v
	}
	for i := 0; i < 3; i++ {
		v, err := parseBoundedFloat(record[9+i], 0, 360)
		if err != nil {
			return meter.Update{}, fmt.Errorf("uiAngle%d: %w", i+1, err)
		}
		upd.Instant.UIAngle[i] = v
	}
	for i := 0; i < 3; i++ {
		v, err := parseBoundedFloat(record[12+i], 0, meter.MaxThdU)
		if err != nil {
			return meter.Update{}, fmt.Errorf("thdU%d: %w", i+1, err)
		}
		upd.Thd.ThdU[i] = float32(v)
	}
	for i := 0; i < 3; i++ {
		v, err := parseBoundedFloat(record[15+i], 0, meter.MaxThdI)
		if err != nil {
			return meter.Update{}, fmt.Errorf("thdI%d: %w", i+1, err)
		}
		upd.Thd.ThdI[i] = float32(v)
	}
	return upd, nil
}

func parseBoundedFloat(s string, lo, hi float64) (float64, error) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if v < lo || v > hi {
		return 0, fmt.Errorf("%v out of range [%v, %v]", v, lo, hi)
	}
	return v, nil
}
