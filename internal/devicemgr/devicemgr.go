// Package devicemgr implements the fixed-capacity device callback
// registry: external loads register a Device, and on every engine
// wake-up every registered device is polled once, serially, for its
// injected phase currents and its next requested wake-up time.
package devicemgr

import (
	"fmt"
	"sync"

	"github.com/SovereignEdgeEU-COGNIT/use-case-3-sem-simulator/internal/calculator"
	"github.com/SovereignEdgeEU-COGNIT/use-case-3-sem-simulator/internal/meter"
)

// MaxDevices is the device table's fixed capacity.
const MaxDevices = 32

// ErrCapacity is returned by NewDevice when all MaxDevices slots are
// occupied.
var ErrCapacity = fmt.Errorf("devicemgr: device table full (max %d)", MaxDevices)

// ErrNotFound is returned by DestroyDevice for an id with no live device.
var ErrNotFound = fmt.Errorf("devicemgr: no device at that id")

// Device is implemented by external loads/sources that want to inject
// phase currents into the meter on each wake-up.
type Device interface {
	// OnTick is invoked once per engine wake-up while the manager's lock
	// is held; it must not call back into the manager or the engine.
	OnTick(info meter.InfoForDevice) meter.DeviceResponse
}

// Manager is the device registry. The zero value is not usable; use New.
type Manager struct {
	mu             sync.Mutex
	slots          [MaxDevices]Device
	count          int
	nextUpdateTime int32
}

// New returns an empty device manager with no pending device update.
func New() *Manager {
	return &Manager{nextUpdateTime: meter.NoUpdateScheduled}
}

// NewDevice registers d in the first free slot and schedules it to be
// polled on the next wake-up, returning its slot id.
func (m *Manager) NewDevice(d Device) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, s := range m.slots {
		if s == nil {
			m.slots[i] = d
			m.count++
			m.nextUpdateTime = meter.UpdateNeededNow
			return i, nil
		}
	}
	return -1, ErrCapacity
}

// DestroyDevice unregisters the device at id. It has no effect on the
// manager's pending next-update time.
func (m *Manager) DestroyDevice(id int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if id < 0 || id >= MaxDevices || m.slots[id] == nil {
		return ErrNotFound
	}
	m.slots[id] = nil
	m.count--
	return nil
}

// Notify schedules an immediate device poll on the next engine wake-up,
// for devices that want to signal a change out of band from the normal
// polling cycle.
func (m *Manager) Notify() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextUpdateTime = meter.UpdateNeededNow
}

// NextUpdateTime reports the earliest virtual time at which a registered
// device needs to be polled, or meter.NoUpdateScheduled if none do.
func (m *Manager) NextUpdateTime() int32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.nextUpdateTime
}

// UpdateDevices polls every registered device once, in slot order, under
// a single critical section (devices must not block or re-enter the
// manager), accumulating their injected currents into a bias and tracking
// the earliest next-requested wake-up.
func (m *Manager) UpdateDevices(info meter.InfoForDevice) calculator.Bias {
	m.mu.Lock()
	defer m.mu.Unlock()

	var bias calculator.Bias
	next := int32(meter.NoUpdateScheduled)
	for _, d := range m.slots {
		if d == nil {
			continue
		}
		res := d.OnTick(info)
		calculator.AccumulateBias(&bias, res)
		if res.NextUpdateTime < next {
			next = res.NextUpdateTime
		}
	}
	m.nextUpdateTime = next
	return bias
}

// Count reports how many devices are currently registered.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.count
}
