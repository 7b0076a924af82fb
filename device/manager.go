package device

import "quados/kernel/sync"

// Manager tracks the initialized drivers and dispatches interrupts to them.
type Manager struct {
	lock    sync.Spinlock
	drivers []Driver
}

// Add registers an initialized driver.
func (m *Manager) Add(drv Driver) {
	m.lock.Acquire()
	m.drivers = append(m.drivers, drv)
	m.lock.Release()
}

// Drivers returns a snapshot of the registered drivers in registration
// order.
func (m *Manager) Drivers() []Driver {
	m.lock.Acquire()
	defer m.lock.Release()

	return append([]Driver(nil), m.drivers...)
}

// ByKind returns the registered drivers whose category is kind.
func (m *Manager) ByKind(kind Kind) []DeviceType {
	var out []DeviceType
	for _, drv := range m.Drivers() {
		if devType := drv.DeviceType(); devType.Kind() == kind {
			out = append(out, devType)
		}
	}

	return out
}

// First returns the first registered driver whose category is kind.
func (m *Manager) First(kind Kind) (DeviceType, bool) {
	if list := m.ByKind(kind); len(list) != 0 {
		return list[0], true
	}

	return DeviceType{}, false
}

// HandleInterrupt offers irq to every driver that owns it and returns true
// once a driver claims it.
func (m *Manager) HandleInterrupt(irq uint32) bool {
	for _, drv := range m.Drivers() {
		if OwnsInterrupt(drv, irq) && drv.TryHandleInterrupt(irq) {
			return true
		}
	}

	return false
}
