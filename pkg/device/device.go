// Package device defines the capability set vftune needs from a GPU driver:
// clock/voltage telemetry, the voltage/frequency point table, and the
// overrides that make up the safety envelope (fans, power limits, voltage
// boost, voltage lock).
//
// Drivers live outside this package and register themselves by name, see
// Register and Open.
package device

// Telemetry is the read-only part of a device polled during a test cycle.
type Telemetry interface {
	// CurrentClock returns the current graphics clock.
	CurrentClock() (Kilohertz, error)
	// CurrentVoltage returns the current core voltage.
	CurrentVoltage() (Microvolts, error)
	// Limits returns the performance limit flags of the last sampling window.
	Limits() (LimitFlags, error)
}

// Device is a tunable GPU.
type Device interface {
	Telemetry

	// Name returns a human-readable device name.
	Name() string

	// Points returns the voltage/frequency table ordered by index, with the
	// currently applied offsets.
	Points() ([]Point, error)
	// SetOffset applies a frequency offset to the point at index.
	SetOffset(index int, delta KilohertzDelta) error

	// LockVoltage forces the device to run at voltage.
	LockVoltage(voltage Microvolts) error
	// ResetVoltageLock clears any voltage lock.
	ResetVoltageLock() error

	// SetFanLevel sets every cooler to a fixed duty cycle.
	SetFanLevel(level Percentage) error
	// ResetFanLevels returns coolers to the driver default policy.
	ResetFanLevels() error

	// PowerLimits returns all power limit policies.
	PowerLimits() ([]PowerLimit, error)
	// SetPowerLimits sets the power limits, one value per policy.
	SetPowerLimits(limits []Percentage) error
	// ResetPowerLimits restores default power limits.
	ResetPowerLimits() error

	// VoltageBoost returns the core voltage boost.
	VoltageBoost() (Percentage, error)
	// SetVoltageBoost sets the core voltage boost.
	SetVoltageBoost(boost Percentage) error
	// ResetVoltageBoost restores the default core voltage boost.
	ResetVoltageBoost() error
}

// Closer is implemented by devices holding driver resources.
type Closer interface {
	Close() error
}
