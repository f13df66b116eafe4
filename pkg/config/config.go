package config

import "time"

// Config is the sweep configuration. Command line flags are applied on top
// with the setters.
type Config interface {
	Step() uint32
	MaxFrequency() uint32
	Start() int
	End() int
	VoltageWait() time.Duration
	Policy() string
	FanLevel() uint32
	FanOverride() bool
	PowerOverride() bool
	VoltageOverride() bool
	Workload() string
	Output() string
	Format() string

	SetStep(uint32)
	SetMaxFrequency(uint32)
	SetStart(int)
	SetEnd(int)
	SetVoltageWait(time.Duration)
	SetPolicy(string)
	SetFanLevel(uint32)
	SetFanOverride(bool)
	SetPowerOverride(bool)
	SetVoltageOverride(bool)
	SetWorkload(string)
	SetOutput(string)
	SetFormat(string)

	// Validate checks values that cannot be checked per field.
	Validate() error

	// Load reads the configuration from the source.
	Load() error
	// Save saves the configuration to the source.
	Save() error
}
