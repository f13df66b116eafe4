package sim

import (
	"os"

	pkgerrors "github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/charlie0129/vftune/pkg/device"
)

// PointProfile describes one simulated table entry.
type PointProfile struct {
	Voltage   device.Microvolts `yaml:"voltage" json:"voltage"`
	Frequency device.Kilohertz  `yaml:"frequency" json:"frequency"`
	// Offset applied when the device is opened.
	Offset device.KilohertzDelta `yaml:"offset" json:"offset"`
	// Ceiling is the largest offset that survives a stability workload.
	Ceiling device.KilohertzDelta `yaml:"ceiling" json:"ceiling"`
}

// Profile describes a simulated GPU.
type Profile struct {
	Name   string         `yaml:"name" json:"name"`
	Points []PointProfile `yaml:"points" json:"points"`
	// MaxVoltage is the highest voltage reachable without voltage boost.
	// Zero means every point is reachable.
	MaxVoltage device.Microvolts `yaml:"maxVoltage" json:"maxVoltage"`
	// BoostedMaxVoltage is reachable once voltage boost is at 100%.
	// Zero means every point is reachable when boosted.
	BoostedMaxVoltage device.Microvolts  `yaml:"boostedMaxVoltage" json:"boostedMaxVoltage"`
	VoltageBoost      device.Percentage  `yaml:"voltageBoost" json:"voltageBoost"`
	PowerLimits       []device.PowerLimit `yaml:"powerLimits" json:"powerLimits"`
}

// DefaultProfile returns an eight point table resembling a mid-range card.
func DefaultProfile() *Profile {
	p := &Profile{
		Name: "Simulated GPU",
		PowerLimits: []device.PowerLimit{
			{Current: 100, Default: 100, Min: 50, Max: 115},
		},
	}

	for i := 0; i < 8; i++ {
		p.Points = append(p.Points, PointProfile{
			Voltage:   device.Microvolts(700000 + i*50000),
			Frequency: device.Kilohertz(1500000 + i*60000),
			Ceiling:   device.KilohertzDelta(230000 - i*15000),
		})
	}

	return p
}

// LoadProfile reads a profile from a YAML or JSON file.
func LoadProfile(path string) (*Profile, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to read profile %s", path)
	}

	p := &Profile{}
	if err := yaml.Unmarshal(b, p); err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to unmarshal profile %s", path)
	}
	if len(p.Points) == 0 {
		return nil, pkgerrors.Errorf("profile %s has no points", path)
	}
	if p.Name == "" {
		p.Name = "Simulated GPU"
	}

	return p, nil
}
