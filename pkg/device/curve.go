package device

import (
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
)

// ApplyOffsets sets the offsets of points on dev. Points are matched to the
// device table by voltage, so a curve exported from one driver version still
// applies when indices shift. Unmatched points are skipped with a warning.
func ApplyOffsets(dev Device, points []Point) (int, error) {
	table, err := dev.Points()
	if err != nil {
		return 0, QueryError("points", err)
	}

	byVoltage := make(map[Microvolts]int, len(table))
	for _, p := range table {
		byVoltage[p.Voltage] = p.Index
	}

	applied := 0
	for _, p := range points {
		idx, ok := byVoltage[p.Voltage]
		if !ok {
			logrus.WithField("voltage", p.Voltage).Warn("no point at this voltage, skipping")
			continue
		}
		if err := dev.SetOffset(idx, p.Offset); err != nil {
			return applied, MutationError("offset", err)
		}
		applied++
	}

	return applied, nil
}

// Setting is a group of device settings that can be reset.
type Setting string

const (
	SettingVoltageBoost Setting = "voltage-boost"
	SettingPowerLimits  Setting = "power-limits"
	SettingCoolers      Setting = "coolers"
	SettingOffsets      Setting = "offsets"
	SettingVoltageLock  Setting = "voltage-lock"
)

// Settings lists every resettable setting in reset order.
var Settings = []Setting{
	SettingVoltageBoost,
	SettingPowerLimits,
	SettingCoolers,
	SettingOffsets,
	SettingVoltageLock,
}

func ParseSetting(s string) (Setting, error) {
	for _, setting := range Settings {
		if strings.EqualFold(s, string(setting)) {
			return setting, nil
		}
	}
	return "", fmt.Errorf("unknown setting %q, want one of %v", s, Settings)
}

// Reset restores settings to the driver defaults. With strict unset a setting
// the device does not support, or fails to reset, only logs a warning; this
// is what resetting everything wants. Otherwise the errors are returned.
func Reset(dev Device, settings []Setting, strict bool) error {
	var errs []error
	for _, setting := range settings {
		err := reset(dev, setting)
		if err == nil {
			logrus.WithField("setting", setting).Info("setting reset")
			continue
		}
		if strict {
			errs = append(errs, err)
			continue
		}
		logrus.WithField("setting", setting).WithError(err).Warn("failed to reset setting")
	}
	return errors.Join(errs...)
}

func reset(dev Device, setting Setting) error {
	switch setting {
	case SettingVoltageBoost:
		return MutationError("voltage boost", dev.ResetVoltageBoost())
	case SettingPowerLimits:
		return MutationError("power limits", dev.ResetPowerLimits())
	case SettingCoolers:
		return MutationError("coolers", dev.ResetFanLevels())
	case SettingOffsets:
		points, err := dev.Points()
		if err != nil {
			return QueryError("points", err)
		}
		for _, p := range points {
			if p.Offset == 0 {
				continue
			}
			if err := dev.SetOffset(p.Index, 0); err != nil {
				return MutationError("offset", err)
			}
		}
		return nil
	case SettingVoltageLock:
		return MutationError("voltage lock", dev.ResetVoltageLock())
	default:
		return fmt.Errorf("unknown setting %q", setting)
	}
}
