package sweep

import (
	"errors"

	"github.com/sirupsen/logrus"

	"github.com/charlie0129/vftune/pkg/device"
)

// envelope records the overrides a sweep applied so that they are undone
// symmetrically, once.
type envelope struct {
	dev  device.Device
	opts Options

	fan      bool
	power    bool
	restored bool
}

// establish forces the fans and raises power limits unless the operator
// overrides them. The first failure is returned, overrides applied before it
// stay recorded for restore.
func (e *envelope) establish() error {
	if !e.opts.FanOverride {
		logrus.WithField("level", e.opts.FanLevel).Info("setting fan level")
		// Mark before the call, a failed write may still have changed
		// some coolers.
		e.fan = true
		if err := e.dev.SetFanLevel(e.opts.FanLevel); err != nil {
			return device.MutationError("set fan level", err)
		}
	}

	if !e.opts.PowerOverride {
		limits, err := e.dev.PowerLimits()
		if err != nil {
			return device.QueryError("power limits", err)
		}
		max := make([]device.Percentage, 0, len(limits))
		for _, l := range limits {
			max = append(max, l.Max)
		}
		logrus.WithField("limits", max).Info("raising power limits")
		e.power = true
		if err := e.dev.SetPowerLimits(max); err != nil {
			return device.MutationError("set power limits", err)
		}
	}

	return nil
}

// restore undoes everything establish and the search applied. Only the first
// call does anything. Every step is attempted, failures are joined.
func (e *envelope) restore(boosted bool) error {
	if e.restored {
		return nil
	}
	e.restored = true

	var errs []error
	if e.fan {
		if err := e.dev.ResetFanLevels(); err != nil {
			errs = append(errs, device.MutationError("reset fan levels", err))
		}
	}
	if e.power {
		if err := e.dev.ResetPowerLimits(); err != nil {
			errs = append(errs, device.MutationError("reset power limits", err))
		}
	}
	if boosted {
		if err := e.dev.ResetVoltageBoost(); err != nil {
			errs = append(errs, device.MutationError("reset voltage boost", err))
		}
	}
	if err := e.dev.ResetVoltageLock(); err != nil {
		errs = append(errs, device.MutationError("reset voltage lock", err))
	}

	err := errors.Join(errs...)
	if err != nil {
		logrus.WithError(err).Error("failed to restore device settings")
	} else {
		logrus.Info("device settings restored")
	}
	return err
}
