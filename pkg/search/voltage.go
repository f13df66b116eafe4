package search

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/charlie0129/vftune/pkg/device"
)

const fullBoost = device.Percentage(100)

// WaitForVoltage polls the device until it runs at voltage, or until it
// already runs at frequency or faster at a lower voltage. It polls once per
// PollInterval and gives up after timeout, counted as one second per poll
// regardless of how long the poll actually took. Giving up is not an error.
func (s *Searcher) WaitForVoltage(ctx context.Context, voltage device.Microvolts, frequency device.Kilohertz, timeout time.Duration) (bool, error) {
	for remaining := timeout; remaining >= time.Second; remaining -= time.Second {
		current, err := s.Device.CurrentVoltage()
		if err != nil {
			return false, device.QueryError("current voltage", err)
		}
		if current == voltage {
			return true, nil
		}

		clock, err := s.Device.CurrentClock()
		if err != nil {
			return false, device.QueryError("current clock", err)
		}
		if clock >= frequency && current < voltage {
			logrus.WithFields(logrus.Fields{
				"voltage": current,
				"clock":   clock,
			}).Warnf("%s is equal or higher than %s with lower voltage, passing", clock, frequency)
			return true, nil
		}

		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-time.After(s.pollInterval()):
		}
	}

	return false, nil
}

// setVoltage locks voltage and waits for it. If it is not reached, core
// voltage boost is raised to 100% once and the wait repeated, unless the
// operator manages voltage themselves.
func (s *Searcher) setVoltage(ctx context.Context, voltage device.Microvolts, frequency device.Kilohertz) (bool, error) {
	if err := s.Device.LockVoltage(voltage); err != nil {
		return false, device.MutationError("lock voltage", err)
	}

	reached, err := s.WaitForVoltage(ctx, voltage, frequency, s.VoltageWait)
	if err != nil || reached {
		return reached, err
	}
	if s.VoltageOverride {
		return false, nil
	}

	boost, err := s.voltageBoost()
	if err != nil {
		return false, err
	}
	if boost >= fullBoost {
		return false, nil
	}

	logrus.WithField("voltage", voltage).Warn("boosting core voltage")
	if err := s.Device.SetVoltageBoost(fullBoost); err != nil {
		return false, device.MutationError("set voltage boost", err)
	}
	boost = fullBoost
	s.boost = &boost
	s.boosted = true

	return s.WaitForVoltage(ctx, voltage, frequency, s.VoltageWait)
}

// voltageBoost returns the boost as last set or read.
func (s *Searcher) voltageBoost() (device.Percentage, error) {
	if s.boost != nil {
		return *s.boost, nil
	}
	boost, err := s.Device.VoltageBoost()
	if err != nil {
		return 0, device.QueryError("voltage boost", err)
	}
	s.boost = &boost
	return boost, nil
}
