// Package search finds the highest stable frequency offset for a single
// voltage/frequency table point.
package search

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/charlie0129/vftune/pkg/device"
	"github.com/charlie0129/vftune/pkg/limits"
)

const (
	DefaultVoltageWait  = 2 * time.Second
	DefaultPollInterval = time.Second
)

// ErrInvalidStep is returned when the step size is not positive.
var ErrInvalidStep = errors.New("step must be positive")

// Tester runs one test cycle. *workload.Runner implements it.
type Tester interface {
	Run(ctx context.Context, voltage device.Microvolts, frequency device.Kilohertz) (limits.Verdict, error)
}

// Searcher searches points of one device. It is not safe for concurrent use.
type Searcher struct {
	Device device.Device
	Tester Tester

	// Step is the offset granularity. Every offset set by the searcher is a
	// multiple of it.
	Step device.KilohertzDelta
	// VoltageWait bounds how long a voltage lock is waited for.
	VoltageWait time.Duration
	// VoltageOverride means the operator manages voltage boost, it is never
	// raised automatically.
	VoltageOverride bool
	Policy          Policy

	// PollInterval is the delay between voltage polls.
	PollInterval time.Duration

	boost   *device.Percentage
	boosted bool
}

// Result is a validated point.
type Result struct {
	// Point carries the chosen offset. It is applied on the device.
	Point device.Point `json:"point"`
	// Cycles is the number of test cycles run.
	Cycles int `json:"cycles"`
}

// Boosted reports whether the searcher raised the core voltage boost.
func (s *Searcher) Boosted() bool {
	return s.boosted
}

func (s *Searcher) pollInterval() time.Duration {
	if s.PollInterval <= 0 {
		return DefaultPollInterval
	}
	return s.PollInterval
}

// TestPoint searches the best stable offset of point, never letting its
// effective frequency exceed ceiling. It returns nil when the point's
// voltage cannot be reached.
func (s *Searcher) TestPoint(ctx context.Context, point device.Point, ceiling device.Kilohertz) (*Result, error) {
	if s.Step <= 0 {
		return nil, ErrInvalidStep
	}

	maxOffset := floorStep(ceiling.Sub(point.Frequency), s.Step)
	start := floorStep(point.Offset, s.Step)
	if start > maxOffset {
		start = maxOffset
	}
	if start < 0 {
		start = 0
	}

	logrus.WithFields(logrus.Fields{
		"index":   point.Index,
		"voltage": point.Voltage,
		"base":    point.Frequency,
		"start":   start,
		"ceiling": ceiling,
		"policy":  s.Policy,
	}).Infof("testing point %s: current frequency %s", point.Voltage, point.Effective())

	var (
		offset device.KilohertzDelta
		cycles int
		ok     bool
		err    error
	)
	switch s.Policy {
	case PolicyBinary:
		offset, cycles, ok, err = s.binary(ctx, point, Range{Min: start, Max: maxOffset})
	default:
		offset, cycles, ok, err = s.stepped(ctx, point, start, maxOffset)
	}
	if err != nil || !ok {
		return nil, err
	}

	if offset < 0 {
		offset = 0
	}
	if err := s.Device.SetOffset(point.Index, offset); err != nil {
		return nil, device.MutationError("set offset", err)
	}

	point.Offset = offset
	logrus.WithFields(logrus.Fields{
		"index":  point.Index,
		"offset": offset,
		"cycles": cycles,
	}).Infof("point %s settled at %s", point.Voltage, point.Effective())

	return &Result{Point: point, Cycles: cycles}, nil
}

// cycle locks the point's voltage, applies offset and runs one test. ok is
// false when the voltage could not be reached.
func (s *Searcher) cycle(ctx context.Context, point device.Point, offset device.KilohertzDelta) (verdict limits.Verdict, ok bool, err error) {
	frequency := point.Frequency.Add(offset)

	// Firmware drops the lock now and then, set it every time.
	if err := s.Device.ResetVoltageLock(); err != nil {
		return verdict, false, device.MutationError("reset voltage lock", err)
	}
	reached, err := s.setVoltage(ctx, point.Voltage, frequency)
	if err != nil {
		return verdict, false, err
	}
	if !reached {
		logrus.WithField("index", point.Index).Warnf("skipping %s: failed to set", point.Voltage)
		return verdict, false, nil
	}

	if err := s.Device.SetOffset(point.Index, offset); err != nil {
		return verdict, false, device.MutationError("set offset", err)
	}
	logrus.WithField("index", point.Index).Infof("testing %s: %s", point.Voltage, frequency)

	verdict, err = s.Tester.Run(ctx, point.Voltage, frequency)
	if err != nil {
		return verdict, false, err
	}
	return verdict, true, nil
}

// stepped climbs from start while cycles pass. A load failure steps back
// three steps, any other limit one step.
func (s *Searcher) stepped(ctx context.Context, point device.Point, start, maxOffset device.KilohertzDelta) (device.KilohertzDelta, int, bool, error) {
	log := logrus.WithField("index", point.Index)
	offset := start
	cycles := 0

	for {
		verdict, ok, err := s.cycle(ctx, point, offset)
		if err != nil || !ok {
			return 0, cycles, false, err
		}
		cycles++

		frequency := point.Frequency.Add(offset)
		switch verdict.Kind {
		case limits.Clean:
			log.Infof("%s passed test", frequency)
			if offset+s.Step > maxOffset {
				log.Infof("%s is the highest frequency allowed, stopping", frequency)
				return offset, cycles, true, nil
			}
			offset += s.Step
		case limits.LoadLimited:
			log.Warnf("%s failed, stepping back 3 times", frequency)
			return offset - 3*s.Step, cycles, true, nil
		default:
			log.Warnf("performance was limited by %s, considering this as a limit", verdict.Flags)
			return offset - s.Step, cycles, true, nil
		}
	}
}

// binary narrows r until it collapses. When no candidate passed, r.Min has not
// been tested on this point, so it is confirmed with confirmDown.
func (s *Searcher) binary(ctx context.Context, point device.Point, r Range) (device.KilohertzDelta, int, bool, error) {
	log := logrus.WithField("index", point.Index)
	cycles := 0
	last := r.Min
	confirmed := false

	for !r.Done() {
		candidate := r.Next(s.Step)
		if candidate == last {
			break
		}
		last = candidate

		verdict, ok, err := s.cycle(ctx, point, candidate)
		if err != nil || !ok {
			return 0, cycles, false, err
		}
		cycles++

		if verdict.Kind == limits.Clean {
			log.Infof("%s passed test", point.Frequency.Add(candidate))
			r.Pass(candidate)
			confirmed = true
		} else {
			log.Warnf("%s failed: %s", point.Frequency.Add(candidate), verdict)
			r.Fail(candidate, s.Step)
		}
		log.WithFields(logrus.Fields{"min": r.Min, "max": r.Max}).Debug("range narrowed")
	}

	if confirmed {
		return r.Min, cycles, true, nil
	}

	offset, n, ok, err := s.confirmDown(ctx, point, r.Min)
	return offset, cycles + n, ok, err
}

// confirmDown tests offset and steps down until a cycle is clean. Offset 0
// is kept even when it fails, there is nothing lower to fall back to.
func (s *Searcher) confirmDown(ctx context.Context, point device.Point, offset device.KilohertzDelta) (device.KilohertzDelta, int, bool, error) {
	log := logrus.WithField("index", point.Index)
	cycles := 0

	for {
		verdict, ok, err := s.cycle(ctx, point, offset)
		if err != nil || !ok {
			return 0, cycles, false, err
		}
		cycles++

		frequency := point.Frequency.Add(offset)
		if verdict.Kind == limits.Clean {
			log.Infof("%s confirmed", frequency)
			return offset, cycles, true, nil
		}
		if offset <= 0 {
			log.Warnf("%s failed at the base frequency: %s", frequency, verdict)
			return 0, cycles, true, nil
		}
		log.Warnf("%s failed: %s, stepping back", frequency, verdict)
		offset = max(offset-s.Step, 0)
	}
}
