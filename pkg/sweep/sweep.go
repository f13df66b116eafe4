// Package sweep drives the point search across a range of the
// voltage/frequency table inside a safety envelope, and makes sure the
// validated points are exported however the sweep ends.
package sweep

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/charlie0129/vftune/pkg/device"
	"github.com/charlie0129/vftune/pkg/events"
	"github.com/charlie0129/vftune/pkg/export"
	"github.com/charlie0129/vftune/pkg/metrics"
	"github.com/charlie0129/vftune/pkg/search"
)

// DefaultFanLevel is the fan duty cycle forced during a sweep.
const DefaultFanLevel = device.Percentage(85)

// Options configure the safety envelope and the search bounds.
type Options struct {
	// FanOverride leaves fan control to the operator.
	FanOverride bool
	// PowerOverride leaves power limits to the operator.
	PowerOverride bool
	// FanLevel is forced unless FanOverride is set.
	FanLevel device.Percentage
	// MaxFrequency caps every tested frequency.
	MaxFrequency device.Kilohertz
}

// PointSearcher searches one point. *search.Searcher implements it.
type PointSearcher interface {
	TestPoint(ctx context.Context, point device.Point, ceiling device.Kilohertz) (*search.Result, error)
	// Boosted reports whether voltage boost was raised and needs a reset.
	Boosted() bool
}

// Sweep runs one sweep. A Sweep is single-use.
type Sweep struct {
	Device   device.Device
	Searcher PointSearcher
	// Exporter receives the results once the sweep ends, successfully or
	// not. It is optional.
	Exporter export.Exporter
	Options  Options
	// Events is optional. It is closed when the sweep finishes.
	Events *events.EventHub
	// Policy is informational, reported in Progress.
	Policy string

	id       string
	progress *tracker
}

// New returns a sweep with a fresh run id.
func New(dev device.Device, searcher PointSearcher, opts Options) *Sweep {
	if opts.FanLevel == 0 {
		opts.FanLevel = DefaultFanLevel
	}
	return &Sweep{
		Device:   dev,
		Searcher: searcher,
		Options:  opts,
		id:       uuid.NewString(),
		progress: newTracker(),
	}
}

// ID returns the run id.
func (s *Sweep) ID() string {
	return s.id
}

// Progress returns a snapshot of the sweep.
func (s *Sweep) Progress() Progress {
	return s.progress.snapshot()
}

// Run sweeps indices, highest first, and returns what it validated. The
// result set is returned with every error too, already exported.
//
// The device settings are restored exactly once before returning. An error
// from restoring is logged and, when nothing else failed, returned.
func (s *Sweep) Run(ctx context.Context, indices []int) (*ResultSet, error) {
	indices = append([]int(nil), indices...)
	sort.Sort(sort.Reverse(sort.IntSlice(indices)))

	log := logrus.WithField("run", s.id)
	started := time.Now()
	s.progress.update(func(p *Progress) {
		p.RunID = s.id
		p.State = StateRunning
		p.Device = s.Device.Name()
		p.Policy = s.Policy
		p.Indices = indices
		p.StartedAt = &started
	})
	s.Events.Publish(events.SweepStarted, events.SweepStartedEvent{
		RunID:   s.id,
		Device:  s.Device.Name(),
		Indices: indices,
		Ts:      started.Unix(),
	})
	log.WithField("indices", indices).Info("sweep started")

	results := NewResultSet()
	env := &envelope{dev: s.Device, opts: s.Options}

	err := s.run(ctx, env, indices, results)
	restoreErr := env.restore(s.Searcher.Boosted())
	exportErr := s.flush(results)

	if err != nil {
		log.WithError(err).Error("sweep failed")
	} else {
		err = errors.Join(restoreErr, exportErr)
	}
	s.finish(err, results)

	return results, err
}

func (s *Sweep) run(ctx context.Context, env *envelope, indices []int, results *ResultSet) error {
	if err := env.establish(); err != nil {
		return err
	}

	points, err := s.Device.Points()
	if err != nil {
		return device.QueryError("points", err)
	}

	ceiling := s.Options.MaxFrequency
	for _, idx := range indices {
		if err := ctx.Err(); err != nil {
			return err
		}

		if idx < 0 || idx >= len(points) {
			logrus.WithField("index", idx).Warn("index not in table, skipping")
			continue
		}
		point := points[idx]

		s.progress.update(func(p *Progress) { p.Current = idx })
		metrics.TestingIndex.Set(float64(idx))
		s.Events.Publish(events.PointStarted, events.PointEvent{
			RunID:     s.id,
			Index:     idx,
			Voltage:   uint32(point.Voltage),
			Frequency: uint32(ceiling),
			Offset:    int32(point.Offset),
			Ts:        time.Now().Unix(),
		})

		res, err := s.Searcher.TestPoint(ctx, point, ceiling)
		if err != nil {
			return err
		}

		if res == nil {
			s.skipped(point)
			continue
		}

		results.Add(res.Point)
		s.validated(res.Point, results)
		if f := res.Point.Effective(); f < ceiling {
			ceiling = f
		}
	}

	return nil
}

func (s *Sweep) skipped(point device.Point) {
	metrics.Points.WithLabelValues("skipped").Inc()
	s.progress.update(func(p *Progress) {
		p.Skipped = append(p.Skipped, point.Index)
		p.Current = -1
	})
	s.Events.Publish(events.PointFinished, events.PointEvent{
		RunID:   s.id,
		Index:   point.Index,
		Voltage: uint32(point.Voltage),
		Outcome: "skipped",
		Ts:      time.Now().Unix(),
	})
}

func (s *Sweep) validated(point device.Point, results *ResultSet) {
	metrics.Points.WithLabelValues("validated").Inc()
	metrics.PointOffset.WithLabelValues(strconv.Itoa(point.Index)).Set(float64(point.Offset))
	s.progress.update(func(p *Progress) {
		p.Results = results.Points()
		p.Current = -1
	})
	s.Events.Publish(events.PointFinished, events.PointEvent{
		RunID:     s.id,
		Index:     point.Index,
		Voltage:   uint32(point.Voltage),
		Frequency: uint32(point.Effective()),
		Offset:    int32(point.Offset),
		Outcome:   "validated",
		Ts:        time.Now().Unix(),
	})
	logrus.WithFields(logrus.Fields{
		"run":       s.id,
		"index":     point.Index,
		"voltage":   point.Voltage,
		"frequency": point.Effective(),
		"delta":     point.Offset,
	}).Info("point validated")
}

func (s *Sweep) flush(results *ResultSet) error {
	if s.Exporter == nil {
		return nil
	}
	if err := s.Exporter.Export(results.Points()); err != nil {
		logrus.WithError(err).Error("failed to export results")
		return err
	}
	return nil
}

func (s *Sweep) finish(err error, results *ResultSet) {
	metrics.TestingIndex.Set(-1)

	finished := time.Now()
	s.progress.update(func(p *Progress) {
		p.Current = -1
		p.Results = results.Points()
		p.FinishedAt = &finished
		p.State = StateFinished
		if err != nil {
			p.State = StateFailed
			p.Error = err.Error()
		}
	})

	snap := s.progress.snapshot()
	ev := events.SweepFinishedEvent{
		RunID:     s.id,
		Validated: len(snap.Results),
		Skipped:   len(snap.Skipped),
		Ts:        finished.Unix(),
	}
	if err != nil {
		ev.Error = err.Error()
	}
	s.Events.Publish(events.SweepFinished, ev)
	s.Events.Close()

	logrus.WithFields(logrus.Fields{
		"run":       s.id,
		"validated": ev.Validated,
		"skipped":   ev.Skipped,
		"elapsed":   finished.Sub(*snap.StartedAt).Round(time.Second),
	}).Info("sweep finished")
}
