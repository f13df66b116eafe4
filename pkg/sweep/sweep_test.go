package sweep

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/charlie0129/vftune/pkg/device"
	"github.com/charlie0129/vftune/pkg/device/sim"
	"github.com/charlie0129/vftune/pkg/events"
	"github.com/charlie0129/vftune/pkg/search"
	"github.com/charlie0129/vftune/pkg/workload"
)

type recordingExporter struct {
	mu    sync.Mutex
	calls [][]device.Point
	err   error
}

func (e *recordingExporter) Export(points []device.Point) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls = append(e.calls, points)
	return e.err
}

type outcome struct {
	offset device.KilohertzDelta
	skip   bool
	err    error
}

// scriptedSearcher returns canned outcomes per index, validating with offset
// 0 when an index has no script.
type scriptedSearcher struct {
	script   map[int]outcome
	boosted  bool
	tested   []int
	ceilings []device.Kilohertz
}

func (s *scriptedSearcher) TestPoint(_ context.Context, point device.Point, ceiling device.Kilohertz) (*search.Result, error) {
	s.tested = append(s.tested, point.Index)
	s.ceilings = append(s.ceilings, ceiling)

	o := s.script[point.Index]
	if o.err != nil {
		return nil, o.err
	}
	if o.skip {
		return nil, nil
	}
	point.Offset = o.offset
	return &search.Result{Point: point, Cycles: 1}, nil
}

func (s *scriptedSearcher) Boosted() bool {
	return s.boosted
}

func scenarioProfile() *sim.Profile {
	p := &sim.Profile{
		Name: "scenario",
		PowerLimits: []device.PowerLimit{
			{Current: 100, Default: 100, Min: 50, Max: 115},
		},
	}
	for i := 0; i < 4; i++ {
		p.Points = append(p.Points, sim.PointProfile{
			Voltage:   device.Microvolts(700000 + i*50000),
			Frequency: device.Kilohertz(1800000 + i*50000),
			Ceiling:   1000000,
		})
	}
	return p
}

func defaultOptions() Options {
	return Options{MaxFrequency: device.MHz(2200)}
}

func assertRestoredOnce(t *testing.T, gpu *sim.GPU) {
	t.Helper()
	assert.Equal(t, 1, gpu.Calls("ResetFanLevels"))
	assert.Equal(t, 1, gpu.Calls("ResetPowerLimits"))
	assert.Nil(t, gpu.FanLevel())
	assert.Nil(t, gpu.Locked())
}

func TestSweepScenario(t *testing.T) {
	gpu := sim.New(scenarioProfile())
	runner := &workload.Runner{
		Telemetry:    gpu,
		Launcher:     &sim.Workload{GPU: gpu, Duration: 3 * time.Millisecond},
		Step:         16000,
		PollInterval: time.Millisecond,
	}
	searcher := &search.Searcher{
		Device:       gpu,
		Tester:       runner,
		Step:         16000,
		VoltageWait:  search.DefaultVoltageWait,
		Policy:       search.PolicyStepped,
		PollInterval: time.Millisecond,
	}
	exporter := &recordingExporter{}
	s := New(gpu, searcher, defaultOptions())
	s.Exporter = exporter

	results, err := s.Run(context.Background(), Indices(0, 3))
	require.NoError(t, err)

	points := results.Points()
	require.Len(t, points, 4)
	expected := []device.KilohertzDelta{384000, 336000, 288000, 240000}
	for i, p := range points {
		assert.Equal(t, i, p.Index)
		assert.Equal(t, expected[i], p.Offset)
		assert.Zero(t, p.Offset%16000)
	}

	require.Len(t, exporter.calls, 1)
	assert.Equal(t, points, exporter.calls[0])
	assertRestoredOnce(t, gpu)

	progress := s.Progress()
	assert.Equal(t, StateFinished, progress.State)
	assert.Equal(t, -1, progress.Current)
	assert.Equal(t, 4, progress.Done())
	assert.Equal(t, s.ID(), progress.RunID)
}

func TestSweepCeilingFollowsPreviousPoint(t *testing.T) {
	gpu := sim.New(scenarioProfile())
	searcher := &scriptedSearcher{script: map[int]outcome{
		3: {offset: 100000},
		2: {skip: true},
		1: {offset: 64000},
	}}

	_, err := New(gpu, searcher, defaultOptions()).Run(context.Background(), []int{1, 3, 2, 0})
	require.NoError(t, err)

	assert.Equal(t, []int{3, 2, 1, 0}, searcher.tested)
	assert.Equal(t, []device.Kilohertz{2200000, 2050000, 2050000, 1914000}, searcher.ceilings)
}

func TestSweepSkipContinues(t *testing.T) {
	gpu := sim.New(scenarioProfile())
	searcher := &scriptedSearcher{script: map[int]outcome{2: {skip: true}}}
	exporter := &recordingExporter{}
	s := New(gpu, searcher, defaultOptions())
	s.Exporter = exporter

	results, err := s.Run(context.Background(), Indices(3, 0))
	require.NoError(t, err)

	assert.Equal(t, 3, results.Len())
	_, ok := results.Get(2)
	assert.False(t, ok)
	assert.Equal(t, []int{2}, s.Progress().Skipped)
	require.Len(t, exporter.calls, 1)
	assert.Len(t, exporter.calls[0], 3)
}

func TestSweepErrorFlushesPartialResults(t *testing.T) {
	gpu := sim.New(scenarioProfile())
	boom := device.MutationError("set offset", sim.ErrInjected)
	searcher := &scriptedSearcher{script: map[int]outcome{
		3: {offset: 32000},
		2: {err: boom},
	}}
	exporter := &recordingExporter{}
	s := New(gpu, searcher, defaultOptions())
	s.Exporter = exporter

	results, err := s.Run(context.Background(), Indices(0, 3))
	require.ErrorIs(t, err, device.ErrMutationFailed)

	assert.Equal(t, []int{3, 2}, searcher.tested)
	assert.Equal(t, 1, results.Len())
	require.Len(t, exporter.calls, 1)
	require.Len(t, exporter.calls[0], 1)
	assert.Equal(t, device.KilohertzDelta(32000), exporter.calls[0][0].Offset)
	assertRestoredOnce(t, gpu)

	progress := s.Progress()
	assert.Equal(t, StateFailed, progress.State)
	assert.NotEmpty(t, progress.Error)
}

func TestSweepRestoreErrorDoesNotMask(t *testing.T) {
	gpu := sim.New(scenarioProfile())
	gpu.FailOp("ResetFanLevels", sim.ErrInjected)
	boom := errors.New("workload vanished")
	searcher := &scriptedSearcher{script: map[int]outcome{3: {err: boom}}}

	_, err := New(gpu, searcher, defaultOptions()).Run(context.Background(), Indices(0, 3))
	require.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, sim.ErrInjected)

	// Restoring carries on past the failed step.
	assert.Equal(t, 1, gpu.Calls("ResetPowerLimits"))
	assert.Equal(t, 1, gpu.Calls("ResetVoltageLock"))
}

func TestSweepRestoreErrorReportedOnSuccess(t *testing.T) {
	gpu := sim.New(scenarioProfile())
	gpu.FailOp("ResetPowerLimits", sim.ErrInjected)
	exporter := &recordingExporter{}
	s := New(gpu, &scriptedSearcher{}, defaultOptions())
	s.Exporter = exporter

	results, err := s.Run(context.Background(), Indices(0, 1))
	require.ErrorIs(t, err, sim.ErrInjected)
	assert.Equal(t, 2, results.Len())
	// Results are still exported.
	require.Len(t, exporter.calls, 1)
	assert.Len(t, exporter.calls[0], 2)
}

func TestSweepEmptyRangeStillRestores(t *testing.T) {
	gpu := sim.New(scenarioProfile())
	searcher := &scriptedSearcher{}
	exporter := &recordingExporter{}
	s := New(gpu, searcher, defaultOptions())
	s.Exporter = exporter

	results, err := s.Run(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, results.Len())
	assert.Empty(t, searcher.tested)
	assertRestoredOnce(t, gpu)
	require.Len(t, exporter.calls, 1)
	assert.Empty(t, exporter.calls[0])
}

func TestSweepSetupFailure(t *testing.T) {
	gpu := sim.New(scenarioProfile())
	gpu.FailOp("SetPowerLimits", sim.ErrInjected)
	searcher := &scriptedSearcher{}

	_, err := New(gpu, searcher, defaultOptions()).Run(context.Background(), Indices(0, 3))
	require.ErrorIs(t, err, device.ErrMutationFailed)
	assert.Empty(t, searcher.tested)

	// The fan was already forced and is released again.
	assert.Equal(t, 1, gpu.Calls("ResetFanLevels"))
	assert.Equal(t, 1, gpu.Calls("ResetPowerLimits"))
	assert.Nil(t, gpu.FanLevel())
}

func TestSweepOverrides(t *testing.T) {
	gpu := sim.New(scenarioProfile())
	opts := defaultOptions()
	opts.FanOverride = true
	opts.PowerOverride = true

	_, err := New(gpu, &scriptedSearcher{boosted: true}, opts).Run(context.Background(), Indices(0, 0))
	require.NoError(t, err)

	assert.Zero(t, gpu.Calls("SetFanLevel"))
	assert.Zero(t, gpu.Calls("ResetFanLevels"))
	assert.Zero(t, gpu.Calls("SetPowerLimits"))
	assert.Zero(t, gpu.Calls("ResetPowerLimits"))
	assert.Equal(t, 1, gpu.Calls("ResetVoltageBoost"))
}

func TestSweepForcesFanAndPower(t *testing.T) {
	gpu := sim.New(scenarioProfile())
	var fan *device.Percentage
	var power []device.PowerLimit
	searcher := &hookSearcher{hook: func() {
		fan = gpu.FanLevel()
		power, _ = gpu.PowerLimits()
	}}

	_, err := New(gpu, searcher, defaultOptions()).Run(context.Background(), Indices(0, 0))
	require.NoError(t, err)

	require.NotNil(t, fan)
	assert.Equal(t, DefaultFanLevel, *fan)
	require.Len(t, power, 1)
	assert.Equal(t, device.Percentage(115), power[0].Current)

	after, err := gpu.PowerLimits()
	require.NoError(t, err)
	assert.Equal(t, device.Percentage(100), after[0].Current)
	assert.Zero(t, gpu.Calls("ResetVoltageBoost"))
}

type hookSearcher struct {
	hook func()
}

func (h *hookSearcher) TestPoint(_ context.Context, point device.Point, _ device.Kilohertz) (*search.Result, error) {
	h.hook()
	return &search.Result{Point: point}, nil
}

func (h *hookSearcher) Boosted() bool { return false }

func TestSweepCancelledBetweenPoints(t *testing.T) {
	gpu := sim.New(scenarioProfile())
	ctx, cancel := context.WithCancel(context.Background())
	searcher := &hookSearcher{hook: cancel}
	exporter := &recordingExporter{}
	s := New(gpu, searcher, defaultOptions())
	s.Exporter = exporter

	results, err := s.Run(ctx, Indices(0, 3))
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, results.Len())
	require.Len(t, exporter.calls, 1)
	assertRestoredOnce(t, gpu)
}

func TestSweepSkipsIndicesOutsideTable(t *testing.T) {
	gpu := sim.New(scenarioProfile())
	searcher := &scriptedSearcher{}

	results, err := New(gpu, searcher, defaultOptions()).Run(context.Background(), Indices(2, 6))
	require.NoError(t, err)
	assert.Equal(t, []int{3, 2}, searcher.tested)
	assert.Equal(t, 2, results.Len())
}

func TestSweepPublishesEvents(t *testing.T) {
	gpu := sim.New(scenarioProfile())
	hub := events.NewEventHub()
	ch := hub.Subscribe()
	defer hub.Unsubscribe(ch)

	s := New(gpu, &scriptedSearcher{script: map[int]outcome{0: {skip: true}}}, defaultOptions())
	s.Events = hub
	_, err := s.Run(context.Background(), Indices(0, 1))
	require.NoError(t, err)

	var names []string
	for len(ch) > 0 {
		ev := <-ch
		names = append(names, ev.Name)
		if ev.Name == events.SweepFinished {
			p, err := events.DecodeAs[events.SweepFinishedEvent](ev)
			require.NoError(t, err)
			assert.Equal(t, s.ID(), p.RunID)
			assert.Equal(t, 1, p.Validated)
			assert.Equal(t, 1, p.Skipped)
		}
	}
	assert.Equal(t, []string{
		events.SweepStarted,
		events.PointStarted, events.PointFinished,
		events.PointStarted, events.PointFinished,
		events.SweepFinished,
	}, names)
}

func TestIndices(t *testing.T) {
	assert.Equal(t, []int{3, 2, 1, 0}, Indices(0, 3))
	assert.Equal(t, []int{3, 2, 1, 0}, Indices(3, 0))
	assert.Equal(t, []int{5}, Indices(5, 5))
}

func TestResultSetIsAppendOnly(t *testing.T) {
	r := NewResultSet()
	assert.True(t, r.Add(device.Point{Index: 2, Offset: 16000}))
	assert.True(t, r.Add(device.Point{Index: 0, Offset: 48000}))
	assert.False(t, r.Add(device.Point{Index: 2, Offset: 32000}))

	p, ok := r.Get(2)
	require.True(t, ok)
	assert.Equal(t, device.KilohertzDelta(16000), p.Offset)

	points := r.Points()
	require.Len(t, points, 2)
	assert.Equal(t, 0, points[0].Index)
	assert.Equal(t, 2, points[1].Index)
}
