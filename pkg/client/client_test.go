package client

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/charlie0129/vftune/pkg/config"
	"github.com/charlie0129/vftune/pkg/device"
	"github.com/charlie0129/vftune/pkg/events"
	"github.com/charlie0129/vftune/pkg/server"
	"github.com/charlie0129/vftune/pkg/sweep"
	"github.com/charlie0129/vftune/pkg/version"
)

type staticSource struct {
	p sweep.Progress
}

func (s staticSource) Progress() sweep.Progress {
	return s.p
}

// socketPath returns a short path, unix socket paths are limited in length.
func socketPath(t *testing.T) string {
	t.Helper()
	dir, err := os.MkdirTemp("", "vftune")
	require.NoError(t, err)
	t.Cleanup(func() { _ = os.RemoveAll(dir) })
	return filepath.Join(dir, "s.sock")
}

func startServer(t *testing.T, hub *events.EventHub) *Client {
	t.Helper()
	src := staticSource{p: sweep.Progress{
		RunID:   "run-1",
		State:   sweep.StateFinished,
		Current: -1,
		Results: []device.Point{{Index: 0, Voltage: 700000, Frequency: 1800000, Offset: 384000}},
	}}
	path := socketPath(t)
	s := server.New(src, config.NewFileFromConfig(nil, "").Effective(), hub)
	require.NoError(t, s.Start(path))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = s.Shutdown(ctx)
	})
	return NewClient(path)
}

func TestGetters(t *testing.T) {
	c := startServer(t, nil)

	p, err := c.GetStatus()
	require.NoError(t, err)
	assert.Equal(t, "run-1", p.RunID)
	assert.Equal(t, sweep.StateFinished, p.State)

	points, err := c.GetResults()
	require.NoError(t, err)
	require.Len(t, points, 1)
	assert.Equal(t, device.Kilohertz(2184000), points[0].Effective())

	conf, err := c.GetConfig()
	require.NoError(t, err)
	assert.Equal(t, "stepped", *conf.Policy)

	v, err := c.GetVersion()
	require.NoError(t, err)
	assert.Equal(t, version.Version, v)
}

func TestNotRunning(t *testing.T) {
	c := NewClient(filepath.Join(t.TempDir(), "missing.sock"))

	_, err := c.GetStatus()
	assert.ErrorIs(t, err, ErrNotRunning)
}

func TestNotFound(t *testing.T) {
	c := startServer(t, nil)

	_, err := c.Get("/nope")
	assert.ErrorIs(t, err, ErrNotFound)

	err = c.Events(context.Background(), func(events.Event) bool { return true })
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestEvents(t *testing.T) {
	hub := events.NewEventHub()
	c := startServer(t, hub)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	got := make(chan events.Event, 1)
	errc := make(chan error, 1)
	go func() {
		errc <- c.Events(ctx, func(ev events.Event) bool {
			got <- ev
			return false
		})
	}()

	require.Eventually(t, func() bool { return hub.Subscribers() == 1 }, 2*time.Second, 10*time.Millisecond)
	hub.Publish(events.PointFinished, events.PointEvent{RunID: "run-1", Index: 2, Outcome: "skipped"})

	select {
	case ev := <-got:
		assert.Equal(t, events.PointFinished, ev.Name)
		p, err := events.DecodeAs[events.PointEvent](ev)
		require.NoError(t, err)
		assert.Equal(t, 2, p.Index)
		assert.Equal(t, "skipped", p.Outcome)
	case <-ctx.Done():
		t.Fatal("no event received")
	}
	assert.NoError(t, <-errc)
}

func TestEventsEndWithSweep(t *testing.T) {
	hub := events.NewEventHub()
	hub.Publish(events.SweepStarted, events.SweepStartedEvent{RunID: "run-1"})
	c := startServer(t, hub)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var names []string
	errc := make(chan error, 1)
	go func() {
		errc <- c.Events(ctx, func(ev events.Event) bool {
			names = append(names, ev.Name)
			return true
		})
	}()

	require.Eventually(t, func() bool { return hub.Subscribers() == 1 }, 2*time.Second, 10*time.Millisecond)
	hub.Publish(events.SweepFinished, events.SweepFinishedEvent{RunID: "run-1"})
	hub.Close()

	select {
	case err := <-errc:
		require.NoError(t, err)
	case <-ctx.Done():
		t.Fatal("stream did not end")
	}
	assert.Equal(t, []string{events.SweepStarted, events.SweepFinished}, names)
}
