package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishDecode(t *testing.T) {
	h := NewEventHub()
	ch := h.Subscribe()
	defer h.Unsubscribe(ch)

	h.Publish(PointFinished, PointEvent{RunID: "run", Index: 3, Offset: 240000, Outcome: "validated"})

	ev := <-ch
	assert.Equal(t, PointFinished, ev.Name)
	p, err := DecodeAs[PointEvent](ev)
	require.NoError(t, err)
	assert.Equal(t, 3, p.Index)
	assert.Equal(t, int32(240000), p.Offset)
	assert.Equal(t, "validated", p.Outcome)
}

func TestSlowSubscriberDoesNotBlock(t *testing.T) {
	h := NewEventHub()
	ch := h.Subscribe()

	for i := 0; i < 100; i++ {
		h.Publish(PointStarted, PointEvent{RunID: "run", Index: i})
	}
	assert.Len(t, ch, cap(ch))

	h.Unsubscribe(ch)
	h.Unsubscribe(ch)
	assert.Zero(t, h.Subscribers())

	n := 0
	for range ch {
		n++
	}
	assert.Equal(t, SubscriberBuffer, n)
}

func TestNilHub(t *testing.T) {
	var h *EventHub
	h.Publish(SweepFinished, SweepFinishedEvent{})
	h.Close()
	assert.Zero(t, h.Subscribers())
}

func drain(ch chan Event) []Event {
	var ret []Event
	for len(ch) > 0 {
		ret = append(ret, <-ch)
	}
	return ret
}

func TestLateSubscriberGetsReplay(t *testing.T) {
	h := NewEventHub()
	h.Publish(SweepStarted, SweepStartedEvent{RunID: "old"})
	h.Publish(PointStarted, PointEvent{RunID: "old", Index: 99})
	h.Publish(SweepStarted, SweepStartedEvent{RunID: "run", Indices: []int{20, 19}})
	for i := 0; i < ReplaySize+2; i++ {
		h.Publish(PointFinished, PointEvent{RunID: "run", Index: i})
	}

	ch := h.Subscribe()
	defer h.Unsubscribe(ch)

	got := drain(ch)
	require.Len(t, got, ReplaySize+1)
	assert.Equal(t, SweepStarted, got[0].Name)
	started, err := DecodeAs[SweepStartedEvent](got[0])
	require.NoError(t, err)
	assert.Equal(t, "run", started.RunID)

	first, err := DecodeAs[PointEvent](got[1])
	require.NoError(t, err)
	assert.Equal(t, 2, first.Index)
	last, err := DecodeAs[PointEvent](got[ReplaySize])
	require.NoError(t, err)
	assert.Equal(t, ReplaySize+1, last.Index)
}

func TestCloseEndsSubscriptions(t *testing.T) {
	h := NewEventHub()
	ch := h.Subscribe()

	h.Publish(SweepFinished, SweepFinishedEvent{RunID: "run", Validated: 2})
	h.Close()
	h.Close()
	h.Publish(PointStarted, PointEvent{RunID: "run"})
	assert.Zero(t, h.Subscribers())

	var names []string
	for ev := range ch {
		names = append(names, ev.Name)
	}
	assert.Equal(t, []string{SweepFinished}, names)
	h.Unsubscribe(ch)

	late := h.Subscribe()
	var replayed []string
	for ev := range late {
		replayed = append(replayed, ev.Name)
	}
	assert.Equal(t, []string{SweepFinished}, replayed)
}

func TestDecodeEmpty(t *testing.T) {
	p, err := DecodeAs[SweepFinishedEvent](Event{Name: SweepFinished})
	require.NoError(t, err)
	assert.Equal(t, SweepFinishedEvent{}, p)
}
