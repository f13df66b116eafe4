package events

import "encoding/json"

// Event name constants
const (
	SweepStarted  = "sweep.started"
	PointStarted  = "sweep.point.started"
	PointFinished = "sweep.point.finished"
	SweepFinished = "sweep.finished"
)

// Event is a generic SSE event published while a sweep runs.
type Event struct {
	Name string          // SSE event name
	Data json.RawMessage // Raw JSON payload
}

// SweepStartedEvent is the typed payload for sweep.started.
type SweepStartedEvent struct {
	RunID   string `json:"runId"`
	Device  string `json:"device"`
	Indices []int  `json:"indices"`
	Ts      int64  `json:"ts"`
}

// PointEvent is the typed payload for sweep.point.started and
// sweep.point.finished. Outcome is empty for sweep.point.started.
type PointEvent struct {
	RunID   string `json:"runId"`
	Index   int    `json:"index"`
	Voltage uint32 `json:"voltage"`
	// Frequency is the ceiling when starting and the validated frequency
	// when finished.
	Frequency uint32 `json:"frequency"`
	Offset    int32  `json:"delta"`
	Outcome   string `json:"outcome,omitempty"`
	Ts        int64  `json:"ts"`
}

// SweepFinishedEvent is the typed payload for sweep.finished.
type SweepFinishedEvent struct {
	RunID     string `json:"runId"`
	Validated int    `json:"validated"`
	Skipped   int    `json:"skipped"`
	Error     string `json:"error,omitempty"`
	Ts        int64  `json:"ts"`
}

// DecodeAs decodes the event payload into the caller-specified generic type T.
// It ignores the event name and simply unmarshals Data into T. If Data is empty,
// it returns the zero value of T with a nil error.
//
// Example:
//
//	payload, err := events.DecodeAs[events.PointEvent](ev)
//	if err != nil { /* handle */ }
//	fmt.Println(payload.Index, payload.Outcome)
func DecodeAs[T any](e Event) (T, error) {
	var zero T
	if len(e.Data) == 0 {
		return zero, nil
	}
	var v T
	if err := json.Unmarshal(e.Data, &v); err != nil {
		return zero, err
	}
	return v, nil
}
