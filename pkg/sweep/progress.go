package sweep

import (
	"sync"
	"time"

	"github.com/charlie0129/vftune/pkg/device"
)

// State of a sweep.
type State string

const (
	StateIdle     State = "idle"
	StateRunning  State = "running"
	StateFinished State = "finished"
	StateFailed   State = "failed"
)

// Progress is a point-in-time view of a sweep, served by the progress API.
type Progress struct {
	RunID   string `json:"runId"`
	State   State  `json:"state"`
	Device  string `json:"device"`
	Policy  string `json:"policy,omitempty"`
	Indices []int  `json:"indices"`
	// Current is the index under test, -1 when none.
	Current    int            `json:"current"`
	Skipped    []int          `json:"skipped"`
	Results    []device.Point `json:"results"`
	StartedAt  *time.Time     `json:"startedAt,omitempty"`
	FinishedAt *time.Time     `json:"finishedAt,omitempty"`
	Error      string         `json:"error,omitempty"`
}

// Done returns how many indices have been settled, validated or skipped.
func (p Progress) Done() int {
	return len(p.Results) + len(p.Skipped)
}

type tracker struct {
	mu sync.RWMutex
	p  Progress
}

func newTracker() *tracker {
	return &tracker{p: Progress{State: StateIdle, Current: -1}}
}

func (t *tracker) update(f func(p *Progress)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	f(&t.p)
}

func (t *tracker) snapshot() Progress {
	t.mu.RLock()
	defer t.mu.RUnlock()

	p := t.p
	p.Indices = append([]int(nil), t.p.Indices...)
	p.Skipped = append([]int(nil), t.p.Skipped...)
	p.Results = append([]device.Point(nil), t.p.Results...)
	return p
}
