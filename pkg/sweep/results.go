package sweep

import (
	"sort"
	"sync"

	"github.com/charlie0129/vftune/pkg/device"
)

// ResultSet maps table indices to validated points. Entries are only ever
// added. It is safe to read while a sweep writes to it.
type ResultSet struct {
	mu     sync.RWMutex
	points map[int]device.Point
}

func NewResultSet() *ResultSet {
	return &ResultSet{points: map[int]device.Point{}}
}

// Add records p. A second point for the same index is ignored and reported
// as false.
func (r *ResultSet) Add(p device.Point) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.points[p.Index]; ok {
		return false
	}
	r.points[p.Index] = p
	return true
}

// Get returns the point recorded for index.
func (r *ResultSet) Get(index int) (device.Point, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.points[index]
	return p, ok
}

func (r *ResultSet) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.points)
}

// Points returns a copy of the recorded points ordered by index.
func (r *ResultSet) Points() []device.Point {
	r.mu.RLock()
	defer r.mu.RUnlock()

	points := make([]device.Point, 0, len(r.points))
	for _, p := range r.points {
		points = append(points, p)
	}
	sort.Slice(points, func(i, j int) bool {
		return points[i].Index < points[j].Index
	})
	return points
}

// Indices returns the indices from start to end, both included, highest
// first. start and end may be given in either order.
func Indices(start, end int) []int {
	if start > end {
		start, end = end, start
	}
	indices := make([]int, 0, end-start+1)
	for i := end; i >= start; i-- {
		indices = append(indices, i)
	}
	return indices
}
