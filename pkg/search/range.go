package search

import (
	"fmt"
	"strings"

	"github.com/charlie0129/vftune/pkg/device"
)

// Policy selects how a point's offset is searched.
type Policy string

const (
	// PolicyStepped climbs one step at a time from the current offset until
	// a test cycle fails, then steps back.
	PolicyStepped Policy = "stepped"
	// PolicyBinary narrows a Range by probing three quarters of the way in.
	PolicyBinary Policy = "binary"
)

// Policies lists the accepted policy names.
var Policies = []Policy{PolicyStepped, PolicyBinary}

// ParsePolicy parses a policy name. An empty name is PolicyStepped.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(strings.ToLower(strings.TrimSpace(s))) {
	case "", PolicyStepped:
		return PolicyStepped, nil
	case PolicyBinary:
		return PolicyBinary, nil
	default:
		return "", fmt.Errorf("unknown search policy %q (available: %v)", s, Policies)
	}
}

// Range is the offset interval still in question for one point. Min is
// presumed good, Max has not been disproven yet. Both are inclusive.
type Range struct {
	Min device.KilohertzDelta `json:"min"`
	Max device.KilohertzDelta `json:"max"`
}

// Done reports whether the range has collapsed.
func (r Range) Done() bool {
	return r.Max <= r.Min
}

// Next returns the offset three quarters of the way from Min to Max,
// rounded down to a multiple of step. It is always above Min while the range
// is open, so every candidate narrows the range.
func (r Range) Next(step device.KilohertzDelta) device.KilohertzDelta {
	d := floorStep((r.Max-r.Min)*3/4, step)
	if d < step {
		d = step
	}
	return r.Min + d
}

// Pass narrows the range after the candidate passed.
func (r *Range) Pass(candidate device.KilohertzDelta) {
	r.Min = candidate
}

// Fail narrows the range after the candidate failed.
func (r *Range) Fail(candidate, step device.KilohertzDelta) {
	r.Max = candidate - step
}

// floorStep rounds d down to a multiple of step. Negative values round
// towards negative infinity.
func floorStep(d, step device.KilohertzDelta) device.KilohertzDelta {
	if step <= 0 {
		return d
	}
	q := d / step
	if d%step != 0 && d < 0 {
		q--
	}
	return q * step
}
