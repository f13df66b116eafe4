package limits

import "github.com/charlie0129/vftune/pkg/device"

// Accumulator ORs limit flag snapshots over a test window.
type Accumulator struct {
	flags device.LimitFlags
}

// NewAccumulator seeds an accumulator from the snapshot taken before the
// workload starts. Only the no-load bit of the baseline is kept, so that
// limits already active at idle do not count against the test.
func NewAccumulator(baseline device.LimitFlags) *Accumulator {
	return &Accumulator{flags: baseline & device.LimitNoLoad}
}

// Observe adds one snapshot.
func (a *Accumulator) Observe(flags device.LimitFlags) {
	a.flags |= flags
}

// Flags returns everything observed so far, including the seed.
func (a *Accumulator) Flags() device.LimitFlags {
	return a.flags
}

// Triggered returns the observed flags minus the no-load bit.
func (a *Accumulator) Triggered() device.LimitFlags {
	return a.flags.Without(device.LimitNoLoad)
}
