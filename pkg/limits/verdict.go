// Package limits classifies the outcome of a stability test cycle from the
// workload result and the hardware limit flags observed while it ran.
package limits

import (
	"fmt"

	"github.com/charlie0129/vftune/pkg/device"
)

// Kind is the coarse outcome of a test cycle.
type Kind int

const (
	// Clean means the workload passed and clocks held.
	Clean Kind = iota
	// LoadLimited means the workload failed or the test was abandoned.
	LoadLimited
	// OtherLimited means the workload passed but clocks were held down by a
	// hardware limit.
	OtherLimited
)

func (k Kind) String() string {
	switch k {
	case Clean:
		return "clean"
	case LoadLimited:
		return "load-limited"
	case OtherLimited:
		return "other-limited"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Verdict is the result of one test cycle. Flags is only set for
// OtherLimited.
type Verdict struct {
	Kind  Kind              `json:"kind"`
	Flags device.LimitFlags `json:"flags,omitempty"`
}

var (
	VerdictClean       = Verdict{Kind: Clean}
	VerdictLoadLimited = Verdict{Kind: LoadLimited}
)

// Other returns an OtherLimited verdict carrying flags.
func Other(flags device.LimitFlags) Verdict {
	return Verdict{Kind: OtherLimited, Flags: flags}
}

func (v Verdict) String() string {
	if v.Kind == OtherLimited {
		return fmt.Sprintf("%s(%s)", v.Kind, v.Flags)
	}
	return v.Kind.String()
}

// Classify maps a finished test cycle to a Verdict. It is a pure function:
// passed is the workload result, triggered the limit flags newly observed
// during the cycle, and throttled whether the clock stayed below target for
// long enough to count.
func Classify(passed bool, triggered device.LimitFlags, throttled bool) Verdict {
	if !passed {
		return VerdictLoadLimited
	}

	triggered = triggered.Without(device.LimitNoLoad)
	if throttled && triggered != device.LimitNone {
		return Other(triggered)
	}

	// The GPU kept its clocks, let it.
	return VerdictClean
}
