package device

import "strings"

// LimitFlags is the hardware performance limit bitmask reported by the
// driver. Each set bit names a protection mechanism that constrained clocks
// during the last sampling window.
type LimitFlags uint32

const (
	LimitPower    LimitFlags = 1 << 0
	LimitThermal  LimitFlags = 1 << 1
	LimitVoltage  LimitFlags = 1 << 2 // reliability voltage limit
	LimitUnknown8 LimitFlags = 1 << 3
	// LimitNoLoad is set while the GPU is idle and clocks are limited by
	// the absence of load.
	LimitNoLoad LimitFlags = 1 << 4

	LimitNone LimitFlags = 0
)

var limitNames = []struct {
	flag LimitFlags
	name string
}{
	{LimitPower, "power"},
	{LimitThermal, "thermal"},
	{LimitVoltage, "voltage"},
	{LimitUnknown8, "unknown8"},
	{LimitNoLoad, "no-load"},
}

// Has reports whether all bits of o are set in f.
func (f LimitFlags) Has(o LimitFlags) bool {
	return f&o == o
}

// Without returns f with the bits of o cleared.
func (f LimitFlags) Without(o LimitFlags) LimitFlags {
	return f &^ o
}

func (f LimitFlags) String() string {
	if f == LimitNone {
		return "none"
	}

	var names []string
	rest := f
	for _, n := range limitNames {
		if f.Has(n.flag) {
			names = append(names, n.name)
			rest = rest.Without(n.flag)
		}
	}
	if rest != 0 {
		names = append(names, "other")
	}

	return strings.Join(names, "|")
}
