package device

import "fmt"

// Microvolts is a core voltage.
type Microvolts uint32

// Kilohertz is an absolute clock frequency.
type Kilohertz uint32

// KilohertzDelta is a signed clock offset.
type KilohertzDelta int32

// Percentage is an integer percentage, usually 0-100.
type Percentage uint32

func (v Microvolts) String() string {
	return fmt.Sprintf("%.3f mV", float64(v)/1000)
}

func (k Kilohertz) String() string {
	return fmt.Sprintf("%.3f MHz", float64(k)/1000)
}

func (d KilohertzDelta) String() string {
	return fmt.Sprintf("%+.3f MHz", float64(d)/1000)
}

func (p Percentage) String() string {
	return fmt.Sprintf("%d%%", uint32(p))
}

// Add applies a delta to a frequency. The result never underflows zero.
func (k Kilohertz) Add(d KilohertzDelta) Kilohertz {
	sum := int64(k) + int64(d)
	if sum < 0 {
		return 0
	}
	return Kilohertz(sum)
}

// Sub returns the signed distance from o to k.
func (k Kilohertz) Sub(o Kilohertz) KilohertzDelta {
	return KilohertzDelta(int64(k) - int64(o))
}

// MHz converts a megahertz value to Kilohertz.
func MHz(v uint32) Kilohertz {
	return Kilohertz(v * 1000)
}

// DeltaMHz converts a signed megahertz value to KilohertzDelta.
func DeltaMHz(v int32) KilohertzDelta {
	return KilohertzDelta(v * 1000)
}

// Point is one entry of the voltage/frequency table.
type Point struct {
	// Index is the position in the table, 0 is the lowest voltage.
	Index int `json:"index"`
	// Voltage of the point.
	Voltage Microvolts `json:"voltage"`
	// Frequency is the base frequency, without Offset applied.
	Frequency Kilohertz `json:"frequency"`
	// Offset currently applied on top of Frequency.
	Offset KilohertzDelta `json:"delta"`
}

// Effective returns the frequency the device runs at for this point.
func (p Point) Effective() Kilohertz {
	return p.Frequency.Add(p.Offset)
}

// PowerLimit describes one power limit policy in percent of the default TDP.
type PowerLimit struct {
	Current Percentage `json:"current"`
	Default Percentage `json:"default"`
	Min     Percentage `json:"min"`
	Max     Percentage `json:"max"`
}
