// Package sim provides an in-memory GPU for dry runs and tests.
//
// The simulated GPU follows a few simple rules: a voltage lock is honored up
// to the highest reachable voltage (which rises once voltage boost reaches
// 100%), the current clock is the effective frequency of the highest point at
// or below the current voltage, and a stability workload fails whenever the
// active point carries an offset above its ceiling.
package sim

import (
	"errors"
	"fmt"
	"sync"

	"github.com/charlie0129/vftune/pkg/device"
)

// BackendName is the name the simulator registers under.
const BackendName = "sim"

func init() {
	device.Register(BackendName, func(arg string) (device.Device, error) {
		if arg == "" {
			return New(DefaultProfile()), nil
		}
		p, err := LoadProfile(arg)
		if err != nil {
			return nil, err
		}
		return New(p), nil
	})
}

// ErrInjected is returned by injected faults.
var ErrInjected = errors.New("injected fault")

var _ device.Device = &GPU{}

// GPU is a simulated device. It is safe for concurrent use, since the
// simulated workload reads it from its own goroutine.
type GPU struct {
	mu sync.Mutex

	profile Profile
	offsets []device.KilohertzDelta
	lock    *device.Microvolts
	fan     *device.Percentage
	power   []device.Percentage
	boost   device.Percentage
	loaded  bool

	failQueries int
	failOps     map[string]error
	calls       map[string]int
}

// New returns a simulated GPU built from p.
func New(p *Profile) *GPU {
	g := &GPU{
		profile: *p,
		boost:   p.VoltageBoost,
		failOps: map[string]error{},
		calls:   map[string]int{},
	}
	for _, pt := range p.Points {
		g.offsets = append(g.offsets, pt.Offset)
	}
	for _, l := range p.PowerLimits {
		g.power = append(g.power, l.Current)
	}
	return g
}

// FailQueries makes the next n telemetry queries fail.
func (g *GPU) FailQueries(n int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.failQueries = n
}

// FailOp makes every call of the named method return err. A nil err clears
// the fault.
func (g *GPU) FailOp(op string, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err == nil {
		delete(g.failOps, op)
		return
	}
	g.failOps[op] = err
}

// Calls returns how many times the named method was called.
func (g *GPU) Calls(op string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls[op]
}

// FanLevel returns the fan override, or nil when the driver policy is active.
func (g *GPU) FanLevel() *device.Percentage {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.fan == nil {
		return nil
	}
	v := *g.fan
	return &v
}

// Locked returns the voltage lock, or nil when unlocked.
func (g *GPU) Locked() *device.Microvolts {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.lock == nil {
		return nil
	}
	v := *g.lock
	return &v
}

// SetLoaded marks the GPU as running a workload.
func (g *GPU) SetLoaded(loaded bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.loaded = loaded
}

// enter records a call and returns an injected fault for it, if any.
// g.mu must be held.
func (g *GPU) enter(op string, query bool) error {
	g.calls[op]++
	if err, ok := g.failOps[op]; ok {
		return err
	}
	if query && g.failQueries > 0 {
		g.failQueries--
		return fmt.Errorf("%w: %s", ErrInjected, op)
	}
	return nil
}

func (g *GPU) reachableVoltage() device.Microvolts {
	limit := g.profile.MaxVoltage
	if g.boost >= 100 {
		limit = g.profile.BoostedMaxVoltage
	}
	return limit
}

// currentVoltage must be called with g.mu held.
func (g *GPU) currentVoltage() device.Microvolts {
	if len(g.profile.Points) == 0 {
		return 0
	}
	if g.lock == nil {
		return g.profile.Points[0].Voltage
	}
	v := *g.lock
	if limit := g.reachableVoltage(); limit != 0 && v > limit {
		v = limit
	}
	return v
}

// activeIndex returns the highest point at or below the current voltage.
// g.mu must be held.
func (g *GPU) activeIndex() int {
	v := g.currentVoltage()
	idx := 0
	for i, pt := range g.profile.Points {
		if pt.Voltage <= v {
			idx = i
		}
	}
	return idx
}

// Stable reports whether the active point is within its ceiling.
func (g *GPU) Stable() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.profile.Points) == 0 {
		return true
	}
	i := g.activeIndex()
	return g.offsets[i] <= g.profile.Points[i].Ceiling
}

func (g *GPU) Name() string {
	return g.profile.Name
}

func (g *GPU) CurrentClock() (device.Kilohertz, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.enter("CurrentClock", true); err != nil {
		return 0, err
	}
	if len(g.profile.Points) == 0 {
		return 0, nil
	}
	i := g.activeIndex()
	return g.profile.Points[i].Frequency.Add(g.offsets[i]), nil
}

func (g *GPU) CurrentVoltage() (device.Microvolts, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.enter("CurrentVoltage", true); err != nil {
		return 0, err
	}
	return g.currentVoltage(), nil
}

func (g *GPU) Limits() (device.LimitFlags, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.enter("Limits", true); err != nil {
		return 0, err
	}
	if !g.loaded {
		return device.LimitNoLoad, nil
	}
	return device.LimitNone, nil
}

func (g *GPU) Points() ([]device.Point, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.enter("Points", false); err != nil {
		return nil, err
	}
	points := make([]device.Point, 0, len(g.profile.Points))
	for i, pt := range g.profile.Points {
		points = append(points, device.Point{
			Index:     i,
			Voltage:   pt.Voltage,
			Frequency: pt.Frequency,
			Offset:    g.offsets[i],
		})
	}
	return points, nil
}

func (g *GPU) SetOffset(index int, delta device.KilohertzDelta) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.enter("SetOffset", false); err != nil {
		return err
	}
	if index < 0 || index >= len(g.offsets) {
		return fmt.Errorf("point index %d out of range [0, %d)", index, len(g.offsets))
	}
	g.offsets[index] = delta
	return nil
}

func (g *GPU) LockVoltage(voltage device.Microvolts) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.enter("LockVoltage", false); err != nil {
		return err
	}
	g.lock = &voltage
	return nil
}

func (g *GPU) ResetVoltageLock() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.enter("ResetVoltageLock", false); err != nil {
		return err
	}
	g.lock = nil
	return nil
}

func (g *GPU) SetFanLevel(level device.Percentage) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.enter("SetFanLevel", false); err != nil {
		return err
	}
	if level > 100 {
		return fmt.Errorf("fan level %s above 100%%", level)
	}
	g.fan = &level
	return nil
}

func (g *GPU) ResetFanLevels() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.enter("ResetFanLevels", false); err != nil {
		return err
	}
	g.fan = nil
	return nil
}

func (g *GPU) PowerLimits() ([]device.PowerLimit, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.enter("PowerLimits", false); err != nil {
		return nil, err
	}
	limits := make([]device.PowerLimit, 0, len(g.profile.PowerLimits))
	for i, l := range g.profile.PowerLimits {
		l.Current = g.power[i]
		limits = append(limits, l)
	}
	return limits, nil
}

func (g *GPU) SetPowerLimits(limits []device.Percentage) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.enter("SetPowerLimits", false); err != nil {
		return err
	}
	if len(limits) != len(g.power) {
		return fmt.Errorf("expected %d power limits, got %d", len(g.power), len(limits))
	}
	for i, l := range limits {
		r := g.profile.PowerLimits[i]
		if l < r.Min || l > r.Max {
			return fmt.Errorf("power limit %s outside [%s, %s]", l, r.Min, r.Max)
		}
	}
	copy(g.power, limits)
	return nil
}

func (g *GPU) ResetPowerLimits() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.enter("ResetPowerLimits", false); err != nil {
		return err
	}
	for i, l := range g.profile.PowerLimits {
		g.power[i] = l.Default
	}
	return nil
}

func (g *GPU) VoltageBoost() (device.Percentage, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.enter("VoltageBoost", false); err != nil {
		return 0, err
	}
	return g.boost, nil
}

func (g *GPU) SetVoltageBoost(boost device.Percentage) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.enter("SetVoltageBoost", false); err != nil {
		return err
	}
	if boost > 100 {
		return fmt.Errorf("voltage boost %s above 100%%", boost)
	}
	g.boost = boost
	return nil
}

func (g *GPU) ResetVoltageBoost() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.enter("ResetVoltageBoost", false); err != nil {
		return err
	}
	g.boost = g.profile.VoltageBoost
	return nil
}
