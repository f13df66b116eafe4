package device

import "github.com/sirupsen/logrus"

// traced wraps a Device and logs every call at trace level.
type traced struct {
	d Device
}

// WithTrace returns d wrapped so that every call is trace-logged. Wrapping
// an already wrapped device is a no-op.
func WithTrace(d Device) Device {
	if _, ok := d.(*traced); ok {
		return d
	}
	return &traced{d: d}
}

// Unwrap returns the device WithTrace wrapped, or d itself.
func Unwrap(d Device) Device {
	if t, ok := d.(*traced); ok {
		return t.d
	}
	return d
}

func trace(op string, fields logrus.Fields, err error) {
	if !logrus.IsLevelEnabled(logrus.TraceLevel) {
		return
	}
	if fields == nil {
		fields = logrus.Fields{}
	}
	fields["op"] = op
	if err != nil {
		logrus.WithFields(fields).WithError(err).Trace("device call failed")
		return
	}
	logrus.WithFields(fields).Trace("device call succeeded")
}

func (t *traced) Name() string { return t.d.Name() }

func (t *traced) CurrentClock() (Kilohertz, error) {
	v, err := t.d.CurrentClock()
	trace("CurrentClock", logrus.Fields{"val": v}, err)
	return v, err
}

func (t *traced) CurrentVoltage() (Microvolts, error) {
	v, err := t.d.CurrentVoltage()
	trace("CurrentVoltage", logrus.Fields{"val": v}, err)
	return v, err
}

func (t *traced) Limits() (LimitFlags, error) {
	v, err := t.d.Limits()
	trace("Limits", logrus.Fields{"val": v}, err)
	return v, err
}

func (t *traced) Points() ([]Point, error) {
	v, err := t.d.Points()
	trace("Points", logrus.Fields{"count": len(v)}, err)
	return v, err
}

func (t *traced) SetOffset(index int, delta KilohertzDelta) error {
	err := t.d.SetOffset(index, delta)
	trace("SetOffset", logrus.Fields{"index": index, "delta": delta}, err)
	return err
}

func (t *traced) LockVoltage(voltage Microvolts) error {
	err := t.d.LockVoltage(voltage)
	trace("LockVoltage", logrus.Fields{"voltage": voltage}, err)
	return err
}

func (t *traced) ResetVoltageLock() error {
	err := t.d.ResetVoltageLock()
	trace("ResetVoltageLock", nil, err)
	return err
}

func (t *traced) SetFanLevel(level Percentage) error {
	err := t.d.SetFanLevel(level)
	trace("SetFanLevel", logrus.Fields{"level": level}, err)
	return err
}

func (t *traced) ResetFanLevels() error {
	err := t.d.ResetFanLevels()
	trace("ResetFanLevels", nil, err)
	return err
}

func (t *traced) PowerLimits() ([]PowerLimit, error) {
	v, err := t.d.PowerLimits()
	trace("PowerLimits", logrus.Fields{"val": v}, err)
	return v, err
}

func (t *traced) SetPowerLimits(limits []Percentage) error {
	err := t.d.SetPowerLimits(limits)
	trace("SetPowerLimits", logrus.Fields{"limits": limits}, err)
	return err
}

func (t *traced) ResetPowerLimits() error {
	err := t.d.ResetPowerLimits()
	trace("ResetPowerLimits", nil, err)
	return err
}

func (t *traced) VoltageBoost() (Percentage, error) {
	v, err := t.d.VoltageBoost()
	trace("VoltageBoost", logrus.Fields{"val": v}, err)
	return v, err
}

func (t *traced) SetVoltageBoost(boost Percentage) error {
	err := t.d.SetVoltageBoost(boost)
	trace("SetVoltageBoost", logrus.Fields{"boost": boost}, err)
	return err
}

func (t *traced) ResetVoltageBoost() error {
	err := t.d.ResetVoltageBoost()
	trace("ResetVoltageBoost", nil, err)
	return err
}

// Close closes the wrapped device if it holds resources.
func (t *traced) Close() error {
	if c, ok := t.d.(Closer); ok {
		return c.Close()
	}
	return nil
}
