package limits

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/charlie0129/vftune/pkg/device"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name      string
		passed    bool
		triggered device.LimitFlags
		throttled bool
		want      Verdict
	}{
		{
			name: "workload failed",
			want: VerdictLoadLimited,
		},
		{
			name:      "workload failed with flags",
			triggered: device.LimitPower | device.LimitThermal,
			throttled: true,
			want:      VerdictLoadLimited,
		},
		{
			name:   "clean pass",
			passed: true,
			want:   VerdictClean,
		},
		{
			name:      "flags without persistent throttle",
			passed:    true,
			triggered: device.LimitPower,
			want:      VerdictClean,
		},
		{
			name:      "persistent throttle without flags",
			passed:    true,
			throttled: true,
			want:      VerdictClean,
		},
		{
			name:      "persistent throttle with flags",
			passed:    true,
			triggered: device.LimitThermal | device.LimitVoltage,
			throttled: true,
			want:      Other(device.LimitThermal | device.LimitVoltage),
		},
		{
			name:      "no-load bit is never a trigger",
			passed:    true,
			triggered: device.LimitNoLoad,
			throttled: true,
			want:      VerdictClean,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.passed, tt.triggered, tt.throttled))
		})
	}
}

func TestAccumulator(t *testing.T) {
	// Power was already limited at idle, only the no-load bit survives.
	a := NewAccumulator(device.LimitPower | device.LimitNoLoad)
	assert.Equal(t, device.LimitNoLoad, a.Flags())
	assert.Equal(t, device.LimitNone, a.Triggered())

	a.Observe(device.LimitNone)
	a.Observe(device.LimitThermal)
	a.Observe(device.LimitNoLoad)
	assert.Equal(t, device.LimitThermal, a.Triggered())
}

func TestVerdictString(t *testing.T) {
	assert.Equal(t, "clean", VerdictClean.String())
	assert.Equal(t, "load-limited", VerdictLoadLimited.String())
	assert.Equal(t, "other-limited(power)", Other(device.LimitPower).String())
}
