package device

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLimitFlagsString(t *testing.T) {
	tests := []struct {
		flags LimitFlags
		want  string
	}{
		{LimitNone, "none"},
		{LimitPower, "power"},
		{LimitPower | LimitThermal, "power|thermal"},
		{LimitVoltage | LimitNoLoad, "voltage|no-load"},
		{LimitFlags(1 << 9), "other"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.flags.String())
	}
}

func TestLimitFlagsWithout(t *testing.T) {
	f := LimitPower | LimitNoLoad
	assert.True(t, f.Has(LimitNoLoad))
	assert.Equal(t, LimitPower, f.Without(LimitNoLoad))
	assert.Equal(t, LimitPower, LimitPower.Without(LimitNoLoad))
}

func TestFrequencyArithmetic(t *testing.T) {
	assert.Equal(t, Kilohertz(1816000), Kilohertz(1800000).Add(16000))
	assert.Equal(t, Kilohertz(0), Kilohertz(1000).Add(-2000))
	assert.Equal(t, KilohertzDelta(-50000), Kilohertz(1800000).Sub(1850000))
	assert.Equal(t, Kilohertz(2200000), MHz(2200))
	assert.Equal(t, KilohertzDelta(-16000), DeltaMHz(-16))

	p := Point{Frequency: 1800000, Offset: 48000}
	assert.Equal(t, Kilohertz(1848000), p.Effective())
}

func TestOpErrorClassification(t *testing.T) {
	cause := errors.New("nvapi: invalid argument")

	err := MutationError("set offset", cause)
	assert.ErrorIs(t, err, ErrMutationFailed)
	assert.ErrorIs(t, err, cause)
	assert.NotErrorIs(t, err, ErrQueryFailed)
	assert.Contains(t, err.Error(), "set offset")

	assert.ErrorIs(t, QueryError("limits", cause), ErrQueryFailed)
	assert.NoError(t, QueryError("limits", nil))
}

func TestOpenUnknownBackend(t *testing.T) {
	_, err := Open("does-not-exist", "")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoSuchBackend)
}
