package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	f, err := NewFile(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, uint32(16), f.Step())
	assert.Equal(t, uint32(2200), f.MaxFrequency())
	assert.Equal(t, 0, f.Start())
	assert.Equal(t, -1, f.End())
	assert.Equal(t, 2*time.Second, f.VoltageWait())
	assert.Equal(t, "stepped", f.Policy())
	assert.Equal(t, uint32(85), f.FanLevel())
	assert.False(t, f.FanOverride())
	assert.Equal(t, "-", f.Output())
	assert.Equal(t, "csv", f.Format())
	assert.NoError(t, f.Validate())
}

func TestLoadFormats(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
	}{
		{
			name:    "yaml",
			file:    "vftune.yaml",
			content: "step: 15\nmax: 2100\nvoltageWait: 5s\npolicy: binary\nfanOverride: true\ntest: /usr/bin/stress\n",
		},
		{
			name:    "json",
			file:    "vftune.json",
			content: `{"step": 15, "max": 2100, "voltageWait": "5s", "policy": "binary", "fanOverride": true, "test": "/usr/bin/stress"}`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), tt.file)
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0644))

			f, err := NewFile(path)
			require.NoError(t, err)
			assert.Equal(t, uint32(15), f.Step())
			assert.Equal(t, uint32(2100), f.MaxFrequency())
			assert.Equal(t, 5*time.Second, f.VoltageWait())
			assert.Equal(t, "binary", f.Policy())
			assert.True(t, f.FanOverride())
			assert.Equal(t, "/usr/bin/stress", f.Workload())
			// Untouched fields keep their defaults.
			assert.Equal(t, uint32(85), f.FanLevel())
			assert.NoError(t, f.Validate())
		})
	}
}

func TestLoadEmptyAndInvalid(t *testing.T) {
	dir := t.TempDir()

	empty := filepath.Join(dir, "empty.yaml")
	require.NoError(t, os.WriteFile(empty, []byte("  \n"), 0644))
	f, err := NewFile(empty)
	require.NoError(t, err)
	assert.Equal(t, uint32(16), f.Step())

	invalid := filepath.Join(dir, "invalid.json")
	require.NoError(t, os.WriteFile(invalid, []byte("{"), 0644))
	_, err = NewFile(invalid)
	assert.Error(t, err)
}

func TestSaveRoundTrip(t *testing.T) {
	for _, name := range []string{"vftune.yaml", "vftune.json"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), name)
			f := NewFileFromConfig(nil, path)
			f.SetStep(10)
			f.SetEnd(5)
			f.SetVoltageWait(3 * time.Second)
			f.SetPowerOverride(true)
			require.NoError(t, f.Save())

			loaded, err := NewFile(path)
			require.NoError(t, err)
			assert.Equal(t, uint32(10), loaded.Step())
			assert.Equal(t, 5, loaded.End())
			assert.Equal(t, 3*time.Second, loaded.VoltageWait())
			assert.True(t, loaded.PowerOverride())
			assert.Equal(t, uint32(2200), loaded.MaxFrequency())
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(f *File)
	}{
		{name: "zero step", mutate: func(f *File) { f.SetStep(0) }},
		{name: "step overflows", mutate: func(f *File) { f.SetStep(MaxStep + 1) }},
		{name: "zero max", mutate: func(f *File) { f.SetMaxFrequency(0) }},
		{name: "max overflows", mutate: func(f *File) { f.SetMaxFrequency(5000000) }},
		{name: "negative start", mutate: func(f *File) { f.SetStart(-2) }},
		{name: "end below start", mutate: func(f *File) { f.SetStart(4); f.SetEnd(2) }},
		{name: "fan above 100", mutate: func(f *File) { f.SetFanLevel(101) }},
		{name: "short voltage wait", mutate: func(f *File) { f.SetVoltageWait(500 * time.Millisecond) }},
		{name: "unknown policy", mutate: func(f *File) { f.SetPolicy("random") }},
		{name: "unknown format", mutate: func(f *File) { f.SetFormat("xml") }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := NewFileFromConfig(nil, "")
			tt.mutate(f)
			assert.Error(t, f.Validate())
		})
	}
}

func TestValidateBounds(t *testing.T) {
	f := NewFileFromConfig(nil, "")
	f.SetStep(MaxStep)
	f.SetMaxFrequency(MaxMaxFrequency)
	assert.NoError(t, f.Validate())
}

func TestEffective(t *testing.T) {
	f := NewFileFromConfig(&RawFileConfig{}, "")
	f.SetFormat("json")

	e := f.Effective()
	require.NotNil(t, e.Step)
	assert.Equal(t, uint32(16), *e.Step)
	assert.Equal(t, "json", *e.Format)
	assert.Equal(t, "2s", *e.VoltageWait)
}

func TestSaveWithoutPath(t *testing.T) {
	assert.Error(t, NewFileFromConfig(nil, "").Save())
}
