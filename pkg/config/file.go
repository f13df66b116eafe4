package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/charlie0129/vftune/pkg/export"
	"github.com/charlie0129/vftune/pkg/search"
	"github.com/charlie0129/vftune/pkg/utils/ptr"
)

var (
	defaultFileConfig = &RawFileConfig{
		Step:         ptr.To(uint32(16)),
		MaxFrequency: ptr.To(uint32(2200)),
		Start:        ptr.To(0),
		// -1 is the highest index of the table.
		End:             ptr.To(-1),
		VoltageWait:     ptr.To("2s"),
		Policy:          ptr.To("stepped"),
		FanLevel:        ptr.To(uint32(85)),
		FanOverride:     ptr.To(false),
		PowerOverride:   ptr.To(false),
		VoltageOverride: ptr.To(false),
		Workload:        ptr.To(""),
		Output:          ptr.To("-"),
		Format:          ptr.To("csv"),
	}
)

// Frequencies are stored in kHz once loaded, these keep the MHz values from
// overflowing.
const (
	MaxStep         = math.MaxInt32 / 1000
	MaxMaxFrequency = math.MaxUint32 / 1000
)

var _ Config = &File{}

type File struct {
	c        *RawFileConfig
	mu       *sync.RWMutex
	filepath string
}

// NewFile loads the configuration at configPath. A missing or empty file
// gives the defaults.
func NewFile(configPath string) (*File, error) {
	f := &File{
		filepath: configPath,
		mu:       &sync.RWMutex{},
	}
	err := f.Load()
	if err != nil {
		return nil, err
	}

	return f, nil
}

func NewFileFromConfig(c *RawFileConfig, configPath string) *File {
	if c == nil {
		c = &RawFileConfig{}
	}

	f := &File{
		c:        c,
		mu:       &sync.RWMutex{},
		filepath: configPath,
	}

	return f
}

// RawFileConfig is the on-disk form. Frequencies are in MHz.
type RawFileConfig struct {
	Step            *uint32 `json:"step,omitempty" yaml:"step,omitempty"`
	MaxFrequency    *uint32 `json:"max,omitempty" yaml:"max,omitempty"`
	Start           *int    `json:"start,omitempty" yaml:"start,omitempty"`
	End             *int    `json:"end,omitempty" yaml:"end,omitempty"`
	VoltageWait     *string `json:"voltageWait,omitempty" yaml:"voltageWait,omitempty"`
	Policy          *string `json:"policy,omitempty" yaml:"policy,omitempty"`
	FanLevel        *uint32 `json:"fanLevel,omitempty" yaml:"fanLevel,omitempty"`
	FanOverride     *bool   `json:"fanOverride,omitempty" yaml:"fanOverride,omitempty"`
	PowerOverride   *bool   `json:"powerOverride,omitempty" yaml:"powerOverride,omitempty"`
	VoltageOverride *bool   `json:"voltageOverride,omitempty" yaml:"voltageOverride,omitempty"`
	Workload        *string `json:"test,omitempty" yaml:"test,omitempty"`
	Output          *string `json:"output,omitempty" yaml:"output,omitempty"`
	Format          *string `json:"format,omitempty" yaml:"format,omitempty"`
}

// DefaultRawFileConfig returns a copy of the defaults with every field set.
func DefaultRawFileConfig() *RawFileConfig {
	c := *defaultFileConfig
	return &c
}

// get reads one field under the read lock, falling back to the default.
func get[T any](f *File, field func(*RawFileConfig) *T) T {
	if f.c == nil {
		panic("config is nil")
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	if v := field(f.c); v != nil {
		return *v
	}
	return *field(defaultFileConfig)
}

// set writes one field under the write lock.
func set[T any](f *File, field func(*RawFileConfig) **T, v T) {
	if f.c == nil {
		panic("config is nil")
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	*field(f.c) = &v
}

func (f *File) Step() uint32 {
	return get(f, func(c *RawFileConfig) *uint32 { return c.Step })
}

func (f *File) MaxFrequency() uint32 {
	return get(f, func(c *RawFileConfig) *uint32 { return c.MaxFrequency })
}

func (f *File) Start() int {
	return get(f, func(c *RawFileConfig) *int { return c.Start })
}

func (f *File) End() int {
	return get(f, func(c *RawFileConfig) *int { return c.End })
}

// VoltageWait returns the configured wait. An unparsable value gives the
// default; Validate reports it.
func (f *File) VoltageWait() time.Duration {
	s := get(f, func(c *RawFileConfig) *string { return c.VoltageWait })
	d, err := time.ParseDuration(s)
	if err != nil {
		d, _ = time.ParseDuration(*defaultFileConfig.VoltageWait)
	}
	return d
}

func (f *File) Policy() string {
	return get(f, func(c *RawFileConfig) *string { return c.Policy })
}

func (f *File) FanLevel() uint32 {
	return get(f, func(c *RawFileConfig) *uint32 { return c.FanLevel })
}

func (f *File) FanOverride() bool {
	return get(f, func(c *RawFileConfig) *bool { return c.FanOverride })
}

func (f *File) PowerOverride() bool {
	return get(f, func(c *RawFileConfig) *bool { return c.PowerOverride })
}

func (f *File) VoltageOverride() bool {
	return get(f, func(c *RawFileConfig) *bool { return c.VoltageOverride })
}

func (f *File) Workload() string {
	return get(f, func(c *RawFileConfig) *string { return c.Workload })
}

func (f *File) Output() string {
	return get(f, func(c *RawFileConfig) *string { return c.Output })
}

func (f *File) Format() string {
	return get(f, func(c *RawFileConfig) *string { return c.Format })
}

func (f *File) SetStep(v uint32) {
	set(f, func(c *RawFileConfig) **uint32 { return &c.Step }, v)
}

func (f *File) SetMaxFrequency(v uint32) {
	set(f, func(c *RawFileConfig) **uint32 { return &c.MaxFrequency }, v)
}

func (f *File) SetStart(v int) {
	set(f, func(c *RawFileConfig) **int { return &c.Start }, v)
}

func (f *File) SetEnd(v int) {
	set(f, func(c *RawFileConfig) **int { return &c.End }, v)
}

func (f *File) SetVoltageWait(d time.Duration) {
	set(f, func(c *RawFileConfig) **string { return &c.VoltageWait }, d.String())
}

func (f *File) SetPolicy(v string) {
	set(f, func(c *RawFileConfig) **string { return &c.Policy }, v)
}

func (f *File) SetFanLevel(v uint32) {
	set(f, func(c *RawFileConfig) **uint32 { return &c.FanLevel }, v)
}

func (f *File) SetFanOverride(v bool) {
	set(f, func(c *RawFileConfig) **bool { return &c.FanOverride }, v)
}

func (f *File) SetPowerOverride(v bool) {
	set(f, func(c *RawFileConfig) **bool { return &c.PowerOverride }, v)
}

func (f *File) SetVoltageOverride(v bool) {
	set(f, func(c *RawFileConfig) **bool { return &c.VoltageOverride }, v)
}

func (f *File) SetWorkload(v string) {
	set(f, func(c *RawFileConfig) **string { return &c.Workload }, v)
}

func (f *File) SetOutput(v string) {
	set(f, func(c *RawFileConfig) **string { return &c.Output }, v)
}

func (f *File) SetFormat(v string) {
	set(f, func(c *RawFileConfig) **string { return &c.Format }, v)
}

func (f *File) Validate() error {
	if f.Step() == 0 {
		return pkgerrors.New("step must be positive")
	}
	if f.Step() > MaxStep {
		return fmt.Errorf("step %d MHz above %d MHz", f.Step(), MaxStep)
	}
	if f.MaxFrequency() == 0 {
		return pkgerrors.New("max frequency must be positive")
	}
	if f.MaxFrequency() > MaxMaxFrequency {
		return fmt.Errorf("max frequency %d MHz above %d MHz", f.MaxFrequency(), MaxMaxFrequency)
	}
	if f.Start() < 0 {
		return fmt.Errorf("start index %d is negative", f.Start())
	}
	if end := f.End(); end >= 0 && end < f.Start() {
		return fmt.Errorf("end index %d is below start index %d", end, f.Start())
	}
	if f.FanLevel() > 100 {
		return fmt.Errorf("fan level %d above 100", f.FanLevel())
	}
	if _, err := search.ParsePolicy(f.Policy()); err != nil {
		return err
	}
	if _, err := export.ParseFormat(f.Format()); err != nil {
		return err
	}

	wait := get(f, func(c *RawFileConfig) *string { return c.VoltageWait })
	d, err := time.ParseDuration(wait)
	if err != nil {
		return pkgerrors.Wrapf(err, "invalid voltage wait %q", wait)
	}
	if d < time.Second {
		return fmt.Errorf("voltage wait %s is below one second", d)
	}

	return nil
}

// isYAML reports whether path is read and written as YAML. Anything that is
// not .json is YAML.
func isYAML(path string) bool {
	return !strings.EqualFold(filepath.Ext(path), ".json")
}

func (f *File) Load() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.filepath == "" {
		f.c = &RawFileConfig{}
		return nil
	}

	fp, err := os.Open(f.filepath)
	if err != nil {
		if os.IsNotExist(err) {
			// If the file does not exist, return the empty config.
			// Do not make f.c a nil.
			f.c = &RawFileConfig{}
			return nil
		}
		return pkgerrors.Wrapf(err, "failed to open file %s", f.filepath)
	}
	defer func(fp *os.File) {
		err := fp.Close()
		if err != nil {
			logrus.Warnf("failed to close file %s", f.filepath)
		}
	}(fp)

	b, err := io.ReadAll(fp)
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to read file %s", f.filepath)
	}

	if len(bytes.TrimSpace(b)) == 0 {
		// If the file is empty, return the empty config.
		// Do not make f.c a nil.
		f.c = &RawFileConfig{}
		return nil
	}

	conf := RawFileConfig{}
	if isYAML(f.filepath) {
		err = yaml.Unmarshal(b, &conf)
	} else {
		err = json.Unmarshal(b, &conf)
	}
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to unmarshal config from file %s", f.filepath)
	}
	f.c = &conf

	return nil
}

func (f *File) Save() error {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.c == nil {
		return pkgerrors.New("config is nil")
	}
	if f.filepath == "" {
		return pkgerrors.New("config has no file path")
	}

	fp, err := os.OpenFile(f.filepath, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to open file %s", f.filepath)
	}
	defer func(fp *os.File) {
		err := fp.Close()
		if err != nil {
			logrus.Warnf("failed to close file %s", f.filepath)
		}
	}(fp)

	if isYAML(f.filepath) {
		enc := yaml.NewEncoder(fp)
		enc.SetIndent(2)
		err = enc.Encode(f.c)
		if err == nil {
			err = enc.Close()
		}
	} else {
		enc := json.NewEncoder(fp)
		enc.SetIndent("", "  ")
		err = enc.Encode(f.c)
	}
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to encode config to file %s", f.filepath)
	}

	return nil
}

// Effective returns the configuration with every default filled in.
func (f *File) Effective() *RawFileConfig {
	return &RawFileConfig{
		Step:            ptr.To(f.Step()),
		MaxFrequency:    ptr.To(f.MaxFrequency()),
		Start:           ptr.To(f.Start()),
		End:             ptr.To(f.End()),
		VoltageWait:     ptr.To(f.VoltageWait().String()),
		Policy:          ptr.To(f.Policy()),
		FanLevel:        ptr.To(f.FanLevel()),
		FanOverride:     ptr.To(f.FanOverride()),
		PowerOverride:   ptr.To(f.PowerOverride()),
		VoltageOverride: ptr.To(f.VoltageOverride()),
		Workload:        ptr.To(f.Workload()),
		Output:          ptr.To(f.Output()),
		Format:          ptr.To(f.Format()),
	}
}

// Path returns the file the configuration is read from.
func (f *File) Path() string {
	return f.filepath
}

func (f *File) LogrusFields() logrus.Fields {
	if f.c == nil {
		panic("config is nil")
	}

	return logrus.Fields{
		"step":            f.Step(),
		"max":             f.MaxFrequency(),
		"start":           f.Start(),
		"end":             f.End(),
		"voltageWait":     f.VoltageWait(),
		"policy":          f.Policy(),
		"fanLevel":        f.FanLevel(),
		"fanOverride":     f.FanOverride(),
		"powerOverride":   f.PowerOverride(),
		"voltageOverride": f.VoltageOverride(),
		"test":            f.Workload(),
		"output":          f.Output(),
		"format":          f.Format(),
	}
}
