package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/charlie0129/vftune/pkg/config"
	"github.com/charlie0129/vftune/pkg/device"
	"github.com/charlie0129/vftune/pkg/device/sim"
	"github.com/charlie0129/vftune/pkg/events"
	"github.com/charlie0129/vftune/pkg/export"
	"github.com/charlie0129/vftune/pkg/limits"
	"github.com/charlie0129/vftune/pkg/search"
	"github.com/charlie0129/vftune/pkg/server"
	"github.com/charlie0129/vftune/pkg/sweep"
	"github.com/charlie0129/vftune/pkg/workload"
)

// autoFlags holds the flag values of 'auto'. Only flags given on the command
// line override the config file.
type autoFlags struct {
	fanOverride     bool
	powerOverride   bool
	voltageOverride bool
	fanLevel        uint32
	step            uint32
	max             uint32
	start           int
	end             int
	voltageWait     time.Duration
	policy          string
	test            string
	output          string
	format          string

	simulateWorkload time.Duration
	noServer         bool
}

func (f *autoFlags) apply(cmd *cobra.Command, conf *config.File) {
	flags := cmd.Flags()
	if flags.Changed("fan-override") {
		conf.SetFanOverride(f.fanOverride)
	}
	if flags.Changed("power-override") {
		conf.SetPowerOverride(f.powerOverride)
	}
	if flags.Changed("voltage-override") {
		conf.SetVoltageOverride(f.voltageOverride)
	}
	if flags.Changed("fan-level") {
		conf.SetFanLevel(f.fanLevel)
	}
	if flags.Changed("step") {
		conf.SetStep(f.step)
	}
	if flags.Changed("max") {
		conf.SetMaxFrequency(f.max)
	}
	if flags.Changed("start") {
		conf.SetStart(f.start)
	}
	if flags.Changed("end") {
		conf.SetEnd(f.end)
	}
	if flags.Changed("voltage-wait") {
		conf.SetVoltageWait(f.voltageWait)
	}
	if flags.Changed("policy") {
		conf.SetPolicy(f.policy)
	}
	if flags.Changed("test") {
		conf.SetWorkload(f.test)
	}
	if flags.Changed("output") {
		conf.SetOutput(f.output)
	}
	if flags.Changed("format") {
		conf.SetFormat(f.format)
	}
}

// newRunner builds the test cycle runner. The workload is the simulated one
// when requested, the configured executable otherwise, and the operator when
// neither is set.
func (f *autoFlags) newRunner(dev device.Device, conf *config.File) (*workload.Runner, error) {
	var launcher workload.Launcher
	switch {
	case f.simulateWorkload > 0:
		g, ok := device.Unwrap(dev).(*sim.GPU)
		if !ok {
			return nil, fmt.Errorf("--simulate-workload needs the %s backend", sim.BackendName)
		}
		launcher = &sim.Workload{GPU: g, Duration: f.simulateWorkload}
	case conf.Workload() != "":
		launcher = &workload.Exec{Path: conf.Workload()}
	default:
		logrus.Info("no workload configured, every test cycle will be confirmed by hand")
	}

	return &workload.Runner{
		Telemetry: dev,
		Launcher:  launcher,
		Prompter:  workload.NewTerminalPrompter(os.Stdin, os.Stderr),
		Step:      device.DeltaMHz(int32(conf.Step())),
	}, nil
}

func NewAutoCommand() *cobra.Command {
	f := &autoFlags{}

	cmd := &cobra.Command{
		Use:     "auto",
		Short:   "Characterize the voltage/frequency curve",
		GroupID: gTuning,
		Long: `Characterize the voltage/frequency curve.

Points are tested from the end index down to the start index. Each point gets the
highest offset that passes the stability workload without tripping a hardware
limiter, and no point is allowed to run faster than the one above it.

Fans are forced to a fixed level and power limits raised to their maxima for the
whole run unless overridden. Every setting changed is restored when the sweep
ends, and the points validated so far are exported even if it fails.

Send SIGINT or SIGTERM to stop early.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			conf, err := loadConfig()
			if err != nil {
				return err
			}
			f.apply(cmd, conf)
			if err := conf.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}
			logrus.WithFields(conf.LogrusFields()).Info("configuration loaded")

			return runAuto(f, conf)
		},
	}

	flags := cmd.Flags()
	flags.BoolVar(&f.fanOverride, "fan-override", false, "leave fan control alone (not recommended, high temperatures skew results)")
	flags.BoolVar(&f.powerOverride, "power-override", false, "leave power limits alone")
	flags.BoolVar(&f.voltageOverride, "voltage-override", false, "never raise voltage boost to reach a point")
	flags.Uint32Var(&f.fanLevel, "fan-level", uint32(sweep.DefaultFanLevel), "fan level forced during the sweep (%)")
	flags.Uint32VarP(&f.step, "step", "S", 16, "testing step resolution (MHz)")
	flags.Uint32VarP(&f.max, "max", "M", 2200, "testing max frequency (MHz)")
	flags.IntVarP(&f.start, "start", "s", 0, "point index to start at")
	flags.IntVarP(&f.end, "end", "e", -1, "point index to end at, -1 for the last point")
	flags.DurationVar(&f.voltageWait, "voltage-wait", search.DefaultVoltageWait, "how long to wait for a voltage lock to settle")
	flags.StringVar(&f.policy, "policy", string(search.PolicyStepped), fmt.Sprintf("search policy %v", search.Policies))
	flags.StringVarP(&f.output, "output", "o", export.Stdout, "results file, - for stdout")
	flags.StringVarP(&f.format, "format", "f", string(export.FormatCSV), fmt.Sprintf("results format %v", export.Formats))
	flags.BoolVar(&f.noServer, "no-server", false, "do not serve progress on the unix socket")

	persistent := cmd.PersistentFlags()
	persistent.StringVarP(&f.test, "test", "t", "", "stability workload executable, exit status 0 is a pass (see 'auto test')")
	persistent.DurationVar(&f.simulateWorkload, "simulate-workload", 0, "run a simulated workload of this duration instead (sim backend only)")

	cmd.AddCommand(newAutoTestCommand(f))

	return cmd
}

func runAuto(f *autoFlags, conf *config.File) error {
	policy, err := search.ParsePolicy(conf.Policy())
	if err != nil {
		return err
	}
	format, err := export.ParseFormat(conf.Format())
	if err != nil {
		return err
	}

	dev, release, err := openDevice()
	if err != nil {
		return err
	}
	defer release()

	points, err := dev.Points()
	if err != nil {
		return device.QueryError("points", err)
	}
	if len(points) == 0 {
		return fmt.Errorf("%s has an empty voltage/frequency table", dev.Name())
	}
	end := conf.End()
	if end < 0 {
		end = len(points) - 1
	}

	runner, err := f.newRunner(dev, conf)
	if err != nil {
		return err
	}
	searcher := &search.Searcher{
		Device:          dev,
		Tester:          runner,
		Step:            device.DeltaMHz(int32(conf.Step())),
		VoltageWait:     conf.VoltageWait(),
		VoltageOverride: conf.VoltageOverride(),
		Policy:          policy,
	}

	hub := events.NewEventHub()
	sw := sweep.New(dev, searcher, sweep.Options{
		FanOverride:   conf.FanOverride(),
		PowerOverride: conf.PowerOverride(),
		FanLevel:      device.Percentage(conf.FanLevel()),
		MaxFrequency:  device.MHz(conf.MaxFrequency()),
	})
	sw.Exporter = &export.File{Path: conf.Output(), Format: format}
	sw.Events = hub
	sw.Policy = string(policy)

	if !f.noServer {
		srv := server.New(sw, conf.Effective(), hub)
		if err := srv.Start(unixSocketPath); err != nil {
			return err
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(ctx); err != nil {
				logrus.WithError(err).Warn("failed to shut down progress server")
			}
		}()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	results, err := sw.Run(ctx, sweep.Indices(conf.Start(), end))
	if err != nil {
		return err
	}

	logrus.Infof("validated %d point(s)", results.Len())
	return nil
}

func newAutoTestCommand(f *autoFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "test <voltage> <clock>",
		Short: "Run a single test cycle",
		Long: `Run a single test cycle, monitoring the GPU while the stability workload runs.

The voltage is in microvolts and the clock in kilohertz, the units of the exported
curve. Device settings are not touched: lock the voltage and set the offset first.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			voltage, err := parseUintArg(args[0], "voltage")
			if err != nil {
				return err
			}
			clock, err := parseUintArg(args[1], "clock")
			if err != nil {
				return err
			}

			conf, err := loadConfig()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("test") {
				conf.SetWorkload(f.test)
			}

			return withDevice(func(dev device.Device) error {
				runner, err := f.newRunner(dev, conf)
				if err != nil {
					return err
				}

				ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
				defer stop()

				verdict, err := runner.Run(ctx, device.Microvolts(voltage), device.Kilohertz(clock))
				if err != nil {
					return err
				}

				c := color.New(color.FgGreen, color.Bold)
				if verdict.Kind != limits.Clean {
					c = color.New(color.FgRed, color.Bold)
				}
				cmd.Printf("%s @ %s: %s\n", device.Kilohertz(clock), device.Microvolts(voltage), c.Sprint(verdict))
				return nil
			})
		},
	}
}
