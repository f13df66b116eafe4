package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/charlie0129/vftune/pkg/client"
	"github.com/charlie0129/vftune/pkg/config"
	"github.com/charlie0129/vftune/pkg/device"
	"github.com/charlie0129/vftune/pkg/events"
	"github.com/charlie0129/vftune/pkg/export"
	"github.com/charlie0129/vftune/pkg/sweep"
)

func NewStatusCommand() *cobra.Command {
	var follow bool

	cmd := &cobra.Command{
		Use:     "status",
		GroupID: gMonitoring,
		Short:   "Get the progress of the running sweep",
		Long: `Get the progress, validated points, and configuration of the running sweep.

With --follow, sweep events are printed as they happen until the sweep finishes.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			apiClient := client.NewClient(unixSocketPath)

			p, err := apiClient.GetStatus()
			if err != nil {
				return err
			}
			conf, err := apiClient.GetConfig()
			if err != nil {
				return err
			}
			printStatus(cmd, p, config.NewFileFromConfig(conf, ""))

			if !follow || p.State != sweep.StateRunning {
				return nil
			}

			cmd.Println()
			cmd.Println(bold("Events:"))
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return apiClient.Events(ctx, func(ev events.Event) bool {
				return printEvent(cmd, ev)
			})
		},
	}

	cmd.Flags().BoolVarP(&follow, "follow", "F", false, "follow sweep events")

	return cmd
}

func printStatus(cmd *cobra.Command, p *sweep.Progress, conf *config.File) {
	cmd.Println(bold("Sweep:"))
	cmd.Printf("  Run: %s\n", p.RunID)
	cmd.Printf("  Device: %s\n", bold("%s", p.Device))
	cmd.Printf("  State: %s\n", stateText(p.State))
	if p.Policy != "" {
		cmd.Printf("  Policy: %s\n", p.Policy)
	}
	cmd.Printf("  Points done: %s\n", bold("%d/%d", p.Done(), len(p.Indices)))
	if p.Current >= 0 {
		cmd.Printf("  Testing point: %s\n", bold("%d", p.Current))
	}
	if len(p.Skipped) > 0 {
		cmd.Printf("  Skipped points: %v\n", p.Skipped)
	}
	if p.StartedAt != nil {
		end := time.Now()
		if p.FinishedAt != nil {
			end = *p.FinishedAt
		}
		cmd.Printf("  Elapsed: %s\n", end.Sub(*p.StartedAt).Round(time.Second))
	}
	if p.Error != "" {
		cmd.Printf("  Error: %s\n", color.RedString(p.Error))
	}
	cmd.Println()

	cmd.Println(bold("Validated points:"))
	if len(p.Results) == 0 {
		cmd.Println("  none yet")
	} else if err := export.Write(cmd.OutOrStdout(), export.FormatTable, p.Results); err != nil {
		cmd.PrintErrf("failed to print points: %v\n", err)
	}
	cmd.Println()

	cmd.Println(bold("Configuration:"))
	cmd.Printf("  Step: %s\n", bold("%d MHz", conf.Step()))
	cmd.Printf("  Max frequency: %s\n", bold("%d MHz", conf.MaxFrequency()))
	cmd.Printf("  Voltage wait: %s\n", conf.VoltageWait())
	cmd.Printf("  Fan override: %s\n", bool2Text(conf.FanOverride()))
	if !conf.FanOverride() {
		cmd.Printf("  Fan level: %s\n", bold("%d%%", conf.FanLevel()))
	}
	cmd.Printf("  Power override: %s\n", bool2Text(conf.PowerOverride()))
	cmd.Printf("  Voltage override: %s\n", bool2Text(conf.VoltageOverride()))
	workload := conf.Workload()
	if workload == "" {
		workload = "(confirmed by hand)"
	}
	cmd.Printf("  Workload: %s\n", workload)
}

// printEvent prints one event and reports whether more should follow.
func printEvent(cmd *cobra.Command, ev events.Event) bool {
	switch ev.Name {
	case events.PointStarted:
		p, err := events.DecodeAs[events.PointEvent](ev)
		if err != nil {
			cmd.PrintErrf("bad event: %v\n", err)
			return true
		}
		cmd.Printf("  testing point %d at %s, up to %s\n", p.Index, device.Microvolts(p.Voltage), device.Kilohertz(p.Frequency))
	case events.PointFinished:
		p, err := events.DecodeAs[events.PointEvent](ev)
		if err != nil {
			cmd.PrintErrf("bad event: %v\n", err)
			return true
		}
		if p.Outcome == "skipped" {
			cmd.Printf("  point %d %s\n", p.Index, color.YellowString("skipped"))
		} else {
			cmd.Printf("  point %d %s: %s (%s)\n", p.Index, color.GreenString(p.Outcome),
				bold("%s", device.Kilohertz(p.Frequency)), device.KilohertzDelta(p.Offset))
		}
	case events.SweepFinished:
		p, err := events.DecodeAs[events.SweepFinishedEvent](ev)
		if err != nil {
			cmd.PrintErrf("bad event: %v\n", err)
			return false
		}
		msg := fmt.Sprintf("sweep finished: %d validated, %d skipped", p.Validated, p.Skipped)
		if p.Error != "" {
			cmd.Printf("  %s: %s\n", msg, color.RedString(p.Error))
		} else {
			cmd.Printf("  %s\n", color.GreenString(msg))
		}
		return false
	}
	return true
}

func stateText(s sweep.State) string {
	switch s {
	case sweep.StateRunning:
		return color.New(color.Bold, color.FgGreen).Sprint(s)
	case sweep.StateFailed:
		return color.New(color.Bold, color.FgRed).Sprint(s)
	default:
		return bold("%s", s)
	}
}

func bool2Text(b bool) string {
	if b {
		return color.New(color.Bold, color.FgGreen).Sprint("✔")
	}
	return color.New(color.Bold, color.FgRed).Sprint("✘")
}

func bold(format string, a ...interface{}) string {
	return color.New(color.Bold).Sprintf(format, a...)
}
