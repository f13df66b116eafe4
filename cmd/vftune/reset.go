package main

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/charlie0129/vftune/pkg/device"
)

func NewResetCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "reset [setting...]",
		Short:   "Restore driver defaults",
		GroupID: gDevice,
		Long: fmt.Sprintf(`Restore driver defaults.

Without arguments every setting is reset and settings the device does not support
are skipped with a warning. Named settings must all reset successfully.

Settings: %v`, device.Settings) + simNote,
		RunE: func(_ *cobra.Command, args []string) error {
			settings := device.Settings
			strict := len(args) > 0
			if strict {
				settings = nil
				for _, arg := range args {
					s, err := device.ParseSetting(arg)
					if err != nil {
						return err
					}
					settings = append(settings, s)
				}
			}

			return withDevice(func(dev device.Device) error {
				return device.Reset(dev, settings, strict)
			})
		},
	}
}

func NewLockCommand() *cobra.Command {
	var byVoltage bool

	cmd := &cobra.Command{
		Use:     "lock <point>",
		Short:   "Lock the voltage to a point of the curve",
		GroupID: gDevice,
		Long: `Lock the voltage to a point of the curve.

The point is a table index, or a voltage in microvolts with --voltage.` + simNote,
		Args: cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			value, err := parseUintArg(args[0], "point")
			if err != nil {
				return err
			}

			return withDevice(func(dev device.Device) error {
				voltage := device.Microvolts(value)
				if !byVoltage {
					points, err := dev.Points()
					if err != nil {
						return device.QueryError("points", err)
					}
					if int(value) >= len(points) {
						return fmt.Errorf("invalid point index %d, the table has %d points", value, len(points))
					}
					voltage = points[value].Voltage
				}

				if err := dev.LockVoltage(voltage); err != nil {
					return device.MutationError("voltage lock", err)
				}
				logrus.Infof("voltage locked to %s", voltage)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&byVoltage, "voltage", false, "treat the point as a voltage in microvolts")

	return cmd
}

func NewUnlockCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "unlock",
		Short:   "Remove the voltage lock",
		Long:    "Remove the voltage lock." + simNote,
		GroupID: gDevice,
		Args:    cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return withDevice(func(dev device.Device) error {
				if err := dev.ResetVoltageLock(); err != nil {
					return device.MutationError("voltage lock", err)
				}
				logrus.Info("voltage unlocked")
				return nil
			})
		},
	}
}
