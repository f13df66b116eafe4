package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/charlie0129/vftune/pkg/device"
	"github.com/charlie0129/vftune/pkg/export"
)

func NewPointsCommand() *cobra.Command {
	var (
		format = string(export.FormatTable)
		output = export.Stdout
	)

	cmd := &cobra.Command{
		Use:     "points",
		Short:   "Show the voltage/frequency curve",
		GroupID: gDevice,
		Long: `Show the voltage/frequency curve with the offsets currently applied.

The csv and tsv formats can be edited and applied again with 'vftune points apply'.`,
		Args: cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			f, err := export.ParseFormat(format)
			if err != nil {
				return err
			}

			return withDevice(func(dev device.Device) error {
				points, err := dev.Points()
				if err != nil {
					return device.QueryError("points", err)
				}
				return (&export.File{Path: output, Format: f}).Export(points)
			})
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", format, fmt.Sprintf("output format %v", export.Formats))
	cmd.Flags().StringVarP(&output, "output", "o", output, "output file, - for stdout")

	cmd.AddCommand(newPointsApplyCommand())

	return cmd
}

func newPointsApplyCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "apply <file>",
		Short: "Apply offsets from an exported curve",
		Long: `Apply offsets from an exported curve.

The file is CSV, or TSV with a .tsv extension, with the columns voltage, frequency
and delta. Points are matched by voltage, - reads CSV from stdin.` + simNote,
		Args: cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			var points []device.Point
			var err error
			if args[0] == export.Stdout {
				points, err = export.ReadCSV(os.Stdin)
			} else {
				points, err = export.ReadFile(args[0])
			}
			if err != nil {
				return err
			}

			return withDevice(func(dev device.Device) error {
				n, err := device.ApplyOffsets(dev, points)
				if err != nil {
					return err
				}
				logrus.Infof("applied %d of %d point(s)", n, len(points))
				return nil
			})
		},
	}
}
