package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/charlie0129/vftune/pkg/client"
	"github.com/charlie0129/vftune/pkg/device"
	"github.com/charlie0129/vftune/pkg/device/sim"
	"github.com/charlie0129/vftune/pkg/devicelock"
	"github.com/charlie0129/vftune/pkg/workload"
)

var (
	logLevel       = "info"
	unixSocketPath = filepath.Join(os.TempDir(), "vftune.sock")
	configPath     = ""
	backend        = sim.BackendName
	backendArg     = ""
	lockDir        = os.TempDir()
)

var (
	gTuning       = "Tuning:"
	gDevice       = "Device:"
	gMonitoring   = "Monitoring:"
	commandGroups = []string{
		gTuning,
		gDevice,
		gMonitoring,
	}
)

func setupLogger() error {
	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		return fmt.Errorf("failed to parse log level: %v", err)
	}
	logrus.SetLevel(level)
	logrus.SetFormatter(&logrus.TextFormatter{})
	if term.IsTerminal(int(os.Stderr.Fd())) {
		logrus.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: time.Kitchen,
		})
	}

	return nil
}

func handleCmdError(err error) {
	switch {
	case errors.Is(err, client.ErrNotRunning):
		fmt.Fprintln(os.Stderr, "\nError: no sweep is running")
		fmt.Fprintf(os.Stderr, "Start one with 'vftune auto', or point --socket at its socket (currently %s)\n", unixSocketPath)
	case errors.Is(err, client.ErrPermissionDenied):
		fmt.Fprintln(os.Stderr, "\nError: Permission Denied")
		fmt.Fprintln(os.Stderr, "  - The sweep was probably started by another user, try again with 'sudo'")
	case errors.Is(err, devicelock.ErrBusy):
		fmt.Fprintln(os.Stderr, "\nError: the device is already being tuned")
		fmt.Fprintln(os.Stderr, "Wait for the other vftune process to finish, or check it with 'vftune status'")
	case errors.Is(err, device.ErrNoSuchBackend):
		fmt.Fprintf(os.Stderr, "\nError: unknown device backend, available: %v\n", device.Backends())
	case errors.Is(err, device.ErrMutationFailed):
		fmt.Fprintln(os.Stderr, "\nError: a device setting could not be changed, the device state is unknown")
		fmt.Fprintln(os.Stderr, "Run 'vftune reset' to restore the driver defaults")
	case errors.Is(err, workload.ErrLaunchFailed):
		fmt.Fprintln(os.Stderr, "\nError: the stability workload could not be started")
		fmt.Fprintln(os.Stderr, "Check the --test path, or leave it empty to confirm each test by hand")
	}
}

func main() {
	cmd := NewCommand()
	if err := cmd.Execute(); err != nil {
		handleCmdError(err)
		os.Exit(1)
	}
}

func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "vftune",
		Short: "vftune finds the highest stable frequency of every point on a GPU voltage/frequency curve",
		Long: `vftune finds the highest stable frequency of every point on a GPU voltage/frequency curve.

For each point it locks the voltage, raises the frequency offset, runs a stability
workload and watches the performance limiters until the point is characterized.
The validated curve is written as CSV and can be applied again with 'vftune points apply'.`,
		SilenceUsage: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			return setupLogger()
		},
	}

	globalFlags := cmd.PersistentFlags()
	globalFlags.StringVarP(&logLevel, "log-level", "l", "info", "log level (trace, debug, info, warn, error, fatal, panic)")
	globalFlags.StringVar(&configPath, "config", configPath, "config file path (YAML, or JSON with a .json extension)")
	globalFlags.StringVar(&unixSocketPath, "socket", unixSocketPath, "unix socket of the progress API")
	globalFlags.StringVarP(&backend, "device", "d", backend, fmt.Sprintf("device backend %v", device.Backends()))
	globalFlags.StringVar(&backendArg, "device-arg", backendArg, "backend argument, e.g. a simulator profile path")
	globalFlags.StringVar(&lockDir, "lock-dir", lockDir, "directory holding the per-device lock files")

	for _, i := range commandGroups {
		cmd.AddGroup(&cobra.Group{
			ID:    i,
			Title: i,
		})
	}

	cmd.AddCommand(
		NewAutoCommand(),
		NewPointsCommand(),
		NewLockCommand(),
		NewUnlockCommand(),
		NewResetCommand(),
		NewStatusCommand(),
		NewConfigCommand(),
		NewVersionCommand(),
	)

	return cmd
}
