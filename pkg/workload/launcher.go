package workload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"

	"github.com/sirupsen/logrus"
)

// ErrLaunchFailed is returned when the workload could not be started.
var ErrLaunchFailed = errors.New("failed to launch workload")

// Launcher starts one run of a stability workload.
//
// The returned channel delivers the pass/fail result exactly once. Cancelling
// ctx must stop the workload and still deliver a result (usually false).
type Launcher interface {
	Launch(ctx context.Context) (<-chan bool, error)
}

// Exec runs an external executable with no arguments. A zero exit status is
// a pass, anything else is a fail.
type Exec struct {
	Path string
	// Stdout and Stderr receive the workload output. Both default to
	// os.Stderr, stdout is reserved for exported results.
	Stdout io.Writer
	Stderr io.Writer
}

// Launch starts the executable.
func (e *Exec) Launch(ctx context.Context) (<-chan bool, error) {
	cmd := exec.CommandContext(ctx, e.Path)
	cmd.Stdout = e.Stdout
	if cmd.Stdout == nil {
		cmd.Stdout = os.Stderr
	}
	cmd.Stderr = e.Stderr
	if cmd.Stderr == nil {
		cmd.Stderr = os.Stderr
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w %s: %v", ErrLaunchFailed, e.Path, err)
	}

	logrus.WithFields(logrus.Fields{
		"path": e.Path,
		"pid":  cmd.Process.Pid,
	}).Debug("workload started")

	done := make(chan bool, 1)
	go func() {
		err := cmd.Wait()
		if err != nil {
			logrus.WithField("path", e.Path).WithError(err).Debug("workload failed")
		} else {
			logrus.WithField("path", e.Path).Debug("workload passed")
		}
		done <- err == nil
	}()

	return done, nil
}
