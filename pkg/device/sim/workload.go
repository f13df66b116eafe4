package sim

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// Workload is a simulated stability test. It keeps the GPU loaded for
// Duration and then passes if the active point is within its ceiling.
type Workload struct {
	GPU      *GPU
	Duration time.Duration
}

// Launch starts the simulated workload. The result is sent exactly once.
func (w *Workload) Launch(ctx context.Context) (<-chan bool, error) {
	done := make(chan bool, 1)

	w.GPU.SetLoaded(true)
	go func() {
		defer w.GPU.SetLoaded(false)

		timer := time.NewTimer(w.Duration)
		defer timer.Stop()

		select {
		case <-timer.C:
			stable := w.GPU.Stable()
			logrus.WithField("stable", stable).Debug("simulated workload finished")
			done <- stable
		case <-ctx.Done():
			done <- false
		}
	}()

	return done, nil
}
