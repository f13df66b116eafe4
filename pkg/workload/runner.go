// Package workload runs one stability test cycle: it starts a workload,
// polls device telemetry while the workload runs, and classifies the outcome.
package workload

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/charlie0129/vftune/pkg/device"
	"github.com/charlie0129/vftune/pkg/limits"
	"github.com/charlie0129/vftune/pkg/metrics"
)

const (
	DefaultPollInterval = time.Second
	// DefaultMaxQueryFailures is the number of consecutive failed telemetry
	// polls after which a test is abandoned.
	DefaultMaxQueryFailures = 10
	// DefaultThrottleThreshold is the number of consecutive throttled polls
	// after which throttling counts as persistent.
	DefaultThrottleThreshold = 10
)

// Runner runs test cycles against one device.
type Runner struct {
	Telemetry device.Telemetry
	// Launcher starts the workload. When nil, Prompter is asked instead.
	Launcher Launcher
	Prompter Prompter
	// Step is the frequency granularity. A clock more than one step below
	// target counts as throttled.
	Step device.KilohertzDelta

	PollInterval      time.Duration
	MaxQueryFailures  int
	ThrottleThreshold int
}

func (r *Runner) pollInterval() time.Duration {
	if r.PollInterval <= 0 {
		return DefaultPollInterval
	}
	return r.PollInterval
}

func (r *Runner) maxQueryFailures() int {
	if r.MaxQueryFailures <= 0 {
		return DefaultMaxQueryFailures
	}
	return r.MaxQueryFailures
}

func (r *Runner) throttleThreshold() int {
	if r.ThrottleThreshold <= 0 {
		return DefaultThrottleThreshold
	}
	return r.ThrottleThreshold
}

// Run runs one test cycle at voltage, expecting the device to hold
// frequency. Errors are returned only for failures that make the result
// meaningless (launch failure, prompt input exhausted, ctx cancelled).
func (r *Runner) Run(ctx context.Context, voltage device.Microvolts, frequency device.Kilohertz) (limits.Verdict, error) {
	var verdict limits.Verdict
	var err error

	if r.Launcher == nil {
		verdict, err = r.confirm(voltage, frequency)
	} else {
		verdict, err = r.monitor(ctx, voltage, frequency)
	}
	if err != nil {
		return limits.Verdict{}, err
	}
	if ctx.Err() != nil {
		// The workload was killed under us, the verdict says nothing.
		return limits.Verdict{}, ctx.Err()
	}

	metrics.TestCycles.WithLabelValues(verdict.Kind.String()).Inc()
	return verdict, nil
}

func (r *Runner) confirm(voltage device.Microvolts, frequency device.Kilohertz) (limits.Verdict, error) {
	if r.Prompter == nil {
		return limits.Verdict{}, fmt.Errorf("%w: no workload and no prompter configured", ErrLaunchFailed)
	}

	stable, err := r.Prompter.Confirm(fmt.Sprintf("%s @ %s stable?", frequency, voltage))
	if err != nil {
		return limits.Verdict{}, err
	}
	if stable {
		return limits.VerdictClean, nil
	}
	return limits.VerdictLoadLimited, nil
}

func (r *Runner) monitor(ctx context.Context, voltage device.Microvolts, frequency device.Kilohertz) (limits.Verdict, error) {
	log := logrus.WithFields(logrus.Fields{
		"voltage":   voltage,
		"frequency": frequency,
	})

	baseline, err := r.Telemetry.Limits()
	if err != nil {
		log.WithError(err).Warn("failed to read baseline limits")
		baseline = device.LimitNone
	}

	testCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	done, err := r.Launcher.Launch(testCtx)
	if err != nil {
		return limits.Verdict{}, err
	}

	acc := limits.NewAccumulator(baseline)
	ticker := time.NewTicker(r.pollInterval())
	defer ticker.Stop()

	floor := frequency.Add(-r.Step)
	failures := 0
	throttled := 0
	persistent := false

	for {
		<-ticker.C

		// Device first, then completion.
		flags, clock, err := r.poll()
		if err != nil {
			failures++
			metrics.QueryFailures.Inc()
			log.WithError(err).WithField("failures", failures).Warn("failed to get GPU data")
			if failures >= r.maxQueryFailures() {
				log.Warn("too many query failures, considering test failed")
				cancel()
				<-done
				return limits.VerdictLoadLimited, nil
			}
			continue
		}
		failures = 0
		acc.Observe(flags)

		if clock < floor {
			metrics.ThrottleObservations.Inc()
			if throttled < r.throttleThreshold() {
				throttled++
				log.WithField("clock", clock).Warnf("clock throttle detected, expected %s but got %s", frequency, clock)
			}
			if throttled >= r.throttleThreshold() {
				persistent = true
			}
		} else {
			throttled = 0
		}

		select {
		case passed := <-done:
			verdict := limits.Classify(passed, acc.Triggered(), persistent)
			log.WithFields(logrus.Fields{
				"passed":  passed,
				"limits":  acc.Triggered(),
				"verdict": verdict,
			}).Debug("test cycle finished")
			return verdict, nil
		default:
		}
	}
}

func (r *Runner) poll() (device.LimitFlags, device.Kilohertz, error) {
	flags, err := r.Telemetry.Limits()
	if err != nil {
		return 0, 0, device.QueryError("limits", err)
	}
	clock, err := r.Telemetry.CurrentClock()
	if err != nil {
		return 0, 0, device.QueryError("current clock", err)
	}
	return flags, clock, nil
}
