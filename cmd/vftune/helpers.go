package main

import (
	"fmt"
	"strconv"

	"github.com/sirupsen/logrus"

	"github.com/charlie0129/vftune/pkg/config"
	"github.com/charlie0129/vftune/pkg/device"
	"github.com/charlie0129/vftune/pkg/devicelock"
)

// simNote is appended to the help of commands that change device state.
const simNote = `

The sim backend keeps its state in memory: changes made on it last only until
the command exits and are not seen by later vftune runs.`

func parseUintArg(arg string, valueName string) (uint32, error) {
	value, err := strconv.ParseUint(arg, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %v", valueName, err)
	}

	return uint32(value), nil
}

func loadConfig() (*config.File, error) {
	conf, err := config.NewFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return conf, nil
}

// openDevice takes the device lock and opens the device selected by the
// global flags. release closes the device and drops the lock.
func openDevice() (dev device.Device, release func(), err error) {
	lock, err := devicelock.Acquire(devicelock.Path(lockDir, backend, backendArg))
	if err != nil {
		return nil, nil, err
	}

	dev, err = device.Open(backend, backendArg)
	if err != nil {
		_ = lock.Release()
		return nil, nil, err
	}

	logrus.WithFields(logrus.Fields{
		"backend": backend,
		"device":  dev.Name(),
	}).Debug("device opened")

	release = func() {
		if c, ok := dev.(device.Closer); ok {
			if err := c.Close(); err != nil {
				logrus.WithError(err).Warn("failed to close device")
			}
		}
		if err := lock.Release(); err != nil {
			logrus.WithError(err).Warn("failed to release device lock")
		}
	}

	return dev, release, nil
}

// withDevice runs f on the opened device.
func withDevice(f func(dev device.Device) error) error {
	dev, release, err := openDevice()
	if err != nil {
		return err
	}
	defer release()

	return f(dev)
}
