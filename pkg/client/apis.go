package client

import (
	"bufio"
	"context"
	"encoding/json"
	"strings"

	pkgerrors "github.com/pkg/errors"

	"github.com/charlie0129/vftune/pkg/config"
	"github.com/charlie0129/vftune/pkg/device"
	"github.com/charlie0129/vftune/pkg/events"
	"github.com/charlie0129/vftune/pkg/sweep"
)

func (c *Client) GetStatus() (*sweep.Progress, error) {
	ret, err := c.Get("/status")
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to get sweep status")
	}

	var p sweep.Progress
	if err := json.Unmarshal([]byte(ret), &p); err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to unmarshal sweep status")
	}
	return &p, nil
}

func (c *Client) GetResults() ([]device.Point, error) {
	ret, err := c.Get("/results")
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to get results")
	}

	var points []device.Point
	if err := json.Unmarshal([]byte(ret), &points); err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to unmarshal results")
	}
	return points, nil
}

func (c *Client) GetConfig() (*config.RawFileConfig, error) {
	ret, err := c.Get("/config")
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to get config")
	}

	var conf config.RawFileConfig
	if err := json.Unmarshal([]byte(ret), &conf); err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to unmarshal config")
	}

	return &conf, nil
}

func (c *Client) GetVersion() (string, error) {
	ret, err := c.Get("/version")
	if err != nil {
		return "", pkgerrors.Wrapf(err, "failed to get version")
	}

	var v string
	if err := json.Unmarshal([]byte(ret), &v); err != nil {
		return "", pkgerrors.Wrapf(err, "failed to unmarshal version")
	}
	return v, nil
}

// Events streams sweep events to fn until ctx is done, the sweep ends the
// stream, or fn returns false.
func (c *Client) Events(ctx context.Context, fn func(events.Event) bool) error {
	resp, err := c.open(ctx, "/events")
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to subscribe to events")
	}
	defer closeBody(resp)

	var ev events.Event
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "event:"):
			ev.Name = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			ev.Data = append(ev.Data, strings.TrimSpace(strings.TrimPrefix(line, "data:"))...)
		case line == "":
			if ev.Name == "" && len(ev.Data) == 0 {
				continue
			}
			if !fn(ev) {
				return nil
			}
			ev = events.Event{}
		}
	}

	if ctx.Err() != nil {
		return nil
	}
	return pkgerrors.Wrap(scanner.Err(), "failed to read events")
}
