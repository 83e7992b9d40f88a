package coordinator

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/greenhouse/internal/model"
	"github.com/thatsimonsguy/greenhouse/internal/port"
	"github.com/thatsimonsguy/greenhouse/internal/state"
)

type statusResult struct {
	device model.Device
	err    error
}

// SetDeviceStatus shows the new status immediately, then confirms it with
// the port record or rolls back to the last confirmed status. ctx bounds
// only the wait; the command itself lives as long as the coordinator.
func (c *Coordinator) SetDeviceStatus(ctx context.Context, deviceID string, status model.DeviceStatus) (model.Device, error) {
	if !status.Valid() {
		return model.Device{}, fmt.Errorf("%w: invalid device status %q", port.ErrCommand, status)
	}

	result := make(chan statusResult, 1)
	if err := c.send(func() { c.startStatus(deviceID, status, result) }); err != nil {
		return model.Device{}, err
	}

	select {
	case r := <-result:
		return r.device, r.err
	case <-ctx.Done():
		return model.Device{}, ctx.Err()
	case <-c.done:
		return model.Device{}, ErrNotStarted
	}
}

// SetFanSpeed shows the new speed immediately, then confirms or rolls back.
// It reports whether the port applied the speed.
func (c *Coordinator) SetFanSpeed(ctx context.Context, deviceID string, percent int) bool {
	if !port.ValidFanSpeed(percent) {
		log.Warn().Str("device_id", deviceID).Int("percent", percent).Msg("Rejecting fan speed outside 0-100")
		return false
	}

	result := make(chan bool, 1)
	if err := c.send(func() { c.startFan(deviceID, percent, result) }); err != nil {
		return false
	}

	select {
	case ok := <-result:
		return ok
	case <-ctx.Done():
		return false
	case <-c.done:
		return false
	}
}

func (c *Coordinator) deviceIndex(id string) int {
	for i := range c.raw.Devices {
		if c.raw.Devices[i].ID == id {
			return i
		}
	}
	return -1
}

// overlay re-applies optimistic values still awaiting confirmation.
func (c *Coordinator) overlay(d *model.Device) {
	if cmd, ok := c.cmds[cmdKey{d.ID, fieldStatus}]; ok {
		d.Status = cmd.status
	}
	if cmd, ok := c.cmds[cmdKey{d.ID, fieldFan}]; ok {
		v := cmd.fan
		d.FanSpeed = &v
	}
}

func (c *Coordinator) startStatus(deviceID string, status model.DeviceStatus, result chan<- statusResult) {
	key := cmdKey{deviceID, fieldStatus}
	c.nextToken++
	token := c.nextToken
	c.cmds[key] = pendingCmd{token: token, status: status}

	if i := c.deviceIndex(deviceID); i >= 0 {
		c.raw.Devices[i].Status = status
	}
	c.publish()

	ctx := c.ctx
	go func() {
		d, err := c.port.SetDeviceStatus(ctx, deviceID, status)
		if !c.post(func() { c.finishStatus(key, token, d, err, result) }) {
			result <- statusResult{err: ErrNotStarted}
		}
	}()
}

func (c *Coordinator) finishStatus(key cmdKey, token uint64, d model.Device, err error, result chan<- statusResult) {
	latest := c.isLatest(key, token)
	if latest {
		delete(c.cmds, key)
	}

	if err == nil {
		// Results older than the last confirmation are ignored, and a
		// newer pending command keeps its optimistic value on screen.
		if token > c.confirmTok[key] {
			c.confirmTok[key] = token
			c.confirmed[key.device] = d.Clone()
			if _, pending := c.cmds[key]; !pending {
				if i := c.deviceIndex(key.device); i >= 0 {
					c.raw.Devices[i] = d.Clone()
					c.overlay(&c.raw.Devices[i])
				}
			}
		}
		log.Info().Str("device_id", key.device).Str("status", string(d.Status)).Msg("Device status confirmed")
	} else {
		if latest {
			c.rollback(key)
		}
		kind := state.NoticeCommandFailed
		if errors.Is(err, port.ErrNotFound) {
			kind = state.NoticeNotFound
		}
		log.Warn().Err(err).Str("device_id", key.device).Msg("Device status command failed")
		c.notify(kind, key.device, fmt.Sprintf("Failed to update status of %s: %v", key.device, err))
	}

	c.publish()
	result <- statusResult{device: d, err: err}
}

func (c *Coordinator) startFan(deviceID string, percent int, result chan<- bool) {
	key := cmdKey{deviceID, fieldFan}
	c.nextToken++
	token := c.nextToken
	c.cmds[key] = pendingCmd{token: token, fan: percent}

	if i := c.deviceIndex(deviceID); i >= 0 {
		v := percent
		c.raw.Devices[i].FanSpeed = &v
	}
	c.publish()

	ctx := c.ctx
	go func() {
		ok := c.port.SetFanSpeed(ctx, deviceID, percent)
		if !c.post(func() { c.finishFan(key, token, percent, ok, result) }) {
			result <- false
		}
	}()
}

func (c *Coordinator) finishFan(key cmdKey, token uint64, percent int, ok bool, result chan<- bool) {
	latest := c.isLatest(key, token)
	if latest {
		delete(c.cmds, key)
	}

	if ok {
		if token > c.confirmTok[key] {
			c.confirmTok[key] = token
			if conf, found := c.confirmed[key.device]; found {
				v := percent
				conf.FanSpeed = &v
				c.confirmed[key.device] = conf
			}
			if _, pending := c.cmds[key]; !pending {
				if i := c.deviceIndex(key.device); i >= 0 {
					v := percent
					c.raw.Devices[i].FanSpeed = &v
				}
			}
		}
		log.Info().Str("device_id", key.device).Int("percent", percent).Msg("Fan speed confirmed")
	} else {
		if latest {
			c.rollback(key)
		}
		log.Warn().Str("device_id", key.device).Int("percent", percent).Msg("Fan speed command failed")
		c.notify(state.NoticeCommandFailed, key.device, fmt.Sprintf("Failed to set fan speed of %s to %d%%", key.device, percent))
	}

	c.publish()
	result <- ok
}

func (c *Coordinator) isLatest(key cmdKey, token uint64) bool {
	cmd, ok := c.cmds[key]
	return ok && cmd.token == token
}

// rollback restores one field of a device to its last confirmed value.
func (c *Coordinator) rollback(key cmdKey) {
	i := c.deviceIndex(key.device)
	if i < 0 {
		return
	}
	conf, ok := c.confirmed[key.device]
	if !ok {
		return
	}
	switch key.field {
	case fieldStatus:
		c.raw.Devices[i].Status = conf.Status
	case fieldFan:
		if conf.FanSpeed == nil {
			c.raw.Devices[i].FanSpeed = nil
		} else {
			v := *conf.FanSpeed
			c.raw.Devices[i].FanSpeed = &v
		}
	}
	log.Debug().Str("device_id", key.device).Str("field", key.field).Msg("Rolled back optimistic update")
}
