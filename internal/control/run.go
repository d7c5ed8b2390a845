package control

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/banshee-data/crowd-drive/internal/world"
)

// WaitForPose blocks until the sensor reports a pose no older than one
// control period, trying PoseRetryAttempts times PoseRetryInterval apart.
// It returns an error wrapping ErrSensorUnavailable when the budget runs
// out, or ctx.Err() if ctx ends first.
func (c *Controller) WaitForPose(ctx context.Context) error {
	var last error
	for attempt := 1; attempt <= c.cfg.PoseRetryAttempts; attempt++ {
		last = c.refresh()
		if last == nil {
			c.log.Info("first pose received",
				zap.Int("attempt", attempt),
				zap.Float64("x", c.state.Pos.X),
				zap.Float64("y", c.state.Pos.Y))
			return nil
		}
		c.log.Debug("waiting for pose", zap.Int("attempt", attempt), zap.Error(last))
		if attempt == c.cfg.PoseRetryAttempts {
			break
		}
		if err := c.clock.Sleep(ctx, c.cfg.PoseRetryInterval); err != nil {
			return err
		}
	}
	err := fmt.Errorf("no fresh pose after %d attempts: %w", c.cfg.PoseRetryAttempts, last)
	if !errors.Is(err, ErrSensorUnavailable) {
		err = fmt.Errorf("%w: %w", ErrSensorUnavailable, err)
	}
	return err
}

// Run waits for the first pose and then steps once per control period
// until the mission completes (nil), the path is lost (ErrPathLost), the
// pose goes stale or unavailable, or ctx ends (ctx.Err()). A zero-speed
// command is published on every exit after startup.
func (c *Controller) Run(ctx context.Context) error {
	if err := c.WaitForPose(ctx); err != nil {
		c.log.Error("startup failed", zap.Error(err))
		if ctx.Err() == nil {
			c.stop()
		}
		return err
	}

	t := c.clock.NewTicker(c.cfg.Period())
	defer t.Stop()

	c.log.Info("control loop started",
		zap.Duration("period", c.cfg.Period()),
		zap.String("vehicle_model", c.cfg.Model.String()))
	for {
		select {
		case <-ctx.Done():
			c.stop()
			return ctx.Err()
		case <-t.C():
			res, err := c.Step()
			if err != nil {
				c.stop()
				return err
			}
			if res.Completed {
				c.stop()
				return nil
			}
		}
	}
}

// Vehicle returns the last sensed vehicle state. Tick goroutine only.
func (c *Controller) Vehicle() world.VehicleState { return c.state }
