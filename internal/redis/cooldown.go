package redis

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// AlertCooldown suppresses repeat alerts for the same condition within a
// window. The first caller to claim a key wins; later claims fail until the
// key expires.
type AlertCooldown struct {
	client *Client
	logger *zap.Logger
	window time.Duration
}

func NewAlertCooldown(client *Client, logger *zap.Logger, window time.Duration) *AlertCooldown {
	return &AlertCooldown{
		client: client,
		logger: logger,
		window: window,
	}
}

// SensorKey identifies an out-of-range condition on one sensor
func SensorKey(moduleID, sensorID int64, violation string) string {
	return fmt.Sprintf("sensor:%d:%d:%s", moduleID, sensorID, violation)
}

// PowerKey identifies a power event kind on one module
func PowerKey(moduleID int64, eventType string) string {
	return fmt.Sprintf("power:%d:%s", moduleID, eventType)
}

// Acquire claims key for the cooldown window. It returns false when an alert
// for the same key was already sent inside the window.
func (c *AlertCooldown) Acquire(ctx context.Context, key string) (bool, error) {
	if c.window <= 0 {
		return true, nil
	}

	set, err := c.client.rdb.SetNX(ctx, "cooldown:"+key, time.Now().Unix(), c.window).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx failed: %w", err)
	}

	if !set {
		c.logger.Debug("alert suppressed by cooldown", zap.String("key", key))
	}
	return set, nil
}

// Release clears a claim, used when nothing was actually delivered
func (c *AlertCooldown) Release(ctx context.Context, key string) error {
	if err := c.client.rdb.Del(ctx, "cooldown:"+key).Err(); err != nil {
		return fmt.Errorf("redis del failed: %w", err)
	}
	return nil
}
