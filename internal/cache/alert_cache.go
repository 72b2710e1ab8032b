package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/OmkarPadhy/AQI-Dashboard/internal/data"
)

// AlertCache mirrors the alert log into Redis so a restarted gateway, or a second
// dashboard instance, sees the same recent alerts.
type AlertCache struct {
	redisClient *redis.Client
	key         string
	ttl         time.Duration
	logger      *zap.Logger
}

func NewAlertCache(redisClient *redis.Client, key string, ttl time.Duration, logger *zap.Logger) *AlertCache {
	return &AlertCache{
		redisClient: redisClient,
		key:         key,
		ttl:         ttl,
		logger:      logger,
	}
}

// Save overwrites the cached snapshot.
func (c *AlertCache) Save(ctx context.Context, alerts []data.Alert) error {
	jsonData, err := json.Marshal(alerts)
	if err != nil {
		return fmt.Errorf("failed to marshal alerts: %w", err)
	}
	if err := c.redisClient.Set(ctx, c.key, jsonData, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set alert cache: %w", err)
	}

	c.logger.Debug("Updated alert cache",
		zap.String("key", c.key),
		zap.Int("alert_count", len(alerts)),
	)
	return nil
}

// Load returns the cached snapshot, or an empty slice when nothing is cached.
func (c *AlertCache) Load(ctx context.Context) ([]data.Alert, error) {
	val, err := c.redisClient.Get(ctx, c.key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return []data.Alert{}, nil
		}
		return nil, fmt.Errorf("failed to get alert cache: %w", err)
	}

	var alerts []data.Alert
	if err := json.Unmarshal([]byte(val), &alerts); err != nil {
		return nil, fmt.Errorf("failed to unmarshal alerts: %w", err)
	}
	return alerts, nil
}

// Clear drops the cached snapshot.
func (c *AlertCache) Clear(ctx context.Context) error {
	if err := c.redisClient.Del(ctx, c.key).Err(); err != nil {
		return fmt.Errorf("failed to delete alert cache: %w", err)
	}
	return nil
}
