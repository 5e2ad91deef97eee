package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Bonjomondo/Health-Check-App/internal/bus"

	"go.uber.org/zap"
)

// StateCache 设备最近状态缓存（键：<prefix><source>）
// 值为注册表快照的 JSON，供其他进程读取最近一次读数、电量与连接状态。
type StateCache struct {
	kv     KVStore
	prefix string
	ttl    time.Duration
	logger *zap.Logger
}

// NewStateCache 创建状态缓存
func NewStateCache(kv KVStore, prefix string, ttl time.Duration, logger *zap.Logger) *StateCache {
	return &StateCache{
		kv:     kv,
		prefix: prefix,
		ttl:    ttl,
		logger: logger,
	}
}

// Key 缓存键
func (c *StateCache) Key(source string) string {
	return c.prefix + source
}

// Store 写入设备状态
func (c *StateCache) Store(ctx context.Context, state bus.DeviceState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal device state: %w", err)
	}

	key := c.Key(state.Source)
	if err := c.kv.Set(ctx, key, string(data), c.ttl); err != nil {
		return fmt.Errorf("failed to set cache: %w", err)
	}

	c.logger.Debug("Updated device state cache",
		zap.String("source", state.Source),
		zap.String("key", key),
	)
	return nil
}

// Load 读取设备状态；不存在时返回 ErrCacheMiss
func (c *StateCache) Load(ctx context.Context, source string) (bus.DeviceState, error) {
	val, err := c.kv.Get(ctx, c.Key(source))
	if err != nil {
		return bus.DeviceState{}, err
	}

	var state bus.DeviceState
	if err := json.Unmarshal([]byte(val), &state); err != nil {
		return bus.DeviceState{}, fmt.Errorf("failed to unmarshal device state: %w", err)
	}
	return state, nil
}
