package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/Bonjomondo/Health-Check-App/internal/common/config"

	"github.com/go-redis/redis/v8"
)

// Client Redis客户端类型别名
type Client = redis.Client

// defaultPingTimeout 调用方 ctx 没有截止时间时的 Ping 超时
const defaultPingTimeout = 3 * time.Second

// NewRedisClient 创建Redis客户端
// 服务只有一个发布协程和少量 CLI 读取，PoolSize/DialTimeout 为 0 时沿用 go-redis 默认值。
func NewRedisClient(cfg *config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:        cfg.Addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		PoolSize:    cfg.PoolSize,
		DialTimeout: cfg.DialTimeout,
	})
}

// Ping 测试Redis连接；错误信息带上地址
func Ping(ctx context.Context, client *redis.Client) error {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, defaultPingTimeout)
		defer cancel()
	}
	if err := client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis %s: %w", client.Options().Addr, err)
	}
	return nil
}
