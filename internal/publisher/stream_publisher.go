// Package publisher 把总线事件输出到 Redis：读数/报警写入 Streams，设备最近状态写入缓存。
package publisher

import (
	"context"
	"fmt"
	"time"

	"github.com/Bonjomondo/Health-Check-App/internal/bus"
	rediscommon "github.com/Bonjomondo/Health-Check-App/internal/common/redis"
	"github.com/Bonjomondo/Health-Check-App/internal/models"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// StreamConfig Streams 配置
type StreamConfig struct {
	DataStream  string // 读数、电量、连接事件
	AlertStream string // 报警事件
	MaxLen      int64  // 近似裁剪长度，0 = 不裁剪
	Timeout     time.Duration
}

// StreamMessage 写入 data 字段的消息体
type StreamMessage struct {
	Source    string             `json:"source"`
	Target    string             `json:"target,omitempty"`
	Reason    string             `json:"reason,omitempty"`
	Reading   *models.Reading    `json:"reading,omitempty"`
	Battery   *int               `json:"battery,omitempty"`
	Alert     *models.AlertEvent `json:"alert,omitempty"`
	Timestamp time.Time          `json:"timestamp"`
}

// StreamPublisher Redis Streams 输出
type StreamPublisher struct {
	client   *redis.Client
	config   StreamConfig
	registry *bus.Registry
	cache    *StateCache // 可为 nil
	logger   *zap.Logger
}

// NewStreamPublisher 创建 Streams 输出
func NewStreamPublisher(
	client *redis.Client,
	cfg StreamConfig,
	registry *bus.Registry,
	cache *StateCache,
	logger *zap.Logger,
) *StreamPublisher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Second
	}
	return &StreamPublisher{
		client:   client,
		config:   cfg,
		registry: registry,
		cache:    cache,
		logger:   logger,
	}
}

// Run 消费订阅直到 ctx 取消或订阅关闭；单条失败只记录日志
func (p *StreamPublisher) Run(ctx context.Context, sub *bus.Subscription) {
	defer sub.Close()

	p.logger.Info("Stream publisher started",
		zap.String("data_stream", p.config.DataStream),
		zap.String("alert_stream", p.config.AlertStream),
	)
	for {
		select {
		case <-ctx.Done():
			// 输出已经缓冲的事件（例如停止时的断开事件）
			p.drain(sub)
			p.logger.Info("Stream publisher stopped")
			return
		case ev, ok := <-sub.Events():
			if !ok {
				p.logger.Info("Stream publisher stopped")
				return
			}
			p.handleLogged(ctx, ev)
		}
	}
}

func (p *StreamPublisher) drain(sub *bus.Subscription) {
	for {
		select {
		case ev, ok := <-sub.Events():
			if !ok {
				return
			}
			p.handleLogged(context.Background(), ev)
		default:
			return
		}
	}
}

func (p *StreamPublisher) handleLogged(ctx context.Context, ev bus.Event) {
	if err := p.Handle(ctx, ev); err != nil {
		// 记录错误，但不中断处理
		p.logger.Error("Failed to publish event",
			zap.String("event_type", string(ev.Type)),
			zap.String("source", ev.Source),
			zap.Error(err),
		)
	}
}

// Handle 输出单个事件
func (p *StreamPublisher) Handle(ctx context.Context, ev bus.Event) error {
	ctx, cancel := context.WithTimeout(ctx, p.config.Timeout)
	defer cancel()

	msg := StreamMessage{
		Source:    ev.Source,
		Target:    ev.Target,
		Reason:    ev.Reason,
		Timestamp: ev.Timestamp,
	}
	stream := p.config.DataStream

	switch ev.Type {
	case bus.EventReading:
		reading := ev.Reading
		msg.Reading = &reading
	case bus.EventBatteryUpdate:
		battery := ev.Battery
		msg.Battery = &battery
	case bus.EventAlert:
		alert := ev.Alert
		msg.Alert = &alert
		stream = p.config.AlertStream
	case bus.EventConnected, bus.EventDisconnected, bus.EventConnectionFailed:
	default:
		return fmt.Errorf("unknown event type %q", ev.Type)
	}

	streamID, err := rediscommon.PublishJSONToStream(ctx, p.client, stream, p.config.MaxLen, string(ev.Type), msg)
	if err != nil {
		return fmt.Errorf("failed to publish to stream %s: %w", stream, err)
	}

	p.logger.Debug("Published event to Redis Streams",
		zap.String("event_type", string(ev.Type)),
		zap.String("stream", stream),
		zap.String("stream_id", streamID),
	)

	if p.cache != nil && ev.Type != bus.EventAlert {
		state, ok := p.registry.Snapshot(ev.Source)
		if ok {
			if err := p.cache.Store(ctx, state); err != nil {
				return err
			}
		}
	}
	return nil
}
