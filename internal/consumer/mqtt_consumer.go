package consumer

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Bonjomondo/Health-Check-App/internal/bus"
	"github.com/Bonjomondo/Health-Check-App/internal/codec"
	commonconfig "github.com/Bonjomondo/Health-Check-App/internal/common/config"
	mqttcommon "github.com/Bonjomondo/Health-Check-App/internal/common/mqtt"
	"github.com/Bonjomondo/Health-Check-App/internal/config"
	"github.com/Bonjomondo/Health-Check-App/internal/metrics"
	"github.com/Bonjomondo/Health-Check-App/internal/models"
	"github.com/Bonjomondo/Health-Check-App/internal/session"

	"go.uber.org/zap"
)

// SourceMQTT 云端 MQTT 链路的数据来源名
const SourceMQTT = "mqtt"

// commandQoS 下行命令至少送达一次，不保留
const commandQoS byte = 1

// Client MQTT 客户端（*mqttcommon.Client 满足该接口）
type Client interface {
	Subscribe(topic string, qos byte, handler mqttcommon.MessageHandler) error
	Publish(topic string, qos byte, retained bool, payload []byte) error
	Unsubscribe(topics ...string) error
	IsConnected() bool
	Disconnect()
}

// DialFunc 创建并连接 MQTT 客户端
type DialFunc func(cfg *commonconfig.MQTTConfig, handlers mqttcommon.ConnectionHandlers) (Client, error)

// NewDialFunc 使用 paho 客户端的 DialFunc
func NewDialFunc(logger *zap.Logger) DialFunc {
	return func(cfg *commonconfig.MQTTConfig, handlers mqttcommon.ConnectionHandlers) (Client, error) {
		return mqttcommon.NewClient(cfg, logger, handlers)
	}
}

// MQTTConsumer MQTT 消息消费者
// 订阅读数与设备状态主题，用与串口链路相同的解码器解析，结果发布到事件总线。
type MQTTConsumer struct {
	config  *config.Config
	dial    DialFunc
	bus     *bus.Bus
	decoder *codec.Decoder
	metrics *metrics.Metrics
	logger  *zap.Logger
	now     func() time.Time

	mu        sync.Mutex
	client    Client
	connected bool
}

// NewMQTTConsumer 创建MQTT消费者
func NewMQTTConsumer(
	cfg *config.Config,
	dial DialFunc,
	b *bus.Bus,
	m *metrics.Metrics,
	logger *zap.Logger,
) *MQTTConsumer {
	return &MQTTConsumer{
		config:  cfg,
		dial:    dial,
		bus:     b,
		decoder: codec.NewDecoder(time.Now),
		metrics: m,
		logger:  logger,
		now:     time.Now,
	}
}

// Start 连接 broker 并订阅主题
func (c *MQTTConsumer) Start(ctx context.Context) error {
	broker := c.config.MQTT.Broker
	c.bus.SetState(SourceMQTT, broker, models.Connecting())
	c.metrics.ObserveTransition(SourceMQTT, models.StateConnecting.String())

	client, err := c.dial(&c.config.MQTT, mqttcommon.ConnectionHandlers{
		OnConnect:        c.onConnect,
		OnConnectionLost: c.onConnectionLost,
	})
	if err != nil {
		c.logger.Error("Failed to connect to MQTT broker",
			zap.String("broker", broker),
			zap.Error(err),
		)
		c.metrics.ObserveTransition(SourceMQTT, models.StateFailed.String())
		c.bus.PublishConnectionFailed(SourceMQTT, broker, err.Error())
		return fmt.Errorf("failed to connect to MQTT: %w", err)
	}

	c.mu.Lock()
	c.client = client
	c.mu.Unlock()

	if err := c.subscribe(client); err != nil {
		client.Disconnect()
		c.mu.Lock()
		c.client = nil
		c.mu.Unlock()
		c.markDisconnected()
		return err
	}
	c.markConnected()

	c.logger.Info("MQTT consumer started",
		zap.String("data_topic", c.config.Topics.Data),
		zap.String("status_topic", c.config.Topics.Status),
	)
	return nil
}

// Stop 取消订阅并断开连接
func (c *MQTTConsumer) Stop(ctx context.Context) error {
	c.mu.Lock()
	client := c.client
	c.client = nil
	c.mu.Unlock()

	if client == nil {
		return nil
	}

	if err := client.Unsubscribe(c.config.Topics.Data, c.config.Topics.Status); err != nil {
		c.logger.Error("Failed to unsubscribe", zap.Error(err))
	}
	client.Disconnect()
	c.markDisconnected()

	c.logger.Info("MQTT consumer stopped")
	return nil
}

// Send 向设备发送命令（发布到命令主题，QoS 1，不保留）
func (c *MQTTConsumer) Send(name string) error {
	c.mu.Lock()
	client := c.client
	connected := c.connected
	c.mu.Unlock()

	if client == nil || !connected || !client.IsConnected() {
		c.logger.Warn("Cannot send command: MQTT not connected", zap.String("command", name))
		c.metrics.ObserveCommand(SourceMQTT, name, session.ErrNotConnected)
		return session.ErrNotConnected
	}

	payload, err := codec.EncodeCommand(models.NewCommand(name, c.now()))
	if err != nil {
		return err
	}
	payload = bytes.TrimRight(payload, "\n")

	err = client.Publish(c.config.Topics.Command, commandQoS, false, payload)
	c.metrics.ObserveCommand(SourceMQTT, name, err)
	if err != nil {
		c.logger.Warn("Failed to publish command",
			zap.String("command", name),
			zap.String("topic", c.config.Topics.Command),
			zap.Error(err),
		)
		return err
	}

	c.logger.Debug("Command published",
		zap.String("command", name),
		zap.String("topic", c.config.Topics.Command),
	)
	return nil
}

func (c *MQTTConsumer) subscribe(client Client) error {
	qos := c.config.MQTT.QoS
	if err := client.Subscribe(c.config.Topics.Data, qos, c.handleData); err != nil {
		return fmt.Errorf("failed to subscribe to data topic: %w", err)
	}
	if err := client.Subscribe(c.config.Topics.Status, qos, c.handleStatus); err != nil {
		return fmt.Errorf("failed to subscribe to status topic: %w", err)
	}
	return nil
}

// onConnect 重连后重新订阅（clean session 不保留订阅）
func (c *MQTTConsumer) onConnect() {
	c.mu.Lock()
	client := c.client
	c.mu.Unlock()

	if client != nil {
		if err := c.subscribe(client); err != nil {
			c.logger.Error("Failed to resubscribe after reconnect", zap.Error(err))
			return
		}
		c.markConnected()
	}
}

func (c *MQTTConsumer) onConnectionLost(err error) {
	c.markDisconnected()
}

func (c *MQTTConsumer) markConnected() {
	c.mu.Lock()
	if c.connected {
		c.mu.Unlock()
		return
	}
	c.connected = true
	c.mu.Unlock()

	c.metrics.ObserveTransition(SourceMQTT, models.StateConnected.String())
	c.bus.PublishConnected(SourceMQTT, c.config.MQTT.Broker)
}

func (c *MQTTConsumer) markDisconnected() {
	c.mu.Lock()
	if !c.connected {
		c.mu.Unlock()
		return
	}
	c.connected = false
	c.mu.Unlock()

	c.metrics.ObserveTransition(SourceMQTT, models.StateDisconnected.String())
	c.bus.PublishDisconnected(SourceMQTT, c.config.MQTT.Broker)
}

// handleData 处理读数消息（每条消息一个 JSON 对象）
func (c *MQTTConsumer) handleData(topic string, payload []byte) error {
	c.logger.Debug("Received MQTT message",
		zap.String("topic", topic),
		zap.Int("payload_size", len(payload)),
	)
	c.metrics.AddBytes(SourceMQTT, len(payload))

	res := c.decoder.Decode(payload)
	return c.dispatch(topic, res)
}

// handleStatus 处理设备状态消息（电量）
func (c *MQTTConsumer) handleStatus(topic string, payload []byte) error {
	c.metrics.AddBytes(SourceMQTT, len(payload))

	res := c.decoder.DecodeStatus(payload)
	return c.dispatch(topic, res)
}

func (c *MQTTConsumer) dispatch(topic string, res codec.DecodeResult) error {
	c.metrics.ObserveFrame(SourceMQTT, res.Kind.String())

	switch res.Kind {
	case codec.KindReading:
		c.bus.PublishReading(SourceMQTT, res.Reading)
	case codec.KindBatteryUpdate:
		c.bus.PublishBattery(SourceMQTT, res.Battery)
	default:
		return fmt.Errorf("malformed payload on %s: %s", topic, res.Reason)
	}
	return nil
}
