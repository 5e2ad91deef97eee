package service

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/Bonjomondo/Health-Check-App/internal/bus"
	"github.com/Bonjomondo/Health-Check-App/internal/codec"
	commonconfig "github.com/Bonjomondo/Health-Check-App/internal/common/config"
	mqttcommon "github.com/Bonjomondo/Health-Check-App/internal/common/mqtt"
	"github.com/Bonjomondo/Health-Check-App/internal/config"
	"github.com/Bonjomondo/Health-Check-App/internal/consumer"
	"github.com/Bonjomondo/Health-Check-App/internal/models"
	"github.com/Bonjomondo/Health-Check-App/internal/session"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// deviceSim 模拟手环：记录收到的命令，并可写入遥测数据
type deviceSim struct {
	conn     net.Conn
	commands chan string
}

type simDialer struct {
	devices chan *deviceSim
}

func newSimDialer() *simDialer {
	return &simDialer{devices: make(chan *deviceSim, 2)}
}

func (d *simDialer) Dial(ctx context.Context, target string) (io.ReadWriteCloser, error) {
	app, dev := net.Pipe()
	sim := &deviceSim{conn: dev, commands: make(chan string, 16)}
	go func() {
		reader := bufio.NewReader(dev)
		for {
			line, err := reader.ReadBytes('\n')
			if err != nil {
				return
			}
			cmd, err := codec.DecodeCommand(line)
			if err == nil {
				sim.commands <- cmd.Name
			}
		}
	}()
	d.devices <- sim
	return app, nil
}

func (d *simDialer) device(t *testing.T) *deviceSim {
	t.Helper()
	select {
	case sim := <-d.devices:
		return sim
	case <-time.After(time.Second):
		t.Fatal("device was not dialed")
		return nil
	}
}

func (s *deviceSim) expectCommand(t *testing.T, want string) {
	t.Helper()
	select {
	case got := <-s.commands:
		assert.Equal(t, want, got)
	case <-time.After(2 * time.Second):
		t.Fatalf("device did not receive %s", want)
	}
}

func baseConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Link.Mode = config.LinkSerial
	cfg.Serial = commonconfig.SerialConfig{Port: "/dev/rfcomm0", BaudRate: 115200}
	cfg.MQTT = commonconfig.MQTTConfig{Broker: "tcp://broker:1883", ClientID: "test", QoS: 1}
	cfg.Topics.Data = "sensor/data"
	cfg.Topics.Status = "device/status"
	cfg.Topics.Command = "device/command"
	cfg.Publisher.DataStream = "wearable:data:stream"
	cfg.Publisher.AlertStream = "wearable:alert:stream"
	cfg.Publisher.StateKeyPrefix = "wearable:device:"
	cfg.Publisher.StateTTL = time.Hour
	cfg.Thresholds.HeartRateMax = models.DefaultHeartRateMax
	cfg.Thresholds.TemperatureMax = models.DefaultTemperatureMax
	cfg.Thresholds.VibrationEnabled = true
	return cfg
}

func TestHealthService_EndToEnd(t *testing.T) {
	mr := miniredis.RunT(t)
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS wearable_alert_logs`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`INSERT INTO wearable_alert_logs`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	cfg := baseConfig()
	cfg.Redis.Addr = mr.Addr()
	cfg.Publisher.Enabled = true
	cfg.AlertLog.Enabled = true

	dialer := newSimDialer()
	svc, err := NewHealthService(cfg, zap.NewNop(), WithDialer(dialer), WithDB(db))
	require.NoError(t, err)

	sub := svc.Bus().Subscribe("test", 32)
	ctx := context.Background()
	require.NoError(t, svc.Start(ctx))

	device := dialer.device(t)
	device.expectCommand(t, models.CommandStartMeasure)
	assert.Equal(t, bus.EventConnected, receiveEvent(t, sub).Type)
	assert.Equal(t, models.StateConnected, svc.Session().State().Kind)

	go func() {
		_, _ = device.conn.Write([]byte(`{"heartRate":120,"bloodOxygen":97,"bodyTemperature":36.5,"battery":70}`))
	}()

	alert := receiveEvent(t, sub)
	require.Equal(t, bus.EventAlert, alert.Type)
	assert.Equal(t, models.AlertHighHeartRate, alert.Alert.Kind)
	assert.Equal(t, session.SourceSerial, alert.Alert.Source)

	reading := receiveEvent(t, sub)
	require.Equal(t, bus.EventReading, reading.Type)
	assert.Equal(t, 120, reading.Reading.HeartRate)

	device.expectCommand(t, models.CommandAlarmHeartRate)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	require.Eventually(t, func() bool {
		alerts, _ := client.XLen(ctx, "wearable:alert:stream").Result()
		data, _ := client.XLen(ctx, "wearable:data:stream").Result()
		return alerts == 1 && data >= 2
	}, 2*time.Second, 10*time.Millisecond)
	assert.True(t, mr.Exists("wearable:device:serial"))

	require.Eventually(t, func() bool {
		return mock.ExpectationsWereMet() == nil
	}, 2*time.Second, 10*time.Millisecond)

	stopCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	require.NoError(t, svc.Stop(stopCtx))
	assert.Equal(t, models.StateDisconnected, svc.Session().State().Kind)
}

func TestHealthService_StartFailsWhenDeviceUnavailable(t *testing.T) {
	cfg := baseConfig()
	dialer := session.DialerFunc(func(ctx context.Context, target string) (io.ReadWriteCloser, error) {
		return nil, errors.New("no such file or directory")
	})

	svc, err := NewHealthService(cfg, zap.NewNop(), WithDialer(dialer))
	require.NoError(t, err)

	err = svc.Start(context.Background())
	require.Error(t, err)
	var terr *session.TransportError
	assert.True(t, errors.As(err, &terr))

	st, _ := svc.Bus().Registry().Snapshot(session.SourceSerial)
	assert.Equal(t, models.StateFailed, st.State.Kind)

	require.NoError(t, svc.Stop(context.Background()))
}

func TestHealthService_RedisUnavailable(t *testing.T) {
	cfg := baseConfig()
	cfg.Publisher.Enabled = true
	cfg.Redis.Addr = "127.0.0.1:1"

	_, err := NewHealthService(cfg, zap.NewNop(), WithDialer(newSimDialer()))
	assert.Error(t, err)
}

// stubMQTTClient 最小 MQTT 客户端
type stubMQTTClient struct {
	mu        sync.Mutex
	handlers  map[string]mqttcommon.MessageHandler
	published []string
}

func (c *stubMQTTClient) Subscribe(topic string, qos byte, handler mqttcommon.MessageHandler) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[topic] = handler
	return nil
}

func (c *stubMQTTClient) Publish(topic string, qos byte, retained bool, payload []byte) error {
	cmd, err := codec.DecodeCommand(payload)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.published = append(c.published, cmd.Name)
	return nil
}

func (c *stubMQTTClient) Unsubscribe(topics ...string) error { return nil }
func (c *stubMQTTClient) IsConnected() bool                  { return true }
func (c *stubMQTTClient) Disconnect()                        {}

func (c *stubMQTTClient) deliver(topic, payload string) error {
	c.mu.Lock()
	handler := c.handlers[topic]
	c.mu.Unlock()
	return handler(topic, []byte(payload))
}

func (c *stubMQTTClient) commands() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.published...)
}

func TestHealthService_MQTTLink(t *testing.T) {
	cfg := baseConfig()
	cfg.Link.Mode = config.LinkMQTT

	client := &stubMQTTClient{handlers: make(map[string]mqttcommon.MessageHandler)}
	dial := consumer.DialFunc(func(*commonconfig.MQTTConfig, mqttcommon.ConnectionHandlers) (consumer.Client, error) {
		return client, nil
	})

	svc, err := NewHealthService(cfg, zap.NewNop(), WithMQTTDial(dial))
	require.NoError(t, err)
	assert.Nil(t, svc.Session())

	sub := svc.Bus().Subscribe("test", 16)
	require.NoError(t, svc.Start(context.Background()))
	assert.Equal(t, bus.EventConnected, receiveEvent(t, sub).Type)
	assert.Equal(t, []string{models.CommandStartMeasure}, client.commands())

	require.NoError(t, client.deliver("sensor/data", `{"motionStatus":"FALL","steps":10}`))

	alert := receiveEvent(t, sub)
	require.Equal(t, bus.EventAlert, alert.Type)
	assert.Equal(t, models.AlertFall, alert.Alert.Kind)
	assert.Equal(t, consumer.SourceMQTT, alert.Alert.Source)
	assert.Equal(t, bus.EventReading, receiveEvent(t, sub).Type)
	assert.Equal(t, []string{models.CommandStartMeasure, models.CommandAlarmFall}, client.commands())

	require.NoError(t, svc.Stop(context.Background()))
}
