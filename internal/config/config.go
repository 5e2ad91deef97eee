package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/Bonjomondo/Health-Check-App/internal/common/config"
	"github.com/Bonjomondo/Health-Check-App/internal/models"
)

// 链路模式
const (
	LinkSerial = "serial"
	LinkMQTT   = "mqtt"
	LinkBoth   = "both"
)

// Config 健康监测服务配置
type Config struct {
	Database config.DatabaseConfig
	Redis    config.RedisConfig
	MQTT     config.MQTTConfig
	Serial   config.SerialConfig

	// 数据链路：serial（蓝牙串口）/ mqtt（云端）/ both
	Link struct {
		Mode string
	}

	// MQTT 主题
	Topics struct {
		Data    string // 读数，如 "sensor/data"
		Status  string // 设备状态（电量），如 "device/status"
		Command string // 下行命令，如 "device/command"
	}

	// Redis 输出
	Publisher struct {
		Enabled        bool
		DataStream     string // 读数/电量/连接事件
		AlertStream    string // 报警事件
		StateKeyPrefix string // 设备最近状态缓存键前缀
		StateTTL       time.Duration
		StreamMaxLen   int64
	}

	// 报警历史（PostgreSQL）
	AlertLog struct {
		Enabled bool
	}

	// 阈值设置
	Thresholds struct {
		File              string // 可选 yaml 文件，修改后自动重新加载
		HeartRateMax      int
		TemperatureMax    float64
		VibrationEnabled  bool
		SedentaryReminder bool
	}

	Metrics struct {
		Addr string // 为空时不启动 /metrics
	}

	Log struct {
		Level  string
		Format string
		File   string
	}
}

// Load 加载配置
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.Database.Host = getEnv("DB_HOST", "localhost")
	cfg.Database.Port = 5432
	cfg.Database.User = getEnv("DB_USER", "postgres")
	cfg.Database.Password = getEnv("DB_PASSWORD", "postgres")
	cfg.Database.Database = getEnv("DB_NAME", "health")
	cfg.Database.SSLMode = getEnv("DB_SSLMODE", "disable")
	cfg.Database.MaxConns = 4
	cfg.Database.MaxIdle = 2
	cfg.Database.ConnMaxLifetime = 30 * time.Minute
	cfg.Database.ConnectTimeout = 5 * time.Second
	cfg.Database.ApplicationName = "health-check-app"
	cfg.Database.LoadFromEnv("DB")

	cfg.Redis.Addr = getEnv("REDIS_ADDR", "localhost:6379")
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", "")
	cfg.Redis.DB = 0
	cfg.Redis.PoolSize = 4
	cfg.Redis.DialTimeout = 3 * time.Second
	cfg.Redis.LoadFromEnv("REDIS")

	cfg.MQTT.Broker = getEnv("MQTT_BROKER", "tcp://localhost:1883")
	cfg.MQTT.ClientID = getEnv("MQTT_CLIENT_ID", "health-check-app")
	cfg.MQTT.Username = getEnv("MQTT_USERNAME", "")
	cfg.MQTT.Password = getEnv("MQTT_PASSWORD", "")
	cfg.MQTT.QoS = 1
	cfg.MQTT.LoadFromEnv("MQTT")

	cfg.Serial.Port = "/dev/rfcomm0"
	cfg.Serial.BaudRate = 115200
	cfg.Serial.ReadTimeout = 0
	cfg.Serial.LoadFromEnv("SERIAL")

	cfg.Link.Mode = getEnv("LINK_MODE", LinkSerial)

	cfg.Topics.Data = getEnv("MQTT_TOPIC_DATA", "sensor/data")
	cfg.Topics.Status = getEnv("MQTT_TOPIC_STATUS", "device/status")
	cfg.Topics.Command = getEnv("MQTT_TOPIC_COMMAND", "device/command")

	var err error
	if cfg.Publisher.Enabled, err = getEnvBool("REDIS_ENABLED", false); err != nil {
		return nil, err
	}
	cfg.Publisher.DataStream = getEnv("REDIS_DATA_STREAM", "wearable:data:stream")
	cfg.Publisher.AlertStream = getEnv("REDIS_ALERT_STREAM", "wearable:alert:stream")
	cfg.Publisher.StateKeyPrefix = getEnv("REDIS_STATE_PREFIX", "wearable:device:")
	if cfg.Publisher.StateTTL, err = getEnvDuration("REDIS_STATE_TTL", 24*time.Hour); err != nil {
		return nil, err
	}
	maxLen, err := getEnvInt("REDIS_STREAM_MAXLEN", 10000)
	if err != nil {
		return nil, err
	}
	cfg.Publisher.StreamMaxLen = int64(maxLen)

	if cfg.AlertLog.Enabled, err = getEnvBool("DB_ENABLED", false); err != nil {
		return nil, err
	}

	cfg.Thresholds.File = getEnv("THRESHOLDS_FILE", "")
	if cfg.Thresholds.HeartRateMax, err = getEnvInt("HEART_RATE_MAX", models.DefaultHeartRateMax); err != nil {
		return nil, err
	}
	if cfg.Thresholds.TemperatureMax, err = getEnvFloat("TEMPERATURE_MAX", models.DefaultTemperatureMax); err != nil {
		return nil, err
	}
	if cfg.Thresholds.VibrationEnabled, err = getEnvBool("VIBRATION_ENABLED", true); err != nil {
		return nil, err
	}
	if cfg.Thresholds.SedentaryReminder, err = getEnvBool("SEDENTARY_REMINDER", false); err != nil {
		return nil, err
	}

	cfg.Metrics.Addr = getEnv("METRICS_ADDR", ":9100")

	cfg.Log.Level = getEnv("LOG_LEVEL", "info")
	cfg.Log.Format = getEnv("LOG_FORMAT", "json")
	cfg.Log.File = getEnv("LOG_FILE", "")

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate 校验配置
func (c *Config) Validate() error {
	switch c.Link.Mode {
	case LinkSerial, LinkMQTT, LinkBoth:
	default:
		return fmt.Errorf("invalid LINK_MODE %q (want serial, mqtt or both)", c.Link.Mode)
	}
	if c.UseSerial() && c.Serial.Port == "" {
		return fmt.Errorf("serial port is required in %s mode", c.Link.Mode)
	}
	if c.UseMQTT() && c.MQTT.Broker == "" {
		return fmt.Errorf("mqtt broker is required in %s mode", c.Link.Mode)
	}
	return nil
}

// UseSerial 是否启用串口链路
func (c *Config) UseSerial() bool {
	return c.Link.Mode == LinkSerial || c.Link.Mode == LinkBoth
}

// UseMQTT 是否启用 MQTT 链路
func (c *Config) UseMQTT() bool {
	return c.Link.Mode == LinkMQTT || c.Link.Mode == LinkBoth
}

// ThresholdConfig 环境变量中的阈值（无阈值文件时使用，也是文件加载失败时的回退值）
func (c *Config) ThresholdConfig() models.ThresholdConfig {
	return models.ThresholdConfig{
		HeartRateMax:      c.Thresholds.HeartRateMax,
		TemperatureMax:    c.Thresholds.TemperatureMax,
		VibrationEnabled:  c.Thresholds.VibrationEnabled,
		SedentaryReminder: c.Thresholds.SedentaryReminder,
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func getEnvFloat(key string, defaultValue float64) (float64, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return f, nil
}

func getEnvBool(key string, defaultValue bool) (bool, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return b, nil
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
