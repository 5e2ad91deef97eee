package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDatabaseConfig_LoadFromEnv(t *testing.T) {
	t.Setenv("DB_HOST", "db.local")
	t.Setenv("DB_PORT", "6543")
	t.Setenv("DB_USER", "health")
	t.Setenv("DB_NAME", "wearable")

	cfg := DatabaseConfig{Host: "localhost", Port: 5432, SSLMode: "disable"}
	cfg.LoadFromEnv("DB")

	assert.Equal(t, "db.local", cfg.Host)
	assert.Equal(t, 6543, cfg.Port)
	assert.Equal(t, "health", cfg.User)
	assert.Equal(t, "wearable", cfg.Database)
	assert.Equal(t, "host=db.local port=6543 user=health password= dbname=wearable sslmode=disable", cfg.GetDSN())
}

func TestDatabaseConfig_PoolAndDSNOptions(t *testing.T) {
	t.Setenv("DB_MAX_CONNS", "8")
	t.Setenv("DB_CONN_MAX_LIFETIME", "10m")

	cfg := DatabaseConfig{
		Host: "localhost", Port: 5432, User: "postgres", Database: "health", SSLMode: "disable",
		MaxConns: 4, ConnectTimeout: 5 * time.Second, ApplicationName: "health-check-app",
	}
	cfg.LoadFromEnv("DB")

	assert.Equal(t, 8, cfg.MaxConns)
	assert.Equal(t, 10*time.Minute, cfg.ConnMaxLifetime)
	assert.Equal(t, "host=localhost port=5432 user=postgres password= dbname=health sslmode=disable"+
		" connect_timeout=5 application_name=health-check-app", cfg.GetDSN())
}

func TestRedisConfig_LoadFromEnv(t *testing.T) {
	t.Setenv("REDIS_ADDR", "cache:6380")
	t.Setenv("REDIS_POOL_SIZE", "16")
	t.Setenv("REDIS_DIAL_TIMEOUT", "750ms")

	cfg := RedisConfig{Addr: "localhost:6379", PoolSize: 4}
	cfg.LoadFromEnv("REDIS")
	assert.Equal(t, "cache:6380", cfg.Addr)
	assert.Equal(t, 16, cfg.PoolSize)
	assert.Equal(t, 750*time.Millisecond, cfg.DialTimeout)
}

func TestMQTTConfig_LoadFromEnv(t *testing.T) {
	t.Setenv("MQTT_BROKER", "tcp://broker:1883")
	t.Setenv("MQTT_QOS", "2")

	cfg := MQTTConfig{Broker: "tcp://localhost:1883", QoS: 1}
	cfg.LoadFromEnv("MQTT")
	assert.Equal(t, "tcp://broker:1883", cfg.Broker)
	assert.Equal(t, byte(2), cfg.QoS)

	t.Setenv("MQTT_QOS", "7")
	cfg.LoadFromEnv("MQTT")
	assert.Equal(t, byte(2), cfg.QoS)
}

func TestSerialConfig_LoadFromEnv(t *testing.T) {
	t.Setenv("SERIAL_PORT", "/dev/ttyUSB0")
	t.Setenv("SERIAL_BAUD", "9600")
	t.Setenv("SERIAL_READ_TIMEOUT", "250ms")

	cfg := SerialConfig{Port: "/dev/rfcomm0", BaudRate: 115200}
	cfg.LoadFromEnv("SERIAL")
	assert.Equal(t, "/dev/ttyUSB0", cfg.Port)
	assert.Equal(t, 9600, cfg.BaudRate)
	assert.Equal(t, 250*time.Millisecond, cfg.ReadTimeout)
}
