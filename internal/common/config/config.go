package config

import (
	"fmt"
	"os"
	"time"
)

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
	MaxConns int
	MaxIdle  int

	ConnMaxLifetime time.Duration
	ConnectTimeout  time.Duration
	ApplicationName string // 出现在 pg_stat_activity 中
}

// RedisConfig Redis配置
type RedisConfig struct {
	Addr        string
	Password    string
	DB          int
	PoolSize    int           // 0 = go-redis 默认值
	DialTimeout time.Duration // 0 = go-redis 默认值
}

// MQTTConfig MQTT配置
type MQTTConfig struct {
	Broker   string
	ClientID string
	Username string
	Password string
	QoS      byte
}

// SerialConfig 串口配置（蓝牙 SPP 映射为 /dev/rfcommN）
type SerialConfig struct {
	Port        string
	BaudRate    int
	ReadTimeout time.Duration
}

// GetDSN 获取数据库连接字符串
func (c *DatabaseConfig) GetDSN() string {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode)
	if c.ConnectTimeout > 0 {
		dsn += fmt.Sprintf(" connect_timeout=%d", int(c.ConnectTimeout.Seconds()))
	}
	if c.ApplicationName != "" {
		dsn += " application_name=" + c.ApplicationName
	}
	return dsn
}

// LoadFromEnv 从环境变量加载配置
func (c *DatabaseConfig) LoadFromEnv(prefix string) {
	if host := os.Getenv(prefix + "_HOST"); host != "" {
		c.Host = host
	}
	if port := os.Getenv(prefix + "_PORT"); port != "" {
		fmt.Sscanf(port, "%d", &c.Port)
	}
	if user := os.Getenv(prefix + "_USER"); user != "" {
		c.User = user
	}
	if password := os.Getenv(prefix + "_PASSWORD"); password != "" {
		c.Password = password
	}
	if database := os.Getenv(prefix + "_NAME"); database != "" {
		c.Database = database
	}
	if sslMode := os.Getenv(prefix + "_SSLMODE"); sslMode != "" {
		c.SSLMode = sslMode
	}
	if maxConns := os.Getenv(prefix + "_MAX_CONNS"); maxConns != "" {
		fmt.Sscanf(maxConns, "%d", &c.MaxConns)
	}
	if maxIdle := os.Getenv(prefix + "_MAX_IDLE"); maxIdle != "" {
		fmt.Sscanf(maxIdle, "%d", &c.MaxIdle)
	}
	if lifetime := os.Getenv(prefix + "_CONN_MAX_LIFETIME"); lifetime != "" {
		if d, err := time.ParseDuration(lifetime); err == nil {
			c.ConnMaxLifetime = d
		}
	}
}

// LoadFromEnv 从环境变量加载Redis配置
func (c *RedisConfig) LoadFromEnv(prefix string) {
	if addr := os.Getenv(prefix + "_ADDR"); addr != "" {
		c.Addr = addr
	}
	if password := os.Getenv(prefix + "_PASSWORD"); password != "" {
		c.Password = password
	}
	if db := os.Getenv(prefix + "_DB"); db != "" {
		fmt.Sscanf(db, "%d", &c.DB)
	}
	if poolSize := os.Getenv(prefix + "_POOL_SIZE"); poolSize != "" {
		fmt.Sscanf(poolSize, "%d", &c.PoolSize)
	}
	if timeout := os.Getenv(prefix + "_DIAL_TIMEOUT"); timeout != "" {
		if d, err := time.ParseDuration(timeout); err == nil {
			c.DialTimeout = d
		}
	}
}

// LoadFromEnv 从环境变量加载MQTT配置
func (c *MQTTConfig) LoadFromEnv(prefix string) {
	if broker := os.Getenv(prefix + "_BROKER"); broker != "" {
		c.Broker = broker
	}
	if clientID := os.Getenv(prefix + "_CLIENT_ID"); clientID != "" {
		c.ClientID = clientID
	}
	if username := os.Getenv(prefix + "_USERNAME"); username != "" {
		c.Username = username
	}
	if password := os.Getenv(prefix + "_PASSWORD"); password != "" {
		c.Password = password
	}
	if qos := os.Getenv(prefix + "_QOS"); qos != "" {
		var v int
		if _, err := fmt.Sscanf(qos, "%d", &v); err == nil && v >= 0 && v <= 2 {
			c.QoS = byte(v)
		}
	}
}

// LoadFromEnv 从环境变量加载串口配置
func (c *SerialConfig) LoadFromEnv(prefix string) {
	if port := os.Getenv(prefix + "_PORT"); port != "" {
		c.Port = port
	}
	if baud := os.Getenv(prefix + "_BAUD"); baud != "" {
		fmt.Sscanf(baud, "%d", &c.BaudRate)
	}
	if timeout := os.Getenv(prefix + "_READ_TIMEOUT"); timeout != "" {
		if d, err := time.ParseDuration(timeout); err == nil {
			c.ReadTimeout = d
		}
	}
}
