package models

import "time"

// AlertKind 报警类型
type AlertKind string

const (
	AlertFall          AlertKind = "Fall"
	AlertFever         AlertKind = "Fever"
	AlertHighHeartRate AlertKind = "HighHeartRate"
)

// AlertEvent 报警事件
// 由阈值评估在读数到达时创建；核心不持久化（历史记录属于外部协作方）
type AlertEvent struct {
	ID        string    `json:"id"`
	Kind      AlertKind `json:"kind"`
	Message   string    `json:"message"`
	Reading   Reading   `json:"reading"` // 触发报警的读数
	Timestamp time.Time `json:"timestamp"`
	Source    string    `json:"source"`  // "serial" 或 "mqtt"
	Vibrate   bool      `json:"vibrate"` // 供通知协作方使用
}

// 默认阈值
const (
	DefaultHeartRateMax   = 100
	DefaultTemperatureMax = 37.3
)

// ThresholdConfig 阈值配置（由外部设置协作方提供，每次评估时注入快照）
type ThresholdConfig struct {
	HeartRateMax      int     `json:"heart_rate_max" yaml:"heart_rate_max"`
	TemperatureMax    float64 `json:"temperature_max" yaml:"temperature_max"`
	VibrationEnabled  bool    `json:"vibration_enabled" yaml:"vibration_enabled"`
	SedentaryReminder bool    `json:"sedentary_reminder" yaml:"sedentary_reminder"`
}

// DefaultThresholds 默认阈值
func DefaultThresholds() ThresholdConfig {
	return ThresholdConfig{
		HeartRateMax:     DefaultHeartRateMax,
		TemperatureMax:   DefaultTemperatureMax,
		VibrationEnabled: true,
	}
}
