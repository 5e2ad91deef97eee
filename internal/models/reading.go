package models

import (
	"strings"
	"time"
)

// MotionStatus 运动状态（设备上报的 motionStatus）
type MotionStatus int

const (
	MotionSedentary    MotionStatus = iota // 久坐/静止（默认值）
	MotionWalking                          // 行走
	MotionFallDetected                     // 检测到跌倒
)

// String 返回运动状态名称
func (m MotionStatus) String() string {
	switch m {
	case MotionWalking:
		return "Walking"
	case MotionFallDetected:
		return "FallDetected"
	default:
		return "Sedentary"
	}
}

// MarshalText 以名称形式序列化（用于 JSON / Redis Streams）
func (m MotionStatus) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalText 反序列化运动状态
func (m *MotionStatus) UnmarshalText(text []byte) error {
	switch string(text) {
	case "Walking":
		*m = MotionWalking
	case "FallDetected":
		*m = MotionFallDetected
	default:
		*m = ParseMotionStatus(string(text))
	}
	return nil
}

// ParseMotionStatus 解析设备上报的运动状态字符串（不区分大小写）
// "WALKING" → Walking；"FALL" / "FALL_DETECTED" → FallDetected；其他（包括空）→ Sedentary
func ParseMotionStatus(s string) MotionStatus {
	switch strings.ToUpper(s) {
	case "WALKING":
		return MotionWalking
	case "FALL", "FALL_DETECTED":
		return MotionFallDetected
	default:
		return MotionSedentary
	}
}

// Reading 一次遥测读数快照
// 数值字段为 0 表示设备未上报（absent），不是错误。
// Reading 按值传递，构造后不再修改。
type Reading struct {
	HeartRate              int          `json:"heart_rate"`              // 心率 bpm，0 = 未上报
	BloodOxygen            int          `json:"blood_oxygen"`            // 血氧 %，0 = 未上报
	BodyTemperature        float64      `json:"body_temperature"`        // 体温 °C，0 = 未上报
	EnvironmentTemperature float64      `json:"environment_temperature"` // 环境温度 °C
	Humidity               int          `json:"humidity"`                // 湿度 %
	MotionStatus           MotionStatus `json:"motion_status"`
	Steps                  int          `json:"steps"`         // 设备累计步数
	BatteryLevel           int          `json:"battery_level"` // 电量 0-100
	Timestamp              time.Time    `json:"timestamp"`     // 采集时间（缺省为解析时间）
}

// HasHeartRate 是否上报了心率
func (r Reading) HasHeartRate() bool {
	return r.HeartRate != 0
}

// HasBodyTemperature 是否上报了体温
func (r Reading) HasBodyTemperature() bool {
	return r.BodyTemperature != 0
}
