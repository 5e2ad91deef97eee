// Package evaluator 阈值评估（纯函数，不持有状态）
package evaluator

import (
	"fmt"

	"github.com/Bonjomondo/Health-Check-App/internal/models"
)

// 心率下限（低于此值显示为"过慢"）
const HeartRateMin = 60

// Evaluate 根据阈值评估读数，返回报警事件列表
// 规则相互独立，按 Fall → Fever → HighHeartRate 的顺序输出。
// 返回的事件没有 ID 和 Source，由调用方补充。
func Evaluate(r models.Reading, cfg models.ThresholdConfig) []models.AlertEvent {
	var alerts []models.AlertEvent

	// 规则1：跌倒
	if r.MotionStatus == models.MotionFallDetected {
		alerts = append(alerts, newAlert(models.AlertFall, "Fall detected", r, cfg))
	}

	// 规则2：发热（仅在上报体温时评估）
	if r.HasBodyTemperature() && r.BodyTemperature > cfg.TemperatureMax {
		alerts = append(alerts, newAlert(models.AlertFever,
			fmt.Sprintf("Body temperature %.1f°C exceeds %.1f°C", r.BodyTemperature, cfg.TemperatureMax),
			r, cfg))
	}

	// 规则3：心率过高（仅在上报心率时评估）
	if r.HasHeartRate() && r.HeartRate > cfg.HeartRateMax {
		alerts = append(alerts, newAlert(models.AlertHighHeartRate,
			fmt.Sprintf("Heart rate %d bpm exceeds %d bpm", r.HeartRate, cfg.HeartRateMax),
			r, cfg))
	}

	return alerts
}

func newAlert(kind models.AlertKind, message string, r models.Reading, cfg models.ThresholdConfig) models.AlertEvent {
	return models.AlertEvent{
		Kind:      kind,
		Message:   message,
		Reading:   r,
		Timestamp: r.Timestamp,
		Vibrate:   cfg.VibrationEnabled,
	}
}

// HeartRateStatus 心率显示状态（不产生报警）
type HeartRateStatus string

const (
	HeartRateTooSlow HeartRateStatus = "too slow"
	HeartRateTooFast HeartRateStatus = "too fast"
	HeartRateNormal  HeartRateStatus = "normal"
)

// ClassifyHeartRate 心率分级：< 60 过慢，> heart_rate_max 过快，其余正常
func ClassifyHeartRate(heartRate int, cfg models.ThresholdConfig) HeartRateStatus {
	switch {
	case heartRate < HeartRateMin:
		return HeartRateTooSlow
	case heartRate > cfg.HeartRateMax:
		return HeartRateTooFast
	default:
		return HeartRateNormal
	}
}

// AlarmCommand 报警类型对应的设备蜂鸣命令
func AlarmCommand(kind models.AlertKind) (string, bool) {
	switch kind {
	case models.AlertFall:
		return models.CommandAlarmFall, true
	case models.AlertFever:
		return models.CommandAlarmFever, true
	case models.AlertHighHeartRate:
		return models.CommandAlarmHeartRate, true
	default:
		return "", false
	}
}
