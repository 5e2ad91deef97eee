package models

import "time"

// 设备命令
const (
	CommandStartMeasure   = "START_MEASURE"
	CommandAlarmFall      = "ALARM_FALL"
	CommandAlarmFever     = "ALARM_FEVER"
	CommandAlarmHeartRate = "ALARM_HEART_RATE"
)

// Command 下发给设备的命令（无应答，尽力而为）
type Command struct {
	Name      string
	Timestamp time.Time
}

// NewCommand 创建命令
func NewCommand(name string, at time.Time) Command {
	return Command{Name: name, Timestamp: at}
}
