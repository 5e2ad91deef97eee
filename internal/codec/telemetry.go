// Package codec 解析设备上报的 JSON 帧，并编码下发给设备的命令。
package codec

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/Bonjomondo/Health-Check-App/internal/models"
)

// 设备上报字段
const (
	KeyHeartRate              = "heartRate"
	KeyBloodOxygen            = "bloodOxygen"
	KeyBodyTemperature        = "bodyTemperature"
	KeyEnvironmentTemperature = "environmentTemperature"
	KeyHumidity               = "humidity"
	KeyMotionStatus           = "motionStatus"
	KeySteps                  = "steps"
	KeyBattery                = "battery"
	KeyTimestamp              = "timestamp"
)

// vitalKeys 生命体征字段，出现任意一个即视为读数
var vitalKeys = []string{KeyHeartRate, KeyBloodOxygen, KeyBodyTemperature}

// metricKeys 其他测量字段；没有 vital 字段时，出现这些字段同样视为读数
var metricKeys = []string{KeyEnvironmentTemperature, KeyHumidity, KeyMotionStatus, KeySteps}

// ResultKind 解码结果类型
type ResultKind int

const (
	KindMalformed ResultKind = iota
	KindReading
	KindBatteryUpdate
)

func (k ResultKind) String() string {
	switch k {
	case KindReading:
		return "Reading"
	case KindBatteryUpdate:
		return "BatteryUpdate"
	default:
		return "Malformed"
	}
}

// DecodeResult 解码结果：Reading / BatteryUpdate / Malformed 三选一
type DecodeResult struct {
	Kind    ResultKind
	Reading models.Reading
	Battery int
	Reason  string // Malformed 时的原因
}

// Malformed 构造格式错误结果
func Malformed(format string, args ...interface{}) DecodeResult {
	return DecodeResult{Kind: KindMalformed, Reason: fmt.Sprintf(format, args...)}
}

// Decoder 遥测帧解码器
type Decoder struct {
	now func() time.Time
}

// NewDecoder 创建解码器；now 为 nil 时使用 time.Now
func NewDecoder(now func() time.Time) *Decoder {
	if now == nil {
		now = time.Now
	}
	return &Decoder{now: now}
}

var defaultDecoder = NewDecoder(nil)

// Decode 使用默认解码器（time.Now 时钟）解码一帧
// 未上报 timestamp 的读数以解析时间为准，因此两次解码的 Timestamp 可能不同；
// 需要可重复结果时用 NewDecoder 注入固定时钟。
func Decode(frame []byte) DecodeResult {
	return defaultDecoder.Decode(frame)
}

// Decode 解码一帧
func (d *Decoder) Decode(frame []byte) DecodeResult {
	fields, err := parseObject(frame)
	if err != nil {
		return Malformed("invalid json object: %v", err)
	}

	switch {
	case hasAny(fields, vitalKeys) || hasAny(fields, metricKeys):
		reading, err := d.readingFromFields(fields)
		if err != nil {
			return Malformed("%v", err)
		}
		return DecodeResult{Kind: KindReading, Reading: reading}
	case has(fields, KeyBattery):
		level, err := intField(fields, KeyBattery)
		if err != nil {
			return Malformed("%v", err)
		}
		return DecodeResult{Kind: KindBatteryUpdate, Battery: clampBattery(level)}
	default:
		return Malformed("unrecognized message schema")
	}
}

// DecodeStatus 解码状态消息（仅识别 battery 字段）
func (d *Decoder) DecodeStatus(payload []byte) DecodeResult {
	fields, err := parseObject(payload)
	if err != nil {
		return Malformed("invalid json object: %v", err)
	}
	if !has(fields, KeyBattery) {
		return Malformed("status message without battery")
	}
	level, err := intField(fields, KeyBattery)
	if err != nil {
		return Malformed("%v", err)
	}
	return DecodeResult{Kind: KindBatteryUpdate, Battery: clampBattery(level)}
}

func (d *Decoder) readingFromFields(fields map[string]json.RawMessage) (models.Reading, error) {
	var r models.Reading
	var err error

	if r.HeartRate, err = optionalInt(fields, KeyHeartRate); err != nil {
		return r, err
	}
	if r.BloodOxygen, err = optionalInt(fields, KeyBloodOxygen); err != nil {
		return r, err
	}
	if r.BodyTemperature, err = optionalFloat(fields, KeyBodyTemperature); err != nil {
		return r, err
	}
	if r.EnvironmentTemperature, err = optionalFloat(fields, KeyEnvironmentTemperature); err != nil {
		return r, err
	}
	if r.Humidity, err = optionalInt(fields, KeyHumidity); err != nil {
		return r, err
	}
	if r.Steps, err = optionalInt(fields, KeySteps); err != nil {
		return r, err
	}
	if r.BatteryLevel, err = optionalInt(fields, KeyBattery); err != nil {
		return r, err
	}
	r.BatteryLevel = clampBattery(r.BatteryLevel)
	if raw, ok := fields[KeyMotionStatus]; ok {
		var status string
		if err := json.Unmarshal(raw, &status); err != nil {
			return r, fmt.Errorf("field %s: %w", KeyMotionStatus, err)
		}
		r.MotionStatus = models.ParseMotionStatus(status)
	}

	r.Timestamp = d.now()
	if has(fields, KeyTimestamp) {
		millis, err := intField(fields, KeyTimestamp)
		if err != nil {
			return r, err
		}
		if millis > 0 {
			r.Timestamp = time.UnixMilli(int64(millis))
		}
	}
	return r, nil
}

func parseObject(data []byte) (map[string]json.RawMessage, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, err
	}
	// "null" 可以解码为 nil map，但不是对象
	if fields == nil {
		return nil, fmt.Errorf("not an object")
	}
	return fields, nil
}

func has(fields map[string]json.RawMessage, key string) bool {
	_, ok := fields[key]
	return ok
}

func hasAny(fields map[string]json.RawMessage, keys []string) bool {
	for _, key := range keys {
		if has(fields, key) {
			return true
		}
	}
	return false
}

func numberField(fields map[string]json.RawMessage, key string) (json.Number, error) {
	var n json.Number
	if err := json.Unmarshal(fields[key], &n); err != nil {
		return "", fmt.Errorf("field %s: %w", key, err)
	}
	if n == "" {
		return "", fmt.Errorf("field %s: not a number", key)
	}
	return n, nil
}

// intField 整数字段；小数截断，超出 int32 范围的值饱和到边界
// （极大的心率仍会触发报警，而不是溢出成负数）
func intField(fields map[string]json.RawMessage, key string) (int, error) {
	n, err := numberField(fields, key)
	if err != nil {
		return 0, err
	}
	if i, err := n.Int64(); err == nil {
		return saturateInt32(float64(i)), nil
	}
	f, err := strconv.ParseFloat(n.String(), 64)
	if err != nil && !errors.Is(err, strconv.ErrRange) {
		return 0, fmt.Errorf("field %s: %w", key, err)
	}
	return saturateInt32(f), nil
}

func saturateInt32(f float64) int {
	switch {
	case f >= math.MaxInt32:
		return math.MaxInt32
	case f <= math.MinInt32:
		return math.MinInt32
	default:
		return int(f)
	}
}

// clampBattery 电量限制在 0-100
func clampBattery(level int) int {
	switch {
	case level < 0:
		return 0
	case level > 100:
		return 100
	default:
		return level
	}
}

func optionalInt(fields map[string]json.RawMessage, key string) (int, error) {
	if !has(fields, key) {
		return 0, nil
	}
	return intField(fields, key)
}

func optionalFloat(fields map[string]json.RawMessage, key string) (float64, error) {
	if !has(fields, key) {
		return 0, nil
	}
	n, err := numberField(fields, key)
	if err != nil {
		return 0, err
	}
	f, err := n.Float64()
	if err != nil {
		return 0, fmt.Errorf("field %s: %w", key, err)
	}
	return f, nil
}
