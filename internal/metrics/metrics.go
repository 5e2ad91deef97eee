// Package metrics Prometheus 指标
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "health_check"

// Metrics 遥测链路指标
// 所有方法对 nil 接收者安全（未启用指标时传 nil）
type Metrics struct {
	bytesRead       *prometheus.CounterVec
	frames          *prometheus.CounterVec
	malformedFrames *prometheus.CounterVec
	alerts          *prometheus.CounterVec
	commands        *prometheus.CounterVec
	transitions     *prometheus.CounterVec

	gatherer prometheus.Gatherer
}

// New 在 reg 上注册指标
func New(reg *prometheus.Registry) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		bytesRead: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bytes_read_total",
			Help:      "Raw bytes read from device links",
		}, []string{"source"}),
		frames: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_total",
			Help:      "Decoded frames by source and result kind",
		}, []string{"source", "kind"}),
		malformedFrames: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "malformed_frames_total",
			Help:      "Frames rejected by the telemetry codec",
		}, []string{"source"}),
		alerts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_total",
			Help:      "Alert events raised by kind",
		}, []string{"kind"}),
		commands: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_total",
			Help:      "Commands dispatched to devices by result",
		}, []string{"source", "command", "result"}),
		transitions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connection_transitions_total",
			Help:      "Connection lifecycle transitions by target state",
		}, []string{"source", "state"}),
		gatherer: reg,
	}
}

// AddBytes 记录读取的字节数
func (m *Metrics) AddBytes(source string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.bytesRead.WithLabelValues(source).Add(float64(n))
}

// ObserveFrame 记录一帧的解码结果
func (m *Metrics) ObserveFrame(source, kind string) {
	if m == nil {
		return
	}
	m.frames.WithLabelValues(source, kind).Inc()
	if kind == "Malformed" {
		m.malformedFrames.WithLabelValues(source).Inc()
	}
}

// ObserveAlert 记录报警
func (m *Metrics) ObserveAlert(kind string) {
	if m == nil {
		return
	}
	m.alerts.WithLabelValues(kind).Inc()
}

// ObserveCommand 记录命令下发结果
func (m *Metrics) ObserveCommand(source, command string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.commands.WithLabelValues(source, command, result).Inc()
}

// ObserveTransition 记录连接状态迁移
func (m *Metrics) ObserveTransition(source, state string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(source, state).Inc()
}

// Handler /metrics HTTP 处理器
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
