package service

import (
	"sync"

	"github.com/Bonjomondo/Health-Check-App/internal/bus"
	"github.com/Bonjomondo/Health-Check-App/internal/evaluator"
	"github.com/Bonjomondo/Health-Check-App/internal/metrics"
	"github.com/Bonjomondo/Health-Check-App/internal/models"
	"github.com/Bonjomondo/Health-Check-App/internal/settings"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// CommandSender 向设备发送命令的链路（串口会话或 MQTT 消费者）
type CommandSender interface {
	Send(name string) error
}

// AlertService 报警服务
// 作为总线的读数钩子运行：评估每条读数，先发布报警，再向来源设备发送蜂鸣命令。
type AlertService struct {
	bus        *bus.Bus
	thresholds settings.Provider
	metrics    *metrics.Metrics
	logger     *zap.Logger
	newID      func() string

	mu      sync.RWMutex
	senders map[string]CommandSender
}

// NewAlertService 创建报警服务
func NewAlertService(b *bus.Bus, thresholds settings.Provider, m *metrics.Metrics, logger *zap.Logger) *AlertService {
	return &AlertService{
		bus:        b,
		thresholds: thresholds,
		metrics:    m,
		logger:     logger,
		newID:      func() string { return uuid.New().String() },
		senders:    make(map[string]CommandSender),
	}
}

// RegisterSender 注册某个数据来源的命令链路
func (s *AlertService) RegisterSender(source string, sender CommandSender) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.senders[source] = sender
}

// Attach 注册为总线读数钩子
func (s *AlertService) Attach() {
	s.bus.AddReadingHook(func(source string, r models.Reading) {
		s.HandleReading(source, r)
	})
}

// HandleReading 评估读数并发布报警，返回发布的报警
func (s *AlertService) HandleReading(source string, r models.Reading) []models.AlertEvent {
	cfg := s.thresholds.Thresholds()
	alerts := evaluator.Evaluate(r, cfg)
	if len(alerts) == 0 {
		return nil
	}

	s.mu.RLock()
	sender := s.senders[source]
	s.mu.RUnlock()

	for i := range alerts {
		alerts[i].ID = s.newID()
		alerts[i].Source = source
		alert := alerts[i]

		s.logger.Warn("Alert triggered",
			zap.String("alert_id", alert.ID),
			zap.String("alert_kind", string(alert.Kind)),
			zap.String("source", source),
			zap.String("message", alert.Message),
		)
		s.metrics.ObserveAlert(string(alert.Kind))
		s.bus.PublishAlert(alert)

		if sender == nil {
			continue
		}
		cmd, ok := evaluator.AlarmCommand(alert.Kind)
		if !ok {
			continue
		}
		if err := sender.Send(cmd); err != nil {
			s.logger.Warn("Failed to send alarm command",
				zap.String("command", cmd),
				zap.String("source", source),
				zap.Error(err),
			)
		}
	}
	return alerts
}

// HeartRateStatus 当前心率的显示分级
func (s *AlertService) HeartRateStatus(heartRate int) evaluator.HeartRateStatus {
	return evaluator.ClassifyHeartRate(heartRate, s.thresholds.Thresholds())
}
