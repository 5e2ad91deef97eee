package service

import (
	"context"
	"time"

	"github.com/Bonjomondo/Health-Check-App/internal/bus"
	"github.com/Bonjomondo/Health-Check-App/internal/models"

	"go.uber.org/zap"
)

// AlertStore 报警历史存储（*repository.AlertLogRepository 满足该接口）
type AlertStore interface {
	CreateAlertLog(ctx context.Context, alert models.AlertEvent) error
}

// alertRecorder 把报警写入历史存储
type alertRecorder struct {
	bus.NopListener
	store   AlertStore
	timeout time.Duration
	logger  *zap.Logger
}

func newAlertRecorder(store AlertStore, logger *zap.Logger) *alertRecorder {
	return &alertRecorder{
		store:   store,
		timeout: 5 * time.Second,
		logger:  logger,
	}
}

// OnAlert 写入一条报警记录，失败只记录日志
func (r *alertRecorder) OnAlert(alert models.AlertEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	if err := r.store.CreateAlertLog(ctx, alert); err != nil {
		r.logger.Error("Failed to record alert",
			zap.String("alert_id", alert.ID),
			zap.String("alert_kind", string(alert.Kind)),
			zap.Error(err),
		)
	}
}
