package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/Bonjomondo/Health-Check-App/internal/models"

	"go.uber.org/zap"
)

// AlertLogRepository 报警历史仓库
// 记录每一次触发的报警及其读数，供历史查询使用。
type AlertLogRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewAlertLogRepository 创建报警历史仓库
func NewAlertLogRepository(db *sql.DB, logger *zap.Logger) *AlertLogRepository {
	return &AlertLogRepository{
		db:     db,
		logger: logger,
	}
}

const createAlertLogsTable = `
	CREATE TABLE IF NOT EXISTS wearable_alert_logs (
		alert_id     TEXT PRIMARY KEY,
		source       TEXT NOT NULL,
		kind         TEXT NOT NULL,
		message      TEXT NOT NULL,
		vibrate      BOOLEAN NOT NULL DEFAULT FALSE,
		triggered_at TIMESTAMPTZ NOT NULL,
		trigger_data JSONB NOT NULL,
		created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)
`

// EnsureSchema 建表（已存在时跳过）
func (r *AlertLogRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, createAlertLogsTable); err != nil {
		return fmt.Errorf("failed to create wearable_alert_logs: %w", err)
	}
	return nil
}

// CreateAlertLog 写入一条报警记录（alert_id 重复时忽略）
func (r *AlertLogRepository) CreateAlertLog(ctx context.Context, alert models.AlertEvent) error {
	if alert.ID == "" {
		return fmt.Errorf("alert id is required")
	}

	triggerData, err := json.Marshal(alert.Reading)
	if err != nil {
		return fmt.Errorf("failed to marshal trigger data: %w", err)
	}

	query := `
		INSERT INTO wearable_alert_logs (
			alert_id, source, kind, message, vibrate, triggered_at, trigger_data
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (alert_id) DO NOTHING
	`
	_, err = r.db.ExecContext(ctx, query,
		alert.ID,
		alert.Source,
		string(alert.Kind),
		alert.Message,
		alert.Vibrate,
		alert.Timestamp,
		triggerData,
	)
	if err != nil {
		return fmt.Errorf("failed to insert alert log: %w", err)
	}

	r.logger.Debug("Alert log created",
		zap.String("alert_id", alert.ID),
		zap.String("alert_kind", string(alert.Kind)),
	)
	return nil
}

// ListRecentAlertLogs 按触发时间倒序列出报警；source 为空时不过滤来源
func (r *AlertLogRepository) ListRecentAlertLogs(ctx context.Context, source string, limit int) ([]models.AlertEvent, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT alert_id, source, kind, message, vibrate, triggered_at, trigger_data
		FROM wearable_alert_logs
		WHERE ($1 = '' OR source = $1)
		ORDER BY triggered_at DESC
		LIMIT $2
	`
	rows, err := r.db.QueryContext(ctx, query, source, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query alert logs: %w", err)
	}
	defer rows.Close()

	var alerts []models.AlertEvent
	for rows.Next() {
		var alert models.AlertEvent
		var kind string
		var triggerData []byte
		if err := rows.Scan(
			&alert.ID,
			&alert.Source,
			&kind,
			&alert.Message,
			&alert.Vibrate,
			&alert.Timestamp,
			&triggerData,
		); err != nil {
			return nil, fmt.Errorf("failed to scan alert log: %w", err)
		}
		alert.Kind = models.AlertKind(kind)
		if len(triggerData) > 0 {
			if err := json.Unmarshal(triggerData, &alert.Reading); err != nil {
				r.logger.Warn("Failed to unmarshal trigger data",
					zap.String("alert_id", alert.ID),
					zap.Error(err),
				)
			}
		}
		alerts = append(alerts, alert)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate alert logs: %w", err)
	}
	return alerts, nil
}
