package repository

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/Bonjomondo/Health-Check-App/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func setupMockAlertLogDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock, *AlertLogRepository) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	repo := NewAlertLogRepository(db, zap.NewNop())
	return db, mock, repo
}

func TestEnsureSchema(t *testing.T) {
	db, mock, repo := setupMockAlertLogDB(t)
	defer db.Close()

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS wearable_alert_logs`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, repo.EnsureSchema(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateAlertLog_Success(t *testing.T) {
	db, mock, repo := setupMockAlertLogDB(t)
	defer db.Close()

	triggeredAt := time.Now()
	alert := models.AlertEvent{
		ID:        uuid.New().String(),
		Kind:      models.AlertHighHeartRate,
		Message:   "heart rate 120 bpm exceeds 100 bpm",
		Reading:   models.Reading{HeartRate: 120},
		Timestamp: triggeredAt,
		Source:    "serial",
		Vibrate:   true,
	}

	mock.ExpectExec(`INSERT INTO wearable_alert_logs`).
		WithArgs(alert.ID, "serial", "HighHeartRate", alert.Message, true, triggeredAt, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.CreateAlertLog(context.Background(), alert))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateAlertLog_MissingID(t *testing.T) {
	db, mock, repo := setupMockAlertLogDB(t)
	defer db.Close()

	err := repo.CreateAlertLog(context.Background(), models.AlertEvent{Kind: models.AlertFall})
	assert.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateAlertLog_DatabaseError(t *testing.T) {
	db, mock, repo := setupMockAlertLogDB(t)
	defer db.Close()

	mock.ExpectExec(`INSERT INTO wearable_alert_logs`).
		WillReturnError(errors.New("connection reset"))

	err := repo.CreateAlertLog(context.Background(), models.AlertEvent{ID: "a-1", Kind: models.AlertFall})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
}

func TestListRecentAlertLogs(t *testing.T) {
	db, mock, repo := setupMockAlertLogDB(t)
	defer db.Close()

	now := time.Now()
	rows := sqlmock.NewRows([]string{
		"alert_id", "source", "kind", "message", "vibrate", "triggered_at", "trigger_data",
	}).
		AddRow("a-2", "serial", "Fever", "fever", true, now, []byte(`{"body_temperature":38.2}`)).
		AddRow("a-1", "serial", "Fall", "fall", false, now.Add(-time.Minute), []byte(`{"motion_status":"FallDetected"}`))

	mock.ExpectQuery(`SELECT alert_id, source, kind`).
		WithArgs("serial", 10).
		WillReturnRows(rows)

	alerts, err := repo.ListRecentAlertLogs(context.Background(), "serial", 10)
	require.NoError(t, err)
	require.Len(t, alerts, 2)
	assert.Equal(t, models.AlertFever, alerts[0].Kind)
	assert.InDelta(t, 38.2, alerts[0].Reading.BodyTemperature, 1e-9)
	assert.Equal(t, models.AlertFall, alerts[1].Kind)
	assert.Equal(t, models.MotionFallDetected, alerts[1].Reading.MotionStatus)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListRecentAlertLogs_DefaultLimit(t *testing.T) {
	db, mock, repo := setupMockAlertLogDB(t)
	defer db.Close()

	mock.ExpectQuery(`SELECT alert_id, source, kind`).
		WithArgs("", 50).
		WillReturnRows(sqlmock.NewRows([]string{
			"alert_id", "source", "kind", "message", "vibrate", "triggered_at", "trigger_data",
		}))

	alerts, err := repo.ListRecentAlertLogs(context.Background(), "", 0)
	require.NoError(t, err)
	assert.Empty(t, alerts)
	require.NoError(t, mock.ExpectationsWereMet())
}
