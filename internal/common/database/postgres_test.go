package database

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Bonjomondo/Health-Check-App/internal/common/config"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrepare_AppliesPoolSettings(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectPing()

	cfg := &config.DatabaseConfig{MaxConns: 4, MaxIdle: 2, ConnMaxLifetime: 30 * time.Minute}
	require.NoError(t, prepare(context.Background(), db, cfg))

	assert.Equal(t, 4, db.Stats().MaxOpenConnections)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPrepare_PingFailure(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectPing().WillReturnError(errors.New("connection refused"))

	cfg := &config.DatabaseConfig{Host: "db.local", Port: 5432, User: "health", Database: "wearable"}
	err = prepare(context.Background(), db, cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "health@db.local:5432/wearable")
	assert.Contains(t, err.Error(), "connection refused")
}

func TestClose_NilIsNoop(t *testing.T) {
	assert.NoError(t, Close(nil))
}
