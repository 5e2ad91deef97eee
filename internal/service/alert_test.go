package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Bonjomondo/Health-Check-App/internal/bus"
	"github.com/Bonjomondo/Health-Check-App/internal/evaluator"
	"github.com/Bonjomondo/Health-Check-App/internal/models"
	"github.com/Bonjomondo/Health-Check-App/internal/settings"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeSender struct {
	mu       sync.Mutex
	commands []string
	err      error
}

func (f *fakeSender) Send(name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.commands = append(f.commands, name)
	return f.err
}

func (f *fakeSender) sent() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.commands...)
}

func receiveEvent(t *testing.T, sub *bus.Subscription) bus.Event {
	t.Helper()
	select {
	case ev, ok := <-sub.Events():
		require.True(t, ok, "subscription closed")
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return bus.Event{}
	}
}

func newTestAlertService(t *testing.T) (*AlertService, *bus.Bus, *bus.Subscription) {
	t.Helper()
	b := bus.New(zap.NewNop())
	t.Cleanup(b.Close)
	sub := b.Subscribe("test", 16)
	return NewAlertService(b, settings.NewStatic(models.DefaultThresholds()), nil, zap.NewNop()), b, sub
}

func TestAlertService_PublishesAlertsAndSendsCommands(t *testing.T) {
	svc, _, sub := newTestAlertService(t)
	sender := &fakeSender{}
	svc.RegisterSender("serial", sender)

	ts := time.UnixMilli(1700000000000)
	reading := models.Reading{
		HeartRate:       130,
		BodyTemperature: 38.2,
		MotionStatus:    models.MotionFallDetected,
		Timestamp:       ts,
	}

	alerts := svc.HandleReading("serial", reading)
	require.Len(t, alerts, 3)

	kinds := []models.AlertKind{models.AlertFall, models.AlertFever, models.AlertHighHeartRate}
	for i, alert := range alerts {
		assert.Equal(t, kinds[i], alert.Kind)
		assert.Equal(t, "serial", alert.Source)
		assert.Equal(t, ts, alert.Timestamp)
		assert.True(t, alert.Vibrate)
		_, err := uuid.Parse(alert.ID)
		assert.NoError(t, err)

		ev := receiveEvent(t, sub)
		assert.Equal(t, bus.EventAlert, ev.Type)
		assert.Equal(t, alert, ev.Alert)
	}

	assert.Equal(t, []string{
		models.CommandAlarmFall,
		models.CommandAlarmFever,
		models.CommandAlarmHeartRate,
	}, sender.sent())
}

func TestAlertService_NoAlertsForNormalReading(t *testing.T) {
	svc, _, sub := newTestAlertService(t)
	sender := &fakeSender{}
	svc.RegisterSender("serial", sender)

	alerts := svc.HandleReading("serial", models.Reading{HeartRate: 72, BodyTemperature: 36.6})
	assert.Empty(t, alerts)
	assert.Empty(t, sender.sent())

	select {
	case ev := <-sub.Events():
		t.Fatalf("unexpected event %s", ev.Type)
	default:
	}
}

func TestAlertService_SendFailureDoesNotDropAlert(t *testing.T) {
	svc, _, sub := newTestAlertService(t)
	svc.RegisterSender("serial", &fakeSender{err: errors.New("not connected")})

	alerts := svc.HandleReading("serial", models.Reading{HeartRate: 150})
	require.Len(t, alerts, 1)

	ev := receiveEvent(t, sub)
	assert.Equal(t, models.AlertHighHeartRate, ev.Alert.Kind)
}

func TestAlertService_CommandGoesToReadingSource(t *testing.T) {
	svc, _, _ := newTestAlertService(t)
	serial := &fakeSender{}
	mqtt := &fakeSender{}
	svc.RegisterSender("serial", serial)
	svc.RegisterSender("mqtt", mqtt)

	svc.HandleReading("mqtt", models.Reading{BodyTemperature: 39})
	assert.Empty(t, serial.sent())
	assert.Equal(t, []string{models.CommandAlarmFever}, mqtt.sent())

	// 未注册链路的来源只发布报警
	alerts := svc.HandleReading("replay", models.Reading{BodyTemperature: 39})
	assert.Len(t, alerts, 1)
}

func TestAlertService_UsesCurrentThresholds(t *testing.T) {
	b := bus.New(zap.NewNop())
	defer b.Close()
	provider := settings.NewStatic(models.DefaultThresholds())
	svc := NewAlertService(b, provider, nil, zap.NewNop())

	assert.Len(t, svc.HandleReading("serial", models.Reading{HeartRate: 110}), 1)

	cfg := models.DefaultThresholds()
	cfg.HeartRateMax = 120
	cfg.VibrationEnabled = false
	provider.Set(cfg)
	assert.Empty(t, svc.HandleReading("serial", models.Reading{HeartRate: 110}))

	alerts := svc.HandleReading("serial", models.Reading{HeartRate: 121})
	require.Len(t, alerts, 1)
	assert.False(t, alerts[0].Vibrate)

	assert.Equal(t, evaluator.HeartRateNormal, svc.HeartRateStatus(110))
	assert.Equal(t, evaluator.HeartRateTooSlow, svc.HeartRateStatus(55))
	assert.Equal(t, evaluator.HeartRateTooFast, svc.HeartRateStatus(121))
}

func TestAlertService_AttachPublishesAlertBeforeReading(t *testing.T) {
	svc, b, sub := newTestAlertService(t)
	svc.Attach()

	b.PublishReading("serial", models.Reading{HeartRate: 72, BodyTemperature: 37.8})

	first := receiveEvent(t, sub)
	second := receiveEvent(t, sub)
	assert.Equal(t, bus.EventAlert, first.Type)
	assert.Equal(t, models.AlertFever, first.Alert.Kind)
	assert.Equal(t, bus.EventReading, second.Type)
	assert.Equal(t, 72, second.Reading.HeartRate)
}

type fakeAlertStore struct {
	mu     sync.Mutex
	alerts []models.AlertEvent
	err    error
}

func (f *fakeAlertStore) CreateAlertLog(_ context.Context, alert models.AlertEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.alerts = append(f.alerts, alert)
	return f.err
}

func TestAlertRecorder_StoresAlerts(t *testing.T) {
	store := &fakeAlertStore{}
	rec := newAlertRecorder(store, zap.NewNop())

	rec.OnAlert(models.AlertEvent{ID: "a-1", Kind: models.AlertFall})
	store.err = errors.New("db down")
	assert.NotPanics(t, func() { rec.OnAlert(models.AlertEvent{ID: "a-2", Kind: models.AlertFever}) })

	store.mu.Lock()
	defer store.mu.Unlock()
	require.Len(t, store.alerts, 2)
	assert.Equal(t, "a-1", store.alerts[0].ID)
}
