package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/Bonjomondo/Health-Check-App/internal/bus"
	"github.com/Bonjomondo/Health-Check-App/internal/common/database"
	rediscommon "github.com/Bonjomondo/Health-Check-App/internal/common/redis"
	"github.com/Bonjomondo/Health-Check-App/internal/config"
	"github.com/Bonjomondo/Health-Check-App/internal/consumer"
	"github.com/Bonjomondo/Health-Check-App/internal/metrics"
	"github.com/Bonjomondo/Health-Check-App/internal/models"
	"github.com/Bonjomondo/Health-Check-App/internal/publisher"
	"github.com/Bonjomondo/Health-Check-App/internal/repository"
	"github.com/Bonjomondo/Health-Check-App/internal/session"
	"github.com/Bonjomondo/Health-Check-App/internal/settings"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// HealthService 健康监测服务（整合各层）
type HealthService struct {
	config *config.Config
	logger *zap.Logger

	bus        *bus.Bus
	registry   *prometheus.Registry
	metrics    *metrics.Metrics
	thresholds settings.Provider
	alerts     *AlertService

	// 数据链路
	session *session.Session
	mqtt    *consumer.MQTTConsumer

	// 输出
	redis     *redis.Client
	publisher *publisher.StreamPublisher
	db        *sql.DB
	alertLog  *repository.AlertLogRepository

	metricsServer *http.Server
	cancel        context.CancelFunc
	workers       sync.WaitGroup
}

// Option 服务选项（主要用于测试替换外部依赖）
type Option func(*options)

type options struct {
	dialer     session.Dialer
	mqttDial   consumer.DialFunc
	thresholds settings.Provider
	db         *sql.DB
}

// WithDialer 替换串口拨号器
func WithDialer(d session.Dialer) Option {
	return func(o *options) { o.dialer = d }
}

// WithMQTTDial 替换 MQTT 客户端创建函数
func WithMQTTDial(dial consumer.DialFunc) Option {
	return func(o *options) { o.mqttDial = dial }
}

// WithThresholds 替换阈值提供者
func WithThresholds(p settings.Provider) Option {
	return func(o *options) { o.thresholds = p }
}

// WithDB 使用已有的数据库连接
func WithDB(db *sql.DB) Option {
	return func(o *options) { o.db = db }
}

// NewHealthService 创建健康监测服务
func NewHealthService(cfg *config.Config, logger *zap.Logger, opts ...Option) (*HealthService, error) {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	s := &HealthService{
		config:   cfg,
		logger:   logger,
		bus:      bus.New(logger),
		registry: prometheus.NewRegistry(),
	}
	s.metrics = metrics.New(s.registry)

	// 1. 阈值
	s.thresholds = o.thresholds
	if s.thresholds == nil {
		if cfg.Thresholds.File != "" {
			fp, err := settings.NewFileProvider(cfg.Thresholds.File, cfg.ThresholdConfig(), logger)
			if err != nil {
				return nil, fmt.Errorf("failed to load thresholds: %w", err)
			}
			s.thresholds = fp
		} else {
			s.thresholds = settings.NewStatic(cfg.ThresholdConfig())
		}
	}

	// 2. 报警评估（读数钩子）
	s.alerts = NewAlertService(s.bus, s.thresholds, s.metrics, logger)
	s.alerts.Attach()

	// 3. 数据链路
	if cfg.UseSerial() {
		dialer := o.dialer
		if dialer == nil {
			dialer = session.NewSerialDialer(cfg.Serial.BaudRate, cfg.Serial.ReadTimeout)
		}
		s.session = session.NewSession(dialer, s.bus, logger, session.WithMetrics(s.metrics))
		s.alerts.RegisterSender(session.SourceSerial, s.session)
	}
	if cfg.UseMQTT() {
		dial := o.mqttDial
		if dial == nil {
			dial = consumer.NewDialFunc(logger)
		}
		s.mqtt = consumer.NewMQTTConsumer(cfg, dial, s.bus, s.metrics, logger)
		s.alerts.RegisterSender(consumer.SourceMQTT, s.mqtt)
	}

	// 4. Redis 输出
	if cfg.Publisher.Enabled {
		s.redis = rediscommon.NewRedisClient(&cfg.Redis)
		if err := rediscommon.Ping(context.Background(), s.redis); err != nil {
			s.closeOutputs()
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		cache := publisher.NewStateCache(
			publisher.NewRedisKVStore(s.redis),
			cfg.Publisher.StateKeyPrefix,
			cfg.Publisher.StateTTL,
			logger,
		)
		s.publisher = publisher.NewStreamPublisher(s.redis, publisher.StreamConfig{
			DataStream:  cfg.Publisher.DataStream,
			AlertStream: cfg.Publisher.AlertStream,
			MaxLen:      cfg.Publisher.StreamMaxLen,
		}, s.bus.Registry(), cache, logger)
	}

	// 5. 报警历史
	if cfg.AlertLog.Enabled {
		s.db = o.db
		if s.db == nil {
			db, err := database.NewPostgresDB(context.Background(), &cfg.Database)
			if err != nil {
				s.closeOutputs()
				return nil, fmt.Errorf("failed to connect to database: %w", err)
			}
			s.db = db
		}
		s.alertLog = repository.NewAlertLogRepository(s.db, logger)
		if err := s.alertLog.EnsureSchema(context.Background()); err != nil {
			s.closeOutputs()
			return nil, err
		}
	}

	return s, nil
}

// Bus 事件总线
func (s *HealthService) Bus() *bus.Bus {
	return s.bus
}

// Alerts 报警服务
func (s *HealthService) Alerts() *AlertService {
	return s.alerts
}

// Session 串口会话（未启用串口链路时为 nil）
func (s *HealthService) Session() *session.Session {
	return s.session
}

// Start 启动服务
func (s *HealthService) Start(ctx context.Context) error {
	s.logger.Info("Starting health check service",
		zap.String("link_mode", s.config.Link.Mode),
	)

	runCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	if s.config.Metrics.Addr != "" {
		s.startMetricsServer()
	}

	// 输出端先于数据链路启动，保证不丢首批事件
	if s.publisher != nil {
		sub := s.bus.Subscribe("redis-publisher", 256)
		s.workers.Add(1)
		go func() {
			defer s.workers.Done()
			s.publisher.Run(runCtx, sub)
		}()
	}
	if s.alertLog != nil {
		done := s.bus.Listen(runCtx, "alert-log", 64, newAlertRecorder(s.alertLog, s.logger))
		s.workers.Add(1)
		go func() {
			defer s.workers.Done()
			<-done
		}()
	}

	if s.mqtt != nil {
		if err := s.mqtt.Start(ctx); err != nil {
			return fmt.Errorf("failed to start MQTT consumer: %w", err)
		}
	}
	if s.session != nil {
		if err := s.session.Connect(ctx, s.config.Serial.Port); err != nil {
			return fmt.Errorf("failed to connect to device: %w", err)
		}
	}

	if err := s.StartMeasure(); err != nil {
		s.logger.Warn("Failed to start measurement", zap.Error(err))
	}

	s.logger.Info("Health check service started successfully")
	return nil
}

// StartMeasure 通知所有已连接的设备开始测量
func (s *HealthService) StartMeasure() error {
	var errs []error
	if s.session != nil {
		if err := s.session.Send(models.CommandStartMeasure); err != nil {
			errs = append(errs, fmt.Errorf("serial: %w", err))
		}
	}
	if s.mqtt != nil {
		if err := s.mqtt.Send(models.CommandStartMeasure); err != nil {
			errs = append(errs, fmt.Errorf("mqtt: %w", err))
		}
	}
	return errors.Join(errs...)
}

// Stop 停止服务
func (s *HealthService) Stop(ctx context.Context) error {
	s.logger.Info("Stopping health check service")

	if s.session != nil {
		s.session.Disconnect()
		select {
		case <-s.session.Done():
		case <-ctx.Done():
			s.logger.Warn("Timed out waiting for read loop to exit")
		}
	}
	if s.mqtt != nil {
		if err := s.mqtt.Stop(ctx); err != nil {
			s.logger.Error("Error stopping MQTT consumer", zap.Error(err))
		}
	}

	// 链路关闭后再停输出端，断开事件也会被输出
	if s.cancel != nil {
		s.cancel()
	}
	s.workers.Wait()
	s.bus.Close()

	if s.metricsServer != nil {
		if err := s.metricsServer.Shutdown(ctx); err != nil {
			s.logger.Error("Error stopping metrics server", zap.Error(err))
		}
	}

	s.closeOutputs()
	s.logger.Info("Health check service stopped")
	return nil
}

func (s *HealthService) startMetricsServer() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", s.metrics.Handler())
	s.metricsServer = &http.Server{
		Addr:              s.config.Metrics.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		s.logger.Info("Metrics server listening", zap.String("addr", s.config.Metrics.Addr))
		if err := s.metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("Metrics server failed", zap.Error(err))
		}
	}()
}

func (s *HealthService) closeOutputs() {
	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			s.logger.Error("Failed to close redis", zap.Error(err))
		}
		s.redis = nil
	}
	if s.db != nil {
		if err := database.Close(s.db); err != nil {
			s.logger.Error("Failed to close database", zap.Error(err))
		}
		s.db = nil
	}
}
