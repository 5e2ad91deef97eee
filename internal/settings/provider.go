// Package settings 提供报警阈值；每次评估取一次快照。
package settings

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/Bonjomondo/Health-Check-App/internal/models"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// Provider 阈值提供者
type Provider interface {
	Thresholds() models.ThresholdConfig
}

// Static 内存中的阈值，可在运行时整体替换
type Static struct {
	mu  sync.RWMutex
	cfg models.ThresholdConfig
}

// NewStatic 创建静态阈值提供者
func NewStatic(cfg models.ThresholdConfig) *Static {
	return &Static{cfg: cfg}
}

// Thresholds 返回当前阈值
func (s *Static) Thresholds() models.ThresholdConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

// Set 替换阈值
func (s *Static) Set(cfg models.ThresholdConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg = cfg
}

// FileProvider 从 yaml 文件读取阈值，文件修改后在下一次取值时重新加载
// 文件中缺失的字段使用 fallback；重新加载失败时保留上一次的有效值。
type FileProvider struct {
	path     string
	fallback models.ThresholdConfig
	logger   *zap.Logger

	mu      sync.Mutex
	current models.ThresholdConfig
	modTime time.Time
	size    int64
}

// NewFileProvider 创建文件阈值提供者；首次加载失败时返回错误
func NewFileProvider(path string, fallback models.ThresholdConfig, logger *zap.Logger) (*FileProvider, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &FileProvider{
		path:     path,
		fallback: fallback,
		logger:   logger,
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat thresholds file: %w", err)
	}
	cfg, err := LoadFile(path, fallback)
	if err != nil {
		return nil, err
	}
	p.current = cfg
	p.modTime = info.ModTime()
	p.size = info.Size()

	logger.Info("Loaded thresholds",
		zap.String("path", path),
		zap.Int("heart_rate_max", cfg.HeartRateMax),
		zap.Float64("temperature_max", cfg.TemperatureMax),
	)
	return p, nil
}

// Thresholds 返回当前阈值（必要时重新加载文件）
func (p *FileProvider) Thresholds() models.ThresholdConfig {
	p.mu.Lock()
	defer p.mu.Unlock()

	info, err := os.Stat(p.path)
	if err != nil {
		p.logger.Warn("Thresholds file unavailable, keeping previous values",
			zap.String("path", p.path),
			zap.Error(err),
		)
		return p.current
	}
	if info.ModTime().Equal(p.modTime) && info.Size() == p.size {
		return p.current
	}

	cfg, err := LoadFile(p.path, p.fallback)
	if err != nil {
		p.logger.Warn("Failed to reload thresholds, keeping previous values",
			zap.String("path", p.path),
			zap.Error(err),
		)
		return p.current
	}

	p.current = cfg
	p.modTime = info.ModTime()
	p.size = info.Size()
	p.logger.Info("Reloaded thresholds",
		zap.String("path", p.path),
		zap.Int("heart_rate_max", cfg.HeartRateMax),
		zap.Float64("temperature_max", cfg.TemperatureMax),
	)
	return cfg
}

// LoadFile 读取 yaml 阈值文件，缺失字段取 base
func LoadFile(path string, base models.ThresholdConfig) (models.ThresholdConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return base, fmt.Errorf("failed to read thresholds file: %w", err)
	}

	cfg := base
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return base, fmt.Errorf("failed to parse thresholds file: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return base, err
	}
	return cfg, nil
}

// SaveFile 把阈值写回 yaml 文件
func SaveFile(path string, cfg models.ThresholdConfig) error {
	if err := Validate(cfg); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal thresholds: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write thresholds file: %w", err)
	}
	return nil
}

// Validate 校验阈值
func Validate(cfg models.ThresholdConfig) error {
	if cfg.HeartRateMax <= 0 {
		return fmt.Errorf("heart_rate_max must be positive, got %d", cfg.HeartRateMax)
	}
	if cfg.TemperatureMax <= 0 {
		return fmt.Errorf("temperature_max must be positive, got %v", cfg.TemperatureMax)
	}
	return nil
}
