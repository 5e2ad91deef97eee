// Package cli 命令行入口：运行服务、离线解码、发送命令与查询报警历史。
package cli

import (
	"github.com/Bonjomondo/Health-Check-App/internal/common/logger"
	"github.com/Bonjomondo/Health-Check-App/internal/config"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// ServiceName 服务名称（日志字段 service_name）
const ServiceName = "health-check-app"

// Version 版本号（构建时可通过 -ldflags 覆盖）
var Version = "0.1.0"

// globalFlags 覆盖环境变量配置的命令行参数
type globalFlags struct {
	port     string
	mode     string
	logLevel string
}

// NewRootCmd 创建根命令；不带子命令时等同于 run
func NewRootCmd() *cobra.Command {
	flags := &globalFlags{}

	runCmd := newRunCommand(flags)

	root := &cobra.Command{
		Use:           "health-check-app",
		Short:         "Wearable health telemetry gateway",
		Long:          "Connects to a wearable health band, decodes its telemetry, raises alerts and forwards events.",
		Version:       Version,
		RunE:          runCmd.RunE,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&flags.port, "port", "", "Device serial port (overrides SERIAL_PORT)")
	root.PersistentFlags().StringVar(&flags.mode, "mode", "", "Link mode: serial, mqtt or both (overrides LINK_MODE)")
	root.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "Log level (overrides LOG_LEVEL)")

	root.AddCommand(
		runCmd,
		newDecodeCommand(flags),
		newSendCommand(flags),
		newAlertsCommand(flags),
		newThresholdsCommand(flags),
		newWatchCommand(flags),
		newStatusCommand(flags),
	)
	return root
}

// loadConfig 加载环境变量配置并应用命令行覆盖
func loadConfig(flags *globalFlags) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if flags.port != "" {
		cfg.Serial.Port = flags.port
	}
	if flags.mode != "" {
		cfg.Link.Mode = flags.mode
	}
	if flags.logLevel != "" {
		cfg.Log.Level = flags.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	if cfg.Log.File != "" {
		return logger.NewLoggerWithFile(cfg.Log.Level, cfg.Log.Format, ServiceName, logger.FileOptions{
			Path:       cfg.Log.File,
			MaxSizeMB:  20,
			MaxBackups: 5,
			MaxAgeDays: 14,
			Compress:   true,
		})
	}
	return logger.NewLogger(cfg.Log.Level, cfg.Log.Format, ServiceName)
}
