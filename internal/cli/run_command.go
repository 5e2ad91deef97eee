package cli

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/Bonjomondo/Health-Check-App/internal/service"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newRunCommand(flags *globalFlags) *cobra.Command {
	var shutdownTimeout time.Duration

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Connect to the device and run the telemetry service",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			logger, err := newLogger(cfg)
			if err != nil {
				return fmt.Errorf("failed to initialize logger: %w", err)
			}
			defer logger.Sync()

			logger.Info("Starting health-check-app",
				zap.String("version", Version),
				zap.String("link_mode", cfg.Link.Mode),
				zap.String("serial_port", cfg.Serial.Port),
				zap.String("mqtt_broker", cfg.MQTT.Broker),
			)

			svc, err := service.NewHealthService(cfg, logger)
			if err != nil {
				return fmt.Errorf("failed to create service: %w", err)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if err := svc.Start(ctx); err != nil {
				stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
				defer cancel()
				_ = svc.Stop(stopCtx)
				return err
			}

			<-ctx.Done()
			logger.Info("Received signal, shutting down")

			stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := svc.Stop(stopCtx); err != nil {
				logger.Error("Error during shutdown", zap.Error(err))
			}

			logger.Info("Service stopped")
			return nil
		},
	}

	cmd.Flags().DurationVar(&shutdownTimeout, "shutdown-timeout", 10*time.Second, "Graceful shutdown timeout")
	return cmd
}
