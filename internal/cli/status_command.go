package cli

import (
	"encoding/json"
	"errors"
	"fmt"

	rediscommon "github.com/Bonjomondo/Health-Check-App/internal/common/redis"
	"github.com/Bonjomondo/Health-Check-App/internal/consumer"
	"github.com/Bonjomondo/Health-Check-App/internal/publisher"
	"github.com/Bonjomondo/Health-Check-App/internal/session"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// newStatusCommand 读取服务缓存在 Redis 中的设备状态
func newStatusCommand(flags *globalFlags) *cobra.Command {
	var source string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the last known device state cached by a running service",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			client := rediscommon.NewRedisClient(&cfg.Redis)
			defer client.Close()

			cache := publisher.NewStateCache(
				publisher.NewRedisKVStore(client),
				cfg.Publisher.StateKeyPrefix,
				cfg.Publisher.StateTTL,
				zap.NewNop(),
			)

			sources := []string{session.SourceSerial, consumer.SourceMQTT}
			if source != "" {
				sources = []string{source}
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			found := 0
			for _, src := range sources {
				state, err := cache.Load(cmd.Context(), src)
				if errors.Is(err, publisher.ErrCacheMiss) {
					continue
				}
				if err != nil {
					return err
				}
				if err := enc.Encode(state); err != nil {
					return err
				}
				found++
			}
			if found == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No device state cached.")
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&source, "source", "", "Only show this link (serial or mqtt)")
	return cmd
}
