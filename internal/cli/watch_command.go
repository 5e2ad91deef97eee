package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	rediscommon "github.com/Bonjomondo/Health-Check-App/internal/common/redis"

	"github.com/spf13/cobra"
)

func newWatchCommand(flags *globalFlags) *cobra.Command {
	var (
		alerts      bool
		group       string
		maxMessages int
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Follow the published event streams in Redis",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			stream := cfg.Publisher.DataStream
			if alerts {
				stream = cfg.Publisher.AlertStream
			}

			client := rediscommon.NewRedisClient(&cfg.Redis)
			defer client.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if err := rediscommon.Ping(ctx, client); err != nil {
				return fmt.Errorf("failed to connect to redis: %w", err)
			}
			if err := rediscommon.CreateConsumerGroup(ctx, client, stream, group); err != nil {
				return err
			}

			consumer := fmt.Sprintf("%s-%d", hostname(), os.Getpid())
			out := cmd.OutOrStdout()
			seen := 0
			for {
				msgs, err := rediscommon.ReadFromStream(ctx, client, stream, group, consumer, 10, 2*time.Second)
				if err != nil {
					if ctx.Err() != nil {
						return nil
					}
					return fmt.Errorf("failed to read stream %s: %w", stream, err)
				}

				ids := make([]string, 0, len(msgs))
				for _, msg := range msgs {
					fmt.Fprintf(out, "%s\t%v\t%v\n", msg.ID, msg.Values["type"], msg.Values["data"])
					ids = append(ids, msg.ID)
				}
				if err := rediscommon.AckMessages(context.Background(), client, stream, group, ids...); err != nil {
					return fmt.Errorf("failed to ack messages: %w", err)
				}

				seen += len(msgs)
				if maxMessages > 0 && seen >= maxMessages {
					return nil
				}
			}
		},
	}

	cmd.Flags().BoolVar(&alerts, "alerts", false, "Follow the alert stream instead of the data stream")
	cmd.Flags().StringVar(&group, "group", "health-check-cli", "Consumer group name")
	cmd.Flags().IntVar(&maxMessages, "max", 0, "Exit after this many messages (0 = follow until interrupted)")
	return cmd
}

func hostname() string {
	name, err := os.Hostname()
	if err != nil {
		return "cli"
	}
	return name
}
