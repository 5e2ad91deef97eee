package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Bonjomondo/Health-Check-App/internal/bus"
	"github.com/Bonjomondo/Health-Check-App/internal/models"
	"github.com/Bonjomondo/Health-Check-App/internal/session"

	"github.com/spf13/cobra"
)

var knownCommands = []string{
	models.CommandStartMeasure,
	models.CommandAlarmFall,
	models.CommandAlarmFever,
	models.CommandAlarmHeartRate,
}

func newSendCommand(flags *globalFlags) *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:       "send <command>",
		Short:     "Send a single command to the device over the serial link",
		Long:      "Send one of " + strings.Join(knownCommands, ", ") + " to the device and disconnect.",
		Args:      cobra.ExactArgs(1),
		ValidArgs: knownCommands,
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

			name := strings.ToUpper(args[0])
			b := bus.New(logger)
			defer b.Close()

			sess := session.NewSession(session.NewSerialDialer(cfg.Serial.BaudRate, cfg.Serial.ReadTimeout), b, logger)

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			if err := sess.Connect(ctx, cfg.Serial.Port); err != nil {
				return err
			}
			defer func() {
				sess.Disconnect()
				<-sess.Done()
			}()

			if err := sess.Send(name); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "sent %s to %s\n", name, cfg.Serial.Port)
			return nil
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Second, "Connect timeout")
	return cmd
}
