package cli

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/Bonjomondo/Health-Check-App/internal/common/database"
	"github.com/Bonjomondo/Health-Check-App/internal/repository"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newAlertsCommand(flags *globalFlags) *cobra.Command {
	var (
		source string
		limit  int
	)

	cmd := &cobra.Command{
		Use:   "alerts",
		Short: "List recent alerts from the alert history database",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			db, err := database.NewPostgresDB(cmd.Context(), &cfg.Database)
			if err != nil {
				return err
			}
			defer database.Close(db)

			repo := repository.NewAlertLogRepository(db, zap.NewNop())
			alerts, err := repo.ListRecentAlertLogs(cmd.Context(), source, limit)
			if err != nil {
				return err
			}
			if len(alerts) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No alerts recorded yet.")
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "TIME\tSOURCE\tKIND\tMESSAGE")
			for _, alert := range alerts {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
					alert.Timestamp.Local().Format(time.DateTime),
					alert.Source,
					alert.Kind,
					alert.Message,
				)
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVar(&source, "source", "", "Filter by link (serial or mqtt)")
	cmd.Flags().IntVar(&limit, "limit", 20, "Max alerts to show")
	return cmd
}
