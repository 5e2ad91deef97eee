package cli

import (
	"fmt"

	"github.com/Bonjomondo/Health-Check-App/internal/settings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newThresholdsCommand(flags *globalFlags) *cobra.Command {
	var writePath string

	cmd := &cobra.Command{
		Use:   "thresholds",
		Short: "Print the effective alert thresholds as yaml",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			thresholds, err := effectiveThresholds(cfg)
			if err != nil {
				return err
			}

			if writePath != "" {
				if err := settings.SaveFile(writePath, thresholds); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", writePath)
				return nil
			}

			data, err := yaml.Marshal(thresholds)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}

	cmd.Flags().StringVar(&writePath, "write", "", "Write the thresholds to this yaml file instead of printing")
	return cmd
}
