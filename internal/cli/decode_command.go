package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/Bonjomondo/Health-Check-App/internal/codec"
	"github.com/Bonjomondo/Health-Check-App/internal/config"
	"github.com/Bonjomondo/Health-Check-App/internal/evaluator"
	"github.com/Bonjomondo/Health-Check-App/internal/framing"
	"github.com/Bonjomondo/Health-Check-App/internal/models"
	"github.com/Bonjomondo/Health-Check-App/internal/settings"

	"github.com/spf13/cobra"
)

// decodedFrame decode 命令的输出（每帧一行 JSON）
type decodedFrame struct {
	Kind            string             `json:"kind"`
	Reading         *models.Reading    `json:"reading,omitempty"`
	Battery         *int               `json:"battery,omitempty"`
	Reason          string             `json:"reason,omitempty"`
	Alerts          []models.AlertKind `json:"alerts,omitempty"`
	HeartRateStatus string             `json:"heart_rate_status,omitempty"`
}

func newDecodeCommand(flags *globalFlags) *cobra.Command {
	var maxFrameSize int

	cmd := &cobra.Command{
		Use:   "decode [file]",
		Short: "Decode a captured device byte stream (stdin by default) and evaluate alerts",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			thresholds, err := effectiveThresholds(cfg)
			if err != nil {
				return err
			}

			in := cmd.InOrStdin()
			if len(args) == 1 {
				f, err := os.Open(args[0])
				if err != nil {
					return fmt.Errorf("failed to open capture: %w", err)
				}
				defer f.Close()
				in = f
			}

			var opts []framing.Option
			if maxFrameSize > 0 {
				opts = append(opts, framing.WithMaxFrameSize(maxFrameSize))
			}
			return decodeStream(in, cmd.OutOrStdout(), thresholds, opts...)
		},
	}

	cmd.Flags().IntVar(&maxFrameSize, "max-frame-size", 0, "Discard unterminated frames longer than this (0 = unlimited)")
	return cmd
}

func decodeStream(in io.Reader, out io.Writer, thresholds models.ThresholdConfig, opts ...framing.Option) error {
	extractor := framing.NewExtractor(opts...)
	enc := json.NewEncoder(out)
	buf := make([]byte, 4096)

	for {
		n, err := in.Read(buf)
		for _, frame := range extractor.Write(buf[:n]) {
			if encErr := enc.Encode(describeFrame(frame, thresholds)); encErr != nil {
				return encErr
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("failed to read input: %w", err)
		}
	}
}

func describeFrame(frame []byte, thresholds models.ThresholdConfig) decodedFrame {
	res := codec.Decode(frame)
	out := decodedFrame{Kind: res.Kind.String()}

	switch res.Kind {
	case codec.KindReading:
		reading := res.Reading
		out.Reading = &reading
		for _, alert := range evaluator.Evaluate(reading, thresholds) {
			out.Alerts = append(out.Alerts, alert.Kind)
		}
		if reading.HasHeartRate() {
			out.HeartRateStatus = string(evaluator.ClassifyHeartRate(reading.HeartRate, thresholds))
		}
	case codec.KindBatteryUpdate:
		battery := res.Battery
		out.Battery = &battery
	default:
		out.Reason = res.Reason
	}
	return out
}

// effectiveThresholds 阈值文件优先，否则使用环境变量
func effectiveThresholds(cfg *config.Config) (models.ThresholdConfig, error) {
	if cfg.Thresholds.File == "" {
		return cfg.ThresholdConfig(), nil
	}
	return settings.LoadFile(cfg.Thresholds.File, cfg.ThresholdConfig())
}
