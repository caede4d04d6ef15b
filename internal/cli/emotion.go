package cli

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/konvergen/voicegate/internal/config"
	"github.com/konvergen/voicegate/internal/emotion"
)

func newEmotionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "emotion <text>",
		Short: "Classify a text snippet and print the result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(paths.Config)
			if err != nil {
				return err
			}

			classifier := emotion.NewClassifier(cfg.Emotion.BackendURL, log,
				emotion.WithTimeout(time.Duration(cfg.Emotion.TimeoutSeconds)*time.Second))

			res := classifier.Classify(cmd.Context(), args[0])

			out, err := json.MarshalIndent(res, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			return nil
		},
	}
}
