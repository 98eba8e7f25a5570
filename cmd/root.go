package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/lifeline/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "lifeline",
	Short: "Streaming fortune-timeline analysis service",
	Long:  "Builds a chart prompt from four pillars, asks an OpenAI-compatible model for a life timeline with fallback across models, normalizes the reply and settles points per run.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
