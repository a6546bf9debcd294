package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/urban-analytics/simflow/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "simflow",
	Short: "Spatial interaction modelling toolkit",
	Long:  "Estimates commuter and migration flows between geographic zones with production-, attraction-, and doubly-constrained gravity models fit as Poisson regressions.",
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
