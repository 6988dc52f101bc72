package main

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/wildfire-cli/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "wildfire-cli",
	Short: "Wildfire land ownership enrichment pipeline",
	Long: "Selects an ecoregion of interest, filters wildfire events to it, buffers them at several distances, " +
		"joins every event and buffer against PAD-US land ownership, and exports and registers the results as map layers.",
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		c, err := config.Load()
		if err != nil {
			return eris.Wrap(err, "load config")
		}
		cfg = c

		f := cmd.Flags()
		if f.Changed("log-level") {
			cfg.Log.Level, _ = f.GetString("log-level")
		}
		if f.Changed("log-format") {
			cfg.Log.Format, _ = f.GetString("log-format")
		}
		if err := config.InitLogger(cfg.Log); err != nil {
			return eris.Wrap(err, "init logger")
		}
		return nil
	},
	PersistentPostRun: func(*cobra.Command, []string) {
		_ = zap.L().Sync()
	},
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().String("log-level", "", "log level: debug, info, warn, error (default from config)")
	rootCmd.PersistentFlags().String("log-format", "", "log format: json or console (default from config)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
