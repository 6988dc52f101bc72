package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/wildfire-cli/internal/enrich"
	"github.com/sells-group/wildfire-cli/internal/metrics"
	"github.com/sells-group/wildfire-cli/internal/model"
	"github.com/sells-group/wildfire-cli/internal/monitoring"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the full enrichment pipeline",
	Long: `Loads the events, ecoregions, and ownership datasets (local paths, zip archives,
or http(s)/ftp URLs), selects the ecoregions matching --predicate, filters events to them,
buffers the events at each --distances tier, joins every result against ownership, and
exports and registers the enriched datasets.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		applyRunFlags(cmd)
		log := zap.L().With(zap.String("command", "run"))

		env, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		loaded, err := enrich.LoadInputs(ctx, env.Resolver, env.Workspace, enrich.Inputs{
			Events:    cfg.Inputs.Events,
			Regions:   cfg.Inputs.Regions,
			Ownership: cfg.Inputs.Ownership,
		})
		if err != nil {
			writeMetrics(log)
			return err
		}

		summary, runErr := env.Pipeline.Run(ctx, pipelineParams(loaded))
		writeMetrics(log)
		sendRunAlerts(ctx, summary, runErr)
		if runErr != nil {
			if enrich.IsConfigError(runErr) {
				return eris.Wrap(runErr, "invalid run parameters")
			}
			return runErr
		}

		return printSummary(os.Stdout, summary)
	},
}

// applyRunFlags copies explicitly set flags over the loaded configuration.
func applyRunFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	if f.Changed("events") {
		cfg.Inputs.Events, _ = f.GetString("events")
	}
	if f.Changed("regions") {
		cfg.Inputs.Regions, _ = f.GetString("regions")
	}
	if f.Changed("ownership") {
		cfg.Inputs.Ownership, _ = f.GetString("ownership")
	}
	if f.Changed("predicate") {
		cfg.Region.Predicate, _ = f.GetString("predicate")
	}
	if f.Changed("distances") {
		cfg.Buffer.DistancesKM, _ = f.GetFloat64Slice("distances")
	}
	if f.Changed("output") {
		cfg.Export.Dir, _ = f.GetString("output")
	}
	if f.Changed("workspace") {
		cfg.Workspace.Dir, _ = f.GetString("workspace")
	}
	if f.Changed("formats") {
		cfg.Export.Formats, _ = f.GetStringSlice("formats")
	}
	if f.Changed("join-operation") {
		cfg.Join.Operation, _ = f.GetString("join-operation")
	}
	if f.Changed("metrics-textfile") {
		cfg.Metrics.Textfile, _ = f.GetString("metrics-textfile")
	}
}

func writeMetrics(log *zap.Logger) {
	if cfg.Metrics.Textfile == "" {
		return
	}
	if err := metrics.WriteTextfile(cfg.Metrics.Textfile); err != nil {
		log.Warn("failed to write metrics textfile", zap.Error(err))
	}
}

// sendRunAlerts posts run failure and registration warning alerts when a
// webhook is configured.
func sendRunAlerts(ctx context.Context, summary *model.RunSummary, runErr error) {
	if cfg.Monitor.WebhookURL == "" {
		return
	}
	alerter := monitoring.NewAlerter(cfg.Monitor)
	alerter.SendAlerts(context.WithoutCancel(ctx), alerter.EvaluateRun(summary, runErr))
}

// printSummary writes the run summary as indented JSON.
func printSummary(w io.Writer, summary *model.RunSummary) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(summary); err != nil {
		return eris.Wrap(err, "encode run summary")
	}
	for _, warn := range summary.Warnings {
		_, _ = fmt.Fprintf(os.Stderr, "warning: %s\n", warn)
	}
	return nil
}

func init() {
	f := runCmd.Flags()
	f.String("events", "", "wildfire events dataset (path, zip, or URL)")
	f.String("regions", "", "ecoregions dataset (path, zip, or URL)")
	f.String("ownership", "", "PAD-US ownership dataset (path, zip, or URL)")
	f.String("predicate", "", `attribute predicate selecting the region of interest, e.g. "NA_L3NAME = 'Sonoran Desert'"`)
	f.Float64Slice("distances", nil, "buffer distances in kilometers (default from config: 0.1,0.5,1)")
	f.String("output", "", "output directory for exports and the workspace")
	f.String("workspace", "", "directory holding the workspace database (default: the output directory)")
	f.StringSlice("formats", nil, "export formats: csv, xlsx, geojson")
	f.String("join-operation", "", "one_to_one or one_to_many")
	f.String("metrics-textfile", "", "write Prometheus metrics to this file after the run")
	rootCmd.AddCommand(runCmd)
}
