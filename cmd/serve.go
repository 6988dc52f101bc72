package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/wildfire-cli/internal/monitoring"
	"github.com/sells-group/wildfire-cli/internal/server"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the map project, layers as GeoJSON, exports, and run history",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		ws, err := initWorkspace(ctx)
		if err != nil {
			return err
		}
		defer ws.Close() //nolint:errcheck

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}
		if port <= 0 {
			return eris.Errorf("server.port must be > 0, got %d", port)
		}

		if cfg.Monitor.WebhookURL != "" {
			checker := monitoring.NewChecker(monitoring.NewCollector(st), monitoring.NewAlerter(cfg.Monitor), cfg.Monitor)
			go checker.Run(ctx)
		}

		srv := server.New(server.Config{
			Workspace: ws,
			Runs:      st,
			Manifest:  outputPath(cfg.Present.Manifest),
			ExportDir: cfg.Export.Dir,
		})
		if err := srv.ListenAndServe(ctx, fmt.Sprintf(":%d", port)); err != nil {
			return eris.Wrap(err, "server listen")
		}
		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
