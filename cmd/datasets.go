package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/wildfire-cli/internal/workspace"
)

var datasetsCmd = &cobra.Command{
	Use:   "datasets",
	Short: "List datasets stored in the workspace",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		ws, err := initWorkspace(ctx)
		if err != nil {
			return err
		}
		defer ws.Close() //nolint:errcheck

		infos, err := ws.List(ctx)
		if err != nil {
			return eris.Wrap(err, "datasets")
		}
		if len(infos) == 0 {
			fmt.Fprintln(os.Stderr, "No datasets found.")
			return nil
		}

		formatDatasets(os.Stdout, infos)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(datasetsCmd)
}

// formatDatasets writes a tabular list of workspace datasets to w.
func formatDatasets(out io.Writer, infos []workspace.DatasetInfo) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "NAME\tKIND\tGEOMETRY\tROWS\tFIELDS\tUPDATED")
	_, _ = fmt.Fprintln(w, "----\t----\t--------\t----\t------\t-------")
	for _, info := range infos {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%s\n",
			info.Name,
			info.Kind,
			info.GeometryType,
			info.Rows,
			len(info.Fields),
			info.UpdatedAt.Format("2006-01-02 15:04"),
		)
	}
	_ = w.Flush()
}
