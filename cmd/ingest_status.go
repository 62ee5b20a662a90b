package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/urbanrisk-labs/climate-cli/internal/ingest"
)

var ingestStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show ingest sync log",
	Long:  "Displays the sync history for all upstream sources.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		pool, err := ingestPool(ctx)
		if err != nil {
			return err
		}
		defer pool.Close()

		sl := ingest.NewLog(pool)
		entries, err := sl.ListAll(ctx)
		if err != nil {
			return eris.Wrap(err, "ingest status")
		}

		if len(entries) == 0 {
			zap.L().Info("no sync entries found, run 'ingest sync' to start syncing sources")
			return nil
		}

		formatStatusEntries(os.Stdout, entries)
		return nil
	},
}

func init() {
	ingestCmd.AddCommand(ingestStatusCmd)
}

// formatStatusEntries writes a tabular representation of sync entries to w.
func formatStatusEntries(out io.Writer, entries []ingest.LogEntry) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tSOURCE\tSTATUS\tSTARTED\tDURATION\tROWS\tERROR")
	_, _ = fmt.Fprintln(w, "--\t------\t------\t-------\t--------\t----\t-----")

	for _, e := range entries {
		dur := "-"
		if e.CompletedAt != nil {
			d := e.CompletedAt.Sub(e.StartedAt).Round(time.Second)
			dur = d.String()
		}

		errMsg := ""
		if e.Error != "" {
			errMsg = truncate(e.Error, 60)
		}

		_, _ = fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%d\t%s\n",
			e.ID,
			e.Source,
			e.Status,
			e.StartedAt.Format("2006-01-02 15:04"),
			dur,
			e.RowsSynced,
			errMsg,
		)
	}
	_ = w.Flush()
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
