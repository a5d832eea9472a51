package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"audittrail/internal/app"
	"audittrail/internal/audit"
)

var historyFlags struct {
	table  string
	ref    string
	limit  int
	asJSON bool
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show the audit history of one row",
	Example: `  audittrail history --table orders --ref 42
  audittrail history --table orders --ref 42 --json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			records, err := a.AuditStore().History(ctx, historyFlags.table, historyFlags.ref, historyFlags.limit)
			if err != nil {
				return err
			}
			if historyFlags.asJSON {
				return writeHistoryJSON(cmd.OutOrStdout(), records)
			}
			return writeHistory(cmd.OutOrStdout(), records)
		})
	},
}

func init() {
	historyCmd.Flags().StringVar(&historyFlags.table, "table", "", "referenced table, as stored in the audit trail")
	historyCmd.Flags().StringVar(&historyFlags.ref, "ref", "", "reference id of the row")
	historyCmd.Flags().IntVar(&historyFlags.limit, "limit", 50, "maximum number of entries")
	historyCmd.Flags().BoolVar(&historyFlags.asJSON, "json", false, "print JSON instead of a table")
	_ = historyCmd.MarkFlagRequired("table")
	_ = historyCmd.MarkFlagRequired("ref")
	rootCmd.AddCommand(historyCmd)
}

func writeHistory(w io.Writer, records []audit.Record) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tWHEN\tACTION\tUSER\tCOLUMN\tOLD\tNEW\tRECORD")
	for _, r := range records {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			r.ID, r.CreatedAt.Format(time.RFC3339), r.Action, r.User(),
			r.Column(), r.Old(), r.New(), r.Snapshot())
	}
	return tw.Flush()
}

func writeHistoryJSON(w io.Writer, records []audit.Record) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(records)
}
