package commands

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/techblue/jboss-controller-operation-executor/pkg/stores"
)

func newHistoryCommand() *cobra.Command {
	var (
		limit      int
		datasource string
		runID      string
		since      time.Duration
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recorded management operations",
		Long: `Show the management round trips recorded in the operation journal, newest
first. The journal is read from --journal or from the config file.`,
		Example: `  dsctl history --journal dsctl.db
  dsctl history --datasource OrdersDS --since 24h --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := newRuntime(cmd, runtimeOptions{needJournal: true})
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			filter := stores.OperationFilter{
				RunID:      runID,
				Datasource: datasource,
				Limit:      limit,
			}
			switch len(globals.profiles) {
			case 0:
			case 1:
				filter.Profile = globals.profiles[0]
			default:
				return r.finish(ctx, fmt.Errorf("history takes at most one --profile"))
			}
			if since > 0 {
				filter.Since = time.Now().Add(-since)
			}

			records, err := r.store.ListOperations(ctx, filter)
			if err != nil {
				return r.finish(ctx, err)
			}

			if globals.jsonOutput {
				if records == nil {
					records = []*stores.OperationRecord{}
				}
				return r.finish(ctx, printJSON(cmd, records))
			}
			return r.finish(ctx, writeOperations(cmd.OutOrStdout(), records))
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 50, "maximum number of records (0 for all)")
	cmd.Flags().StringVar(&datasource, "datasource", "", "only show operations on this datasource")
	cmd.Flags().StringVar(&runID, "run", "", "only show operations of this run")
	cmd.Flags().DurationVar(&since, "since", 0, "only show operations newer than this (e.g. 1h)")

	return cmd
}

// writeOperations prints journal records as a table.
func writeOperations(out io.Writer, records []*stores.OperationRecord) error {
	if len(records) == 0 {
		_, err := fmt.Fprintln(out, "No operations recorded.")
		return err
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tOPERATION\tPROFILE\tDATASOURCE\tOUTCOME\tDURATION\tDETAIL")
	for _, rec := range records {
		profile := rec.Profile
		if profile == "" {
			profile = "-"
		}
		detail := rec.ErrorKind
		if rec.FailureDescription != nil {
			detail = *rec.FailureDescription
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%dms\t%s\n",
			rec.CreatedAt.Local().Format(time.DateTime),
			rec.Operation,
			profile,
			rec.Datasource,
			rec.Outcome,
			rec.DurationMs,
			detail,
		)
	}
	return w.Flush()
}
