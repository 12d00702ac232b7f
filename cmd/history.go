package cmd

import (
	"errors"
	"io"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	pgstore "github.com/JakeFAU/cse-daily-fetcher/internal/storage/postgres"
	"github.com/JakeFAU/cse-daily-fetcher/internal/store"
)

// newHistoryCmd creates the 'history' subcommand, listing recent runs from
// the Postgres ledger.
func newHistoryCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent runs recorded in the ledger",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := resolveEnv(cmd.Context())
			if err != nil {
				return err
			}
			if e.cfg.Ledger.DSN == "" {
				return errors.New("history needs ledger.dsn (CSE_LEDGER_DSN)")
			}
			ledger, err := pgstore.Open(cmd.Context(), pgstore.Config{
				DSN:            e.cfg.Ledger.DSN,
				RunsTable:      e.cfg.Ledger.RunsTable,
				ArtifactsTable: e.cfg.Ledger.ArtifactsTable,
			})
			if err != nil {
				return err
			}
			defer ledger.Close()
			runs, err := ledger.ListRuns(cmd.Context(), limit)
			if err != nil {
				return err
			}
			return writeRuns(cmd.OutOrStdout(), runs)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "number of runs to show")
	return cmd
}

func writeRuns(w io.Writer, runs []store.Run) error {
	t := newTable(w)
	t.AppendHeader(table.Row{"Run", "Started", "Duration", "Status", "Detail"})
	for _, r := range runs {
		dur := "-"
		if r.FinishedAt != nil {
			dur = r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond).String()
		}
		detail := ""
		switch {
		case r.Filename != nil:
			detail = *r.Filename
		case r.ErrorKind != nil:
			detail = *r.ErrorKind
		}
		t.AppendRow(table.Row{r.ID, r.StartedAt.Format(time.RFC3339), dur, r.Status, detail})
	}
	t.Render()
	return nil
}
