package main

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/nerrad567/satlink-core/internal/infrastructure/database"
	"github.com/nerrad567/satlink-core/internal/journal"
	"github.com/nerrad567/satlink-core/migrations"
)

func newJournalCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "journal",
		Short: "Query the tuning journal",
	}
	cmd.AddCommand(newJournalListCmd(opts), newJournalSummaryCmd(opts))
	return cmd
}

// openJournal opens the configured database, migrating it first so a
// fresh install can be queried before satlinkd has run.
func (o *rootOptions) openJournal(ctx context.Context) (*journal.SQLiteRepository, func(), error) {
	cfg, err := o.loadConfig()
	if err != nil {
		return nil, nil, err
	}
	db, err := database.Open(cfg.Database)
	if err != nil {
		return nil, nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Migrate(ctx, migrations.FS); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("running migrations: %w", err)
	}
	return journal.NewSQLiteRepository(db.DB), func() { _ = db.Close() }, nil
}

func newJournalListCmd(opts *rootOptions) *cobra.Command {
	var (
		f     journal.Filter
		since time.Duration
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent tuning attempts, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := commandContext(cmd)
			repo, closeDB, err := opts.openJournal(ctx)
			if err != nil {
				return err
			}
			defer closeDB()

			if since > 0 {
				f.Since = time.Now().Add(-since)
			}
			res, err := repo.List(ctx, f)
			if err != nil {
				return err
			}
			return opts.render(cmd.OutOrStdout(), res, func(tw *tabwriter.Writer) {
				fmt.Fprintln(tw, "FINISHED\tSATCONF\tMUX\tELEMENT\tFREQ\tPOL\tSTATE\tGRACE\tDURATION\tERROR")
				for _, e := range res.Entries {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%ds\t%s\t%s\n",
						e.FinishedAt.Local().Format(time.DateTime), e.SatConf, e.MuxID, e.ElementID,
						formatMHz(e.Frequency), e.Polarisation, e.State, e.GraceSeconds,
						e.Duration().Round(time.Millisecond), e.ErrorCode)
				}
				fmt.Fprintf(tw, "\n%d of %d\n", len(res.Entries), res.Total)
			})
		},
	}
	cmd.Flags().StringVar(&f.SatConf, "satconf", "", "Only attempts on this satconf")
	cmd.Flags().StringVar(&f.MuxID, "mux", "", "Only attempts for this mux")
	cmd.Flags().StringVar(&f.State, "state", "", "Only attempts that ended in this state (locked, failed, cancelled)")
	cmd.Flags().DurationVar(&since, "since", 0, "Only attempts finished within this duration")
	cmd.Flags().IntVar(&f.Limit, "limit", 0, "Page size (default 50, max 500)")
	cmd.Flags().IntVar(&f.Offset, "offset", 0, "Entries to skip")
	return cmd
}

// summaryRow adds the lock rate to a journal summary for display.
type summaryRow struct {
	journal.Summary
	LockRate float64 `json:"lock_rate"`
}

func newJournalSummaryCmd(opts *rootOptions) *cobra.Command {
	var since time.Duration
	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Lock rate and rotor grace per satconf",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := commandContext(cmd)
			repo, closeDB, err := opts.openJournal(ctx)
			if err != nil {
				return err
			}
			defer closeDB()

			sums, err := repo.Summaries(ctx, time.Now().Add(-since))
			if err != nil {
				return err
			}
			rows := make([]summaryRow, 0, len(sums))
			for _, s := range sums {
				rows = append(rows, summaryRow{Summary: s, LockRate: s.LockRate()})
			}
			return opts.render(cmd.OutOrStdout(), rows, func(tw *tabwriter.Writer) {
				fmt.Fprintln(tw, "SATCONF\tATTEMPTS\tLOCKED\tFAILED\tCANCELLED\tLOCK RATE\tAVG GRACE\tLAST")
				for _, r := range rows {
					fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%d\t%.0f%%\t%.1fs\t%s\n",
						r.SatConf, r.Attempts, r.Locked, r.Failed, r.Cancelled,
						r.LockRate*100, r.AvgGrace, r.LastFinished.Local().Format(time.DateTime))
				}
			})
		},
	}
	cmd.Flags().DurationVar(&since, "since", 24*time.Hour, "Window to summarise")
	return cmd
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
