package commands

import (
	"os"
	"sort"

	"sahibinden-scraper/lib/decisionstore"
	"sahibinden-scraper/lib/serviceutil"
	"sahibinden-scraper/lib/timezone"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var decisionsLimit int

func init() {
	decisionsCmd.Flags().IntVarP(&decisionsLimit, "limit", "n", 20, "The amount of recent decisions to print.")
	rootCmd.AddCommand(decisionsCmd)
}

var decisionsCmd = &cobra.Command{
	Use:   "decisions [-n <limit>]",
	Short: "Prints the most recent accept/reject decisions and the totals per outcome.",
	Run: func(cmd *cobra.Command, args []string) {
		db, err := decisionstore.OpenDB(resolvePaths().Decisions)
		if err != nil {
			serviceutil.Fatal("failed to open decision history", err)
		}
		defer db.Close()
		store := decisionstore.NewStore(db)

		recent, err := store.Recent(cmd.Context(), decisionsLimit)
		if err != nil {
			serviceutil.Fatal("failed to read decisions", err)
		}
		counts, err := store.CountByOutcome(cmd.Context())
		if err != nil {
			serviceutil.Fatal("failed to count decisions", err)
		}

		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.AppendHeader(table.Row{"Decided", "Cycle", "Listing", "Brand", "Outcome", "Painted", "Replaced", "Hood"})
		for _, d := range recent {
			t.AppendRow(table.Row{
				timezone.Format(d.DecidedAt),
				d.CycleID,
				d.ItemID,
				d.Brand,
				d.Outcome,
				d.PaintedCount,
				d.ReplacedCount,
				d.HoodDamageKind,
			})
		}
		t.SetStyle(table.StyleRounded)
		t.Render()

		outcomes := make([]string, 0, len(counts))
		for outcome := range counts {
			outcomes = append(outcomes, outcome)
		}
		sort.Strings(outcomes)

		totals := table.NewWriter()
		totals.SetOutputMirror(os.Stdout)
		totals.AppendHeader(table.Row{"Outcome", "Total"})
		for _, outcome := range outcomes {
			totals.AppendRow(table.Row{outcome, counts[outcome]})
		}
		totals.SetStyle(table.StyleRounded)
		totals.Render()
	},
}
