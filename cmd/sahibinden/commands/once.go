package commands

import (
	"os"
	"time"

	"sahibinden-scraper/lib/serviceutil"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var (
	onceDryRun          bool
	onceRequestInterval time.Duration
	onceDumpDir         string
)

func init() {
	onceCmd.Flags().BoolVar(&onceDryRun, "dry-run", false, "Log accepted listings instead of emailing them.")
	onceCmd.Flags().DurationVar(&onceRequestInterval, "request-interval", time.Second*2, "The minimum time between two requests to the site.")
	onceCmd.Flags().StringVar(&onceDumpDir, "dump-dir", "", "Write every http exchange of the cycle to this directory.")
	rootCmd.AddCommand(onceCmd)
}

var onceCmd = &cobra.Command{
	Use:   "once [--dry-run] [--dump-dir <dir>]",
	Short: "Runs a single cycle and prints the accepted listings.",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		defer setupTelemetry(ctx)()

		a, err := newApp(ctx, resolvePaths(), appOptions{
			DryRun:          onceDryRun,
			RequestInterval: onceRequestInterval,
			DumpDir:         onceDumpDir,
		})
		if err != nil {
			serviceutil.Fatal("failed to initialize", err)
		}
		defer a.Close()

		result, err := a.orchestrator.Run(ctx)
		if err != nil {
			a.tel.ReportBroken("once.cycle", err)
		}

		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.SetTitle("cycle %s: %d processed in %s", result.ID, result.ProcessedCount, result.EndedAt.Sub(result.StartedAt).Round(time.Second))
		t.AppendHeader(table.Row{"ID", "Brand", "Title", "Price", "Year", "Mileage", "Painted", "Replaced"})
		for _, item := range result.Accepted {
			painted, replaced := 0, 0
			if item.Damage != nil {
				painted = item.Damage.PaintedCount()
				replaced = item.Damage.ReplacedCount()
			}
			t.AppendRow(table.Row{item.ID, item.Brand, item.Title, item.Price, item.Year, item.Mileage, painted, replaced})
		}
		t.SetStyle(table.StyleRounded)
		t.Render()
	},
}
