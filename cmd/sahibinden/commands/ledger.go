package commands

import (
	"fmt"
	"os"

	"sahibinden-scraper/lib/ledger"
	"sahibinden-scraper/lib/serviceutil"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func init() {
	ledgerCmd.AddCommand(ledgerListCmd)
	rootCmd.AddCommand(ledgerCmd)
}

var ledgerCmd = &cobra.Command{
	Use:   "ledger",
	Short: "Inspects the set of listings that were already evaluated.",
}

var ledgerListCmd = &cobra.Command{
	Use:   "list",
	Short: "Prints every evaluated listing id in the order they were first seen.",
	Run: func(cmd *cobra.Command, args []string) {
		l, err := ledger.Open(resolvePaths().Ledger)
		if err != nil {
			serviceutil.Fatal("failed to open ledger", err)
		}

		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.AppendHeader(table.Row{"#", "Listing ID"})
		for i, id := range l.IDs() {
			t.AppendRow(table.Row{i + 1, id})
		}
		t.AppendFooter(table.Row{"", fmt.Sprintf("%d seen", l.Len())})
		t.SetStyle(table.StyleRounded)
		t.Render()
	},
}
