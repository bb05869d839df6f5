package commands

import (
	"fmt"
	"os"

	"sahibinden-scraper/lib/appconfig"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func init() {
	configCmd.AddCommand(configShowCmd)
	rootCmd.AddCommand(configCmd)
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspects the crawler configuration.",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Prints the effective configuration, with defaults applied.",
	Run: func(cmd *cobra.Command, args []string) {
		path := resolvePaths().Config
		cfg, err := appconfig.Load(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "warning: %v\n", err)
		}

		settings := table.NewWriter()
		settings.SetOutputMirror(os.Stdout)
		settings.SetTitle(path)
		settings.AppendRows([]table.Row{
			{"check interval", cfg.CheckInterval().String()},
			{"max replaced parts", cfg.MaxReplacedParts},
			{"max painted parts", cfg.MaxPaintedParts},
		})
		settings.SetStyle(table.StyleRounded)
		settings.Render()

		brands := table.NewWriter()
		brands.SetOutputMirror(os.Stdout)
		brands.AppendHeader(table.Row{"Brand", "Enabled", "URL"})
		for _, b := range cfg.Brands {
			brands.AppendRow(table.Row{b.Name, b.IsEnabled(), b.Url})
		}
		brands.SetStyle(table.StyleRounded)
		brands.Render()
	},
}
