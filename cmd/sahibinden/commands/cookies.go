package commands

import (
	"fmt"
	"os"

	"sahibinden-scraper/lib/cookiestore"
	"sahibinden-scraper/lib/serviceutil"

	"github.com/spf13/cobra"
)

func init() {
	cookiesCmd.AddCommand(cookiesImportCmd)
	rootCmd.AddCommand(cookiesCmd)
}

var cookiesCmd = &cobra.Command{
	Use:   "cookies",
	Short: "Manages the saved login session.",
}

var cookiesImportCmd = &cobra.Command{
	Use:   "import <cookies.json>",
	Short: "Replaces the saved session with a cookie export taken from a logged in browser.",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		f, err := os.Open(args[0])
		if err != nil {
			serviceutil.Fatal("failed to open cookie file", err)
		}
		defer f.Close()

		count, err := cookiestore.New(resolvePaths().Cookies).Import(f)
		if err != nil {
			serviceutil.Fatal("failed to import cookies", err)
		}
		fmt.Printf("imported %d cookies\n", count)
	},
}
