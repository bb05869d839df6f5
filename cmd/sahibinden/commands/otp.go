package commands

import (
	"fmt"

	"sahibinden-scraper/lib/otpstore"
	"sahibinden-scraper/lib/serviceutil"

	"github.com/spf13/cobra"
)

func init() {
	otpCmd.AddCommand(otpSubmitCmd)
	rootCmd.AddCommand(otpCmd)
}

var otpCmd = &cobra.Command{
	Use:   "otp",
	Short: "Hands one-time passcodes to a crawler waiting on a login.",
}

var otpSubmitCmd = &cobra.Command{
	Use:   "submit <code>",
	Short: "Submits the passcode the site sent, the running crawler picks it up within a few seconds.",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		err := otpstore.New(resolvePaths().OTP).Submit(args[0])
		if err != nil {
			serviceutil.Fatal("failed to submit otp", err)
		}
		fmt.Println("otp submitted")
	},
}
