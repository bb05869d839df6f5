package commands

import (
	"context"
	"log/slog"
	"os"
	"time"

	"sahibinden-scraper/internal/components/chrono"
	"sahibinden-scraper/lib/serviceutil"
	"sahibinden-scraper/lib/telemetry"
	"sahibinden-scraper/services/control"
	"sahibinden-scraper/services/scheduler"

	"github.com/spf13/cobra"
)

var (
	runAddr            string
	runNoSchedule      bool
	runDryRun          bool
	runRequestInterval time.Duration
)

func init() {
	runCmd.Flags().StringVar(&runAddr, "addr", ":5000", "The address the control api listens on, empty disables it.")
	runCmd.Flags().BoolVar(&runNoSchedule, "no-schedule", false, "Only run cycles when triggered through the control api.")
	runCmd.Flags().BoolVar(&runDryRun, "dry-run", false, "Log accepted listings instead of emailing them.")
	runCmd.Flags().DurationVar(&runRequestInterval, "request-interval", time.Second*2, "The minimum time between two requests to the site.")
	rootCmd.AddCommand(runCmd)
}

// setupTelemetry starts otlp export if telemetry.json5 is present, the returned
// function flushes and stops it.
func setupTelemetry(ctx context.Context) func() {
	tel, err := telemetry.SetupFromEnv(ctx, "sahibinden")
	if err != nil {
		serviceutil.Fatal("setup telemetry", err)
	}
	if tel.Enabled() {
		telemetry.InstrumentPerfStats(ctx, time.Second*30)
	}
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second*5)
		defer cancel()
		err := tel.Shutdown(ctx)
		if err != nil {
			slog.Warn("failed to shut down telemetry", "err", err)
		}
	}
}

var runCmd = &cobra.Command{
	Use:   "run [--addr <host:port>] [--no-schedule] [--dry-run]",
	Short: "Runs cycles on the configured interval and serves the control api.",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		defer setupTelemetry(ctx)()

		a, err := newApp(ctx, resolvePaths(), appOptions{
			DryRun:          runDryRun,
			RequestInterval: runRequestInterval,
		})
		if err != nil {
			serviceutil.Fatal("failed to initialize", err)
		}
		defer a.Close()

		cron := chrono.NewStandardCron(a.tel)
		defer cron.Stop()
		sched := scheduler.New(a.orchestrator, cron, a.tel)

		if !runNoSchedule {
			cfg, err := a.loadConfig()
			if err != nil {
				a.tel.ReportWarning("run.config", err)
			}
			slog.Info("scheduling cycles", "every", cfg.CheckInterval().String())
			err = sched.Start(ctx, cfg.CheckInterval())
			if err != nil {
				serviceutil.Fatal("failed to start scheduler", err)
			}
		}

		if runAddr != "" {
			deps := control.Deps{
				Scheduler:    sched,
				Ledger:       a.ledger,
				Status:       a.status,
				Cookies:      a.cookies,
				OTP:          a.otp,
				ConfigPath:   a.paths.Config,
				AcceptedPath: a.paths.Accepted,
				AccessToken:  os.Getenv("CONTROL_ACCESS_TOKEN"),
				Telemetry:    a.tel,
			}
			if a.decisions != nil {
				deps.Decisions = a.decisions
			}
			server := control.NewServer(ctx, deps)
			err = serviceutil.ServeHttp(ctx, runAddr, server.Handler())
			if err != nil {
				a.tel.ReportBroken("run.control", err)
			}
		} else {
			<-ctx.Done()
		}

		slog.Info("shutting down")
		sched.Stop()
		sched.Wait()
	},
}
