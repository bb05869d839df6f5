package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"
)

const defaultContainerDataDir = "/app/data"

var (
	dataDir    string
	configPath string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "sahibinden",
	Short: "sahibinden watches vehicle listings and notifies about low-damage ones.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return initSlog(logLevel)
	},
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", defaultDataDir(), "The directory holding the ledger, cookies and status files.")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "The configuration file (defaults to <data-dir>/config.json).")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "One of debug, info, warn, error.")
}

func defaultDataDir() string {
	if dir := os.Getenv("SAHIBINDEN_DATA_DIR"); dir != "" {
		return dir
	}
	if info, err := os.Stat(defaultContainerDataDir); err == nil && info.IsDir() {
		return defaultContainerDataDir
	}
	return "."
}

func initSlog(level string) error {
	var l slog.Level
	err := l.UnmarshalText([]byte(level))
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", level, err)
	}
	logger := slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      l,
		TimeFormat: time.DateTime,
	}))
	slog.SetDefault(logger)
	return nil
}

// Paths are the files the crawler keeps in its data directory.
type Paths struct {
	Dir       string
	Config    string
	Ledger    string
	Accepted  string
	Cookies   string
	OTP       string
	Status    string
	Decisions string
	Lock      string
}

func resolvePaths() Paths {
	p := Paths{
		Dir:       dataDir,
		Config:    configPath,
		Ledger:    filepath.Join(dataDir, "seen_ads.json"),
		Accepted:  filepath.Join(dataDir, "filtered_listings.json"),
		Cookies:   filepath.Join(dataDir, "sahibinden_cookies.json"),
		OTP:       filepath.Join(dataDir, "otp.json"),
		Status:    filepath.Join(dataDir, "status.json"),
		Decisions: filepath.Join(dataDir, "decisions.db"),
		Lock:      filepath.Join(dataDir, ".sahibinden.lock"),
	}
	if p.Config == "" {
		p.Config = filepath.Join(dataDir, "config.json")
	}
	if dsn := os.Getenv("DECISIONS_DSN"); dsn != "" {
		p.Decisions = dsn
	}
	return p
}

func ExecuteContext(ctx context.Context) {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
