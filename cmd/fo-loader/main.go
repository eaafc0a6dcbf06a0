package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/yourusername/nse-analytics/internal/archive"
	"github.com/yourusername/nse-analytics/internal/config"
	"github.com/yourusername/nse-analytics/internal/database"
	"github.com/yourusername/nse-analytics/internal/health"
	applog "github.com/yourusername/nse-analytics/internal/logger"
	"github.com/yourusername/nse-analytics/internal/loader"
	"github.com/yourusername/nse-analytics/internal/metrics"
	"github.com/yourusername/nse-analytics/internal/normalize"
	"github.com/yourusername/nse-analytics/internal/nse"
	"github.com/yourusername/nse-analytics/internal/repository"
	"github.com/yourusername/nse-analytics/internal/scheduler"
	"github.com/yourusername/nse-analytics/internal/service"
)

// Build information - set via ldflags
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

var (
	configFile string
	logger     *logrus.Logger
	cfg        *config.Config
)

// load flags
var (
	startDate  string
	endDate    string
	sourceDir  string
	retryBound int
	download   bool
)

// report flags
var (
	reportYear  int
	reportMonth int
	compare     bool
)

const dateLayout = "2006-01-02"

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "./config/config.yaml", "Path to configuration file")

	loadCmd.Flags().StringVar(&startDate, "start", "", "First trading date (YYYY-MM-DD)")
	loadCmd.Flags().StringVar(&endDate, "end", "", "Last trading date (YYYY-MM-DD, defaults to start)")
	loadCmd.Flags().StringVar(&sourceDir, "source-dir", "", "Override the archive source directory")
	loadCmd.Flags().IntVar(&retryBound, "retry-bound", 0, "Override the per-date retry bound")
	loadCmd.Flags().BoolVar(&download, "download", false, "Download missing archives before loading")
	_ = loadCmd.MarkFlagRequired("start")

	downloadCmd.Flags().StringVar(&startDate, "start", "", "First trading date (YYYY-MM-DD)")
	downloadCmd.Flags().StringVar(&endDate, "end", "", "Last trading date (YYYY-MM-DD, defaults to start)")
	_ = downloadCmd.MarkFlagRequired("start")

	reportCmd.Flags().IntVar(&reportYear, "year", 0, "Report year")
	reportCmd.Flags().IntVar(&reportMonth, "month", 0, "Report month (1-12)")
	reportCmd.Flags().BoolVar(&compare, "compare", false, "Include month-over-month comparison")
	_ = reportCmd.MarkFlagRequired("year")
	_ = reportCmd.MarkFlagRequired("month")

	rootCmd.AddCommand(loadCmd, downloadCmd, reportCmd, daemonCmd, versionCmd)
}

var rootCmd = &cobra.Command{
	Use:   "fo-loader",
	Short: "NSE F&O bhavcopy reconciliation loader",
	Long: `Loads daily NSE futures and options bhavcopy archives into PostgreSQL,
validating exact record-count parity between each source archive and the
destination table before moving to the next trading date.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "version" {
			return nil
		}

		var err error
		cfg, err = config.LoadWithDefaults(configFile)
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}

		if os.Getenv("AWS_SECRETS_ENABLED") == "true" {
			region := os.Getenv("AWS_REGION")
			secretName := os.Getenv("AWS_SECRET_NAME")
			if err := config.LoadSecretsFromAWS(cfg, region, secretName); err != nil {
				return fmt.Errorf("failed to load secrets: %w", err)
			}
		}

		applyOverrides()

		if err := config.Validate(cfg); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}

		logger = applog.New(cfg.App.LogLevel, cfg.App.Environment)
		return nil
	},
}

func applyOverrides() {
	if sourceDir != "" {
		cfg.Loader.SourceDir = sourceDir
	}
	if retryBound > 0 {
		cfg.Loader.RetryBound = retryBound
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("Error: %v", err)
	}
}

func parseRange() (time.Time, time.Time, error) {
	start, err := time.Parse(dateLayout, startDate)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid --start date %q: %w", startDate, err)
	}
	end := start
	if endDate != "" {
		end, err = time.Parse(dateLayout, endDate)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid --end date %q: %w", endDate, err)
		}
	}
	if end.Before(start) {
		return time.Time{}, time.Time{}, fmt.Errorf("--end %s is before --start %s", endDate, startDate)
	}
	return start, end, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

var loadCmd = &cobra.Command{
	Use:   "load",
	Short: "Load and validate a range of trading dates",
	RunE: func(cmd *cobra.Command, args []string) error {
		start, end, err := parseRange()
		if err != nil {
			return err
		}

		ctx, cancel := signalContext()
		defer cancel()

		metrics.InitRegistry()

		db, err := database.Initialize(ctx, cfg)
		if err != nil {
			return fmt.Errorf("failed to initialize database: %w", err)
		}
		defer db.Close()

		repos, err := repository.NewRepositories(db)
		if err != nil {
			return fmt.Errorf("failed to initialize repositories: %w", err)
		}

		if download {
			if err := downloadRange(ctx, start, end); err != nil {
				return err
			}
		}

		reader := archive.NewReader(cfg.Loader.SourceDir, logger)
		controller := loader.NewController(
			loader.NewArchiveSource(reader),
			normalize.New(cfg.Loader.MaxDropRate, logger),
			repos.Bhavcopy,
			cfg.Loader.RetryBound,
			logger,
		)

		report, runErr := controller.Run(ctx, start, end)
		fmt.Println(loader.Summarize(report))
		if runErr != nil {
			return fmt.Errorf("run interrupted: %w", runErr)
		}
		if !report.AllSucceeded() || report.Halted {
			os.Exit(1)
		}
		return nil
	},
}

var downloadCmd = &cobra.Command{
	Use:   "download",
	Short: "Download bhavcopy archives for a range of trading dates",
	RunE: func(cmd *cobra.Command, args []string) error {
		start, end, err := parseRange()
		if err != nil {
			return err
		}

		ctx, cancel := signalContext()
		defer cancel()

		metrics.InitRegistry()
		return downloadRange(ctx, start, end)
	},
}

func downloadRange(ctx context.Context, start, end time.Time) error {
	client, err := nse.NewClient(&cfg.Download, cfg.DownloadTimeout(), logger)
	if err != nil {
		return fmt.Errorf("failed to create download client: %w", err)
	}

	if err := os.MkdirAll(cfg.Loader.SourceDir, 0o755); err != nil {
		return fmt.Errorf("failed to create source directory: %w", err)
	}

	for date := start; !date.After(end); date = date.AddDate(0, 0, 1) {
		switch date.Weekday() {
		case time.Saturday, time.Sunday:
			continue
		}
		if _, err := client.Download(ctx, date, cfg.Loader.SourceDir); err != nil {
			logger.WithError(err).WithField("date", date.Format(dateLayout)).Warn("Download failed")
		}
	}
	return nil
}

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Print monthly per-symbol aggregates from the bhavcopy table",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext()
		defer cancel()

		metrics.InitRegistry()

		db, err := database.Initialize(ctx, cfg)
		if err != nil {
			return fmt.Errorf("failed to initialize database: %w", err)
		}
		defer db.Close()

		repos, err := repository.NewRepositories(db)
		if err != nil {
			return fmt.Errorf("failed to initialize repositories: %w", err)
		}

		svc := service.NewAggregationService(repos.Bhavcopy, cfg.ReportCacheTTL(), cfg.Report.TopSymbols, logger)

		if compare {
			return printComparison(ctx, svc)
		}
		return printSummary(ctx, svc)
	},
}

func printSummary(ctx context.Context, svc *service.AggregationService) error {
	aggregates, err := svc.MonthlySummary(ctx, reportYear, reportMonth)
	if err != nil {
		return err
	}
	dates, err := svc.TradingDays(ctx, reportYear, reportMonth)
	if err != nil {
		return err
	}

	fmt.Printf("=== F&O Monthly Summary %04d-%02d (%d trading days) ===\n", reportYear, reportMonth, len(dates))
	for i, agg := range aggregates {
		fmt.Printf("%3d. %-20s vol=%-14d value=%-18s net_oi_chg=%d\n",
			i+1, agg.Symbol, agg.TotalVolume, agg.TotalValue.StringFixed(2), agg.NetOIChange)
	}
	return nil
}

func printComparison(ctx context.Context, svc *service.AggregationService) error {
	comparisons, err := svc.MonthOverMonth(ctx, reportYear, reportMonth)
	if err != nil {
		return err
	}

	fmt.Printf("=== F&O Month-over-Month %04d-%02d ===\n", reportYear, reportMonth)
	for _, c := range comparisons {
		fmt.Printf("%-20s vol %d -> %d (%s)  value %s -> %s (%s)\n",
			c.Symbol,
			c.PreviousVolume, c.CurrentVolume, formatPct(c.VolumePct),
			c.PreviousValue.StringFixed(0), c.CurrentValue.StringFixed(0), formatPct(c.ValuePct))
	}
	return nil
}

func formatPct(pct *float64) string {
	if pct == nil {
		return "new"
	}
	return fmt.Sprintf("%+.1f%%", *pct)
}

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run the scheduled daily download-and-load job",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext()
		defer cancel()

		metrics.InitRegistry()

		db, err := database.Initialize(ctx, cfg)
		if err != nil {
			return fmt.Errorf("failed to initialize database: %w", err)
		}
		defer db.Close()

		repos, err := repository.NewRepositories(db)
		if err != nil {
			return fmt.Errorf("failed to initialize repositories: %w", err)
		}

		job := func(jobCtx context.Context, date time.Time) error {
			if err := downloadRange(jobCtx, date, date); err != nil {
				return err
			}
			reader := archive.NewReader(cfg.Loader.SourceDir, logger)
			controller := loader.NewController(
				loader.NewArchiveSource(reader),
				normalize.New(cfg.Loader.MaxDropRate, logger),
				repos.Bhavcopy,
				cfg.Loader.RetryBound,
				logger,
			)
			report, err := controller.Run(jobCtx, date, date)
			if err != nil {
				return err
			}
			logger.Info(loader.Summarize(report))
			if !report.AllSucceeded() {
				return fmt.Errorf("daily load for %s did not validate", date.Format(dateLayout))
			}
			return nil
		}

		var sched *scheduler.Scheduler
		if cfg.Schedule.Enabled {
			sched, err = scheduler.New(cfg.Schedule.DailyRun, job, logger)
			if err != nil {
				return err
			}
			if err := sched.Start(); err != nil {
				return err
			}
		} else {
			logger.Warn("Schedule disabled, daemon serves health and metrics only")
		}

		var metricsSrv *http.Server
		if cfg.Metrics.Enabled {
			metricsSrv = metrics.Serve(":"+strconv.Itoa(cfg.Metrics.Port), cfg.Metrics.Path)
		}

		healthSrv := health.NewServer(":8081", db, logger)
		go func() {
			if err := healthSrv.Start(); err != nil {
				logger.WithError(err).Error("Health server exited")
			}
		}()

		logger.WithField("version", Version).Info("Daemon running")
		<-ctx.Done()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if sched != nil {
			if err := sched.Stop(shutdownCtx); err != nil {
				logger.WithError(err).Warn("Scheduler shutdown incomplete")
			}
		}
		_ = healthSrv.Shutdown(shutdownCtx)
		if metricsSrv != nil {
			_ = metricsSrv.Shutdown(shutdownCtx)
		}
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print build information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("fo-loader %s (commit %s, built %s)\n", Version, GitCommit, BuildDate)
	},
}
