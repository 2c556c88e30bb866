package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/samber/do/v2"

	calendarimpl "github.com/foxseedlab/rdhours/external/calendar"
	configloader "github.com/foxseedlab/rdhours/external/config"
	"github.com/foxseedlab/rdhours/external/discord"
	eventlogimpl "github.com/foxseedlab/rdhours/external/eventlog"
	gitlogimpl "github.com/foxseedlab/rdhours/external/gitlog"
	repositoryimpl "github.com/foxseedlab/rdhours/external/repository"
	webhookimpl "github.com/foxseedlab/rdhours/external/webhook"
	"github.com/foxseedlab/rdhours/internal/config"
	"github.com/foxseedlab/rdhours/internal/pipeline"
)

var (
	dryRun  = flag.Bool("dry-run", false, "Reconstruct and report without uploading to the calendar")
	verbose = flag.Bool("verbose", false, "Enable verbose logging")
)

func main() {
	flag.Parse()

	slog.Info("startup: loading configuration")
	cfg := mustLoadConfig()
	initLogger(cfg)
	slog.Info("startup: configuration loaded", "env", cfg.Env, "timezone", cfg.Timezone)

	slog.Info("startup: building dependency graph")
	injector := setupDI(cfg)

	os.Exit(run(cfg, injector))
}

func mustLoadConfig() *config.Config {
	cfg, err := configloader.Load()
	if err != nil {
		slog.Error("config validation failed", "error", err)
		os.Exit(1)
	}
	return cfg
}

func initLogger(cfg *config.Config) {
	logLevel := slog.LevelInfo
	if cfg.IsDevelopment() || *verbose {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})))
}

func setupDI(cfg *config.Config) do.Injector {
	injector := do.New()

	do.ProvideValue(injector, cfg)
	pipeline.RegisterDI(injector)
	eventlogimpl.RegisterDI(injector)
	gitlogimpl.RegisterDI(injector)
	calendarimpl.RegisterDI(injector)
	repositoryimpl.RegisterDI(injector)
	discord.RegisterDI(injector)
	webhookimpl.RegisterDI(injector)

	return injector
}

func run(cfg *config.Config, injector do.Injector) int {
	runner, err := do.Invoke[*pipeline.Runner](injector)
	if err != nil {
		slog.Error("failed to resolve pipeline runner", "error", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sum, err := runner.Run(ctx, pipeline.Options{DryRun: cfg.DryRun || *dryRun})
	if sum != nil {
		printSummary(sum)
	}
	if err != nil {
		if errors.Is(err, context.Canceled) {
			slog.Info("run interrupted")
		}
		slog.Error("run failed", "error", err)
		return 1
	}
	return 0
}

func printSummary(sum *pipeline.Summary) {
	header := color.New(color.FgGreen, color.Bold)
	warn := color.New(color.FgYellow)
	dim := color.New(color.FgHiBlack)

	out := os.Stderr
	_, _ = header.Fprintf(out, "rdhours run %s (%s)\n", sum.RunID, sum.Timezone)
	for _, d := range sum.Days {
		_, _ = fmt.Fprintf(out, "  %s  %6.2f h  %d sessions\n", d.Date, d.WorkHours(), d.Sessions)
	}
	_, _ = header.Fprintf(out, "  total %.2f h\n", sum.TotalWorkSeconds()/3600)

	c := sum.Counts
	if skipped := c.SkippedRecords() + c.DroppedNoLogoff; skipped > 0 {
		_, _ = warn.Fprintf(out, "  %d records skipped (%d unparsable, %d without logoff)\n", skipped, c.ParseFailures, c.DroppedNoLogoff)
	}
	if c.SessionsClipped+c.DroppedByCap > 0 {
		_, _ = warn.Fprintf(out, "  daily cap: %d clipped, %d dropped\n", c.SessionsClipped, c.DroppedByCap)
	}
	if c.OverlapsShort+c.OverlapsLong+c.CalendarConflicts > 0 {
		_, _ = warn.Fprintf(out, "  overlaps: %d short, %d long, %d calendar conflicts\n", c.OverlapsShort, c.OverlapsLong, c.CalendarConflicts)
	}
	if sum.DryRun {
		_, _ = dim.Fprintln(out, "  dry run, nothing uploaded")
		return
	}
	_, _ = dim.Fprintf(out, "  uploaded %d, failed %d\n", c.Uploaded, c.UploadFailures)
}
