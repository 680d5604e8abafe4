package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"github.com/wolfman30/practice-records/cmd/mainconfig"
	"github.com/wolfman30/practice-records/internal/app/bootstrap"
	appconfig "github.com/wolfman30/practice-records/internal/config"
	"github.com/wolfman30/practice-records/internal/notify"
	"github.com/wolfman30/practice-records/internal/records"
	"github.com/wolfman30/practice-records/pkg/logging"
)

type options struct {
	date     string
	schedule string
}

func main() {
	_ = godotenv.Load()
	cfg := appconfig.Load()
	logger := bootstrap.BuildLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand(cfg, logger).ExecuteContext(ctx); err != nil {
		logger.Error("daily digest failed", "error", err)
		stop()
		os.Exit(1)
	}
}

func newRootCommand(cfg *appconfig.Config, logger *logging.Logger) *cobra.Command {
	opts := options{schedule: cfg.DigestSchedule}
	cmd := &cobra.Command{
		Use:           "daily-digest",
		Short:         "Email the end-of-day billing summary to DIGEST_RECIPIENT",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), cfg, opts, time.Now, logger)
		},
	}
	cmd.Flags().StringVar(&opts.date, "date", "", "day to summarise (YYYY-MM-DD, default today)")
	cmd.Flags().StringVar(&opts.schedule, "schedule", opts.schedule, `cron spec to keep running on, e.g. "0 19 * * *"`)
	return cmd
}

func run(ctx context.Context, cfg *appconfig.Config, opts options, now func() time.Time, logger *logging.Logger) error {
	if opts.date != "" && opts.schedule != "" {
		return errors.New("--date and --schedule are mutually exclusive")
	}
	day, err := resolveDate(opts.date, now())
	if err != nil {
		return err
	}

	svc, pool, sqlDB, err := bootstrap.BuildRecordsService(ctx, cfg, nil, logger)
	if err != nil {
		return err
	}
	defer func() {
		if sqlDB != nil {
			_ = sqlDB.Close()
		}
		if pool != nil {
			pool.Close()
		}
	}()

	sender, err := mainconfig.BuildEmailSender(ctx, cfg, logger)
	if err != nil {
		return err
	}
	digest := notify.NewDigestService(sender, svc, splitRecipients(cfg.DigestRecipient), logger)

	if opts.schedule == "" {
		_, err := digest.SendDaily(ctx, day)
		return err
	}
	return schedule(ctx, opts.schedule, func() {
		if _, err := digest.SendDaily(ctx, now()); err != nil {
			logger.Error("scheduled digest failed", "error", err)
		}
	}, logger)
}

// schedule runs job on spec until ctx is cancelled, waiting for a running job
// to finish before returning.
func schedule(ctx context.Context, spec string, job func(), logger *logging.Logger) error {
	c := cron.New()
	if _, err := c.AddFunc(spec, job); err != nil {
		return fmt.Errorf("invalid schedule %q: %w", spec, err)
	}
	c.Start()
	logger.Info("digest scheduler started", "schedule", spec)

	<-ctx.Done()
	<-c.Stop().Done()
	logger.Info("digest scheduler stopped")
	return nil
}

func resolveDate(raw string, now time.Time) (time.Time, error) {
	if raw == "" {
		return now, nil
	}
	t, err := time.ParseInLocation(records.DateLayout, raw, now.Location())
	if err != nil {
		return time.Time{}, records.ErrInvalidReviewDate
	}
	return t, nil
}

func splitRecipients(raw string) []string {
	var out []string
	for _, r := range strings.Split(raw, ",") {
		if r = strings.TrimSpace(r); r != "" {
			out = append(out, r)
		}
	}
	return out
}
