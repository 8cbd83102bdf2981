// Command dorch-dispatcher reads the corpus indices and publishes one job
// envelope per known file hash onto the metadata queue, once or on a
// --watch interval.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"
	"github.com/urfave/cli/v2"

	"github.com/beebs-dev/dorch/internal/appconfig"
	"github.com/beebs-dev/dorch/internal/applog"
	"github.com/beebs-dev/dorch/internal/dispatcher"
	"github.com/beebs-dev/dorch/internal/queue"
	"github.com/beebs-dev/dorch/internal/scratch"
	"github.com/beebs-dev/dorch/internal/shutdown"
	"github.com/beebs-dev/dorch/internal/version"
)

func main() {
	app := &cli.App{
		Name:    "dorch-dispatcher",
		Usage:   "publish one job envelope per corpus file onto the metadata queue",
		Version: version.GetVersion(),
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Usage: "path to a dorch.toml config file"},
			&cli.StringFlag{Name: "primary-index", Usage: "path to the primary file index JSONL (overrides config)"},
			&cli.StringFlag{Name: "cross-ref-index", Usage: "path to the id-games cross-reference JSONL (overrides config)"},
			&cli.StringFlag{Name: "readmes-index", Usage: "path to the optional readmes JSONL (overrides config)"},
			&cli.IntFlag{Name: "start", Usage: "skip this many rows of the primary index"},
			&cli.IntFlag{Name: "limit", Usage: "publish at most this many jobs (0 == unbounded)"},
			&cli.DurationFlag{Name: "sleep", Usage: "sleep this long between publishes"},
			&cli.StringFlag{Name: "smoke-test-id", Usage: "dispatch only this one sha1, ignoring start/limit"},
			&cli.StringFlag{Name: "watch", Usage: "cron expression; re-runs the dispatch on this interval instead of exiting"},
			&cli.BoolFlag{Name: "resume", Usage: "skip rows before the ledger's recorded cursor"},
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	cfg, err := appconfig.Load(c.String("config"))
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if watch := c.String("watch"); watch != "" {
		cfg.Dispatcher.WatchSchedule = watch
		if err := appconfig.ValidateWatchSchedule(watch); err != nil {
			return err
		}
	}

	primaryPath := firstNonEmpty(c.String("primary-index"), cfg.Dispatcher.PrimaryIndexPath)
	crossRefPath := firstNonEmpty(c.String("cross-ref-index"), cfg.Dispatcher.CrossRefIndexPath)
	readmesPath := firstNonEmpty(c.String("readmes-index"), cfg.Dispatcher.ReadmesIndexPath)
	if primaryPath == "" || crossRefPath == "" {
		return fmt.Errorf("primary-index and cross-ref-index must be set via flag or config")
	}

	logger := applog.Setup(cfg.Logging)
	defer applog.Stop()

	signaler, ctx := shutdown.New()
	defer signaler.Stop()

	q, err := queue.Connect(ctx, cfg.NatsURL, logger)
	if err != nil {
		return fmt.Errorf("connecting to queue: %w", err)
	}
	defer q.Close()

	var ledger *scratch.Ledger
	if c.Bool("resume") && cfg.LedgerPath != "" {
		ledger, err = scratch.Open(cfg.LedgerPath, logger)
		if err != nil {
			return fmt.Errorf("opening resume ledger: %w", err)
		}
		defer ledger.Close()
	}

	opts := dispatcher.Options{
		Start:       c.Int("start"),
		Limit:       c.Int("limit"),
		Sleep:       c.Duration("sleep"),
		SmokeTestID: c.String("smoke-test-id"),
	}
	if ledger != nil && opts.Start == 0 {
		if cursor, err := ledger.DispatcherCursor(); err == nil {
			opts.Start = cursor
		}
	}

	d := dispatcher.New(q, cfg.Dispatcher, cfg.MetaStream, signaler, logger)
	if err := d.EnsureStream(ctx); err != nil {
		return fmt.Errorf("ensuring meta stream: %w", err)
	}

	dispatchOnce := func() error {
		idx, err := dispatcher.LoadIndices(primaryPath, crossRefPath, readmesPath)
		if err != nil {
			return fmt.Errorf("loading indices: %w", err)
		}

		published, err := d.Run(ctx, idx, opts)
		if err != nil {
			return fmt.Errorf("dispatch run: %w", err)
		}
		logger.Info().Int("published", published).Msg("dispatch run complete")

		if ledger != nil {
			if err := ledger.SetDispatcherCursor(opts.Start + published); err != nil {
				logger.Warn().Err(err).Msg("failed to record dispatcher cursor")
			}
		}
		return nil
	}

	if cfg.Dispatcher.WatchSchedule == "" {
		return dispatchOnce()
	}

	return watchLoop(ctx, signaler, logger, cfg.Dispatcher.WatchSchedule, dispatchOnce)
}

// watchLoop re-runs fn on the given cron schedule until the shutdown
// signaler fires.
func watchLoop(ctx context.Context, signaler *shutdown.Signaler, logger arbor.ILogger, schedule string, fn func() error) error {
	sched, err := cron.ParseStandard(schedule)
	if err != nil {
		return fmt.Errorf("parsing watch schedule: %w", err)
	}

	if err := fn(); err != nil {
		logger.Error().Err(err).Msg("initial dispatch run failed")
	}

	for {
		next := sched.Next(time.Now())
		wait := time.Until(next)
		logger.Info().Time("next_run", next).Msg("watch loop sleeping until next dispatch")

		select {
		case <-time.After(wait):
			if err := fn(); err != nil {
				logger.Error().Err(err).Msg("scheduled dispatch run failed")
			}
		case <-signaler.Done():
			logger.Info().Msg("watch loop stopping on shutdown signal")
			return nil
		case <-ctx.Done():
			return nil
		}
	}
}

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}
