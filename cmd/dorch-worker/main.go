// Command dorch-worker is the durable pull-consumer runtime for metadata
// jobs: fetch artifact, decode container, merge metadata, PUT the catalog
// record.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/beebs-dev/dorch/internal/appconfig"
	"github.com/beebs-dev/dorch/internal/applog"
	"github.com/beebs-dev/dorch/internal/cache"
	"github.com/beebs-dev/dorch/internal/catalog"
	"github.com/beebs-dev/dorch/internal/metrics"
	"github.com/beebs-dev/dorch/internal/objectstore"
	"github.com/beebs-dev/dorch/internal/queue"
	"github.com/beebs-dev/dorch/internal/scratch"
	"github.com/beebs-dev/dorch/internal/shutdown"
	"github.com/beebs-dev/dorch/internal/version"
	"github.com/beebs-dev/dorch/internal/worker"
)

func main() {
	app := &cli.App{
		Name:    "dorch-worker",
		Usage:   "durable pull consumer processing metadata jobs",
		Version: version.GetVersion(),
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Usage: "path to a dorch.toml config file"},
			&cli.StringFlag{Name: "durable", Usage: "override the configured durable consumer name"},
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
	if durable := c.String("durable"); durable != "" {
		cfg.Worker.Durable = durable
	}

	logger := applog.Setup(cfg.Logging)
	defer applog.Stop()

	signaler, ctx := shutdown.New()
	defer signaler.Stop()

	metricsSrv := metrics.Serve(cfg.Metrics.Enabled, cfg.Metrics.Addr, cfg.Metrics.Port, logger)
	defer func() {
		_ = metricsSrv.Shutdown(context.Background())
	}()

	q, err := queue.Connect(ctx, cfg.NatsURL, logger)
	if err != nil {
		return fmt.Errorf("connecting to queue: %w", err)
	}
	defer q.Close()

	if _, err := q.EnsureStream(ctx, queue.StreamConfig{
		Name:            cfg.MetaStream.Name,
		Subjects:        []string{"dorch.wad.*.meta"},
		MaxAge:          cfg.MetaStream.MaxAge(),
		DuplicateWindow: cfg.MetaStream.DedupeWindow(),
		MaxBytes:        cfg.MetaStream.MaxBytes,
	}); err != nil {
		return fmt.Errorf("ensuring meta stream: %w", err)
	}

	consumer, err := q.EnsureConsumer(ctx, queue.ConsumerConfig{
		StreamName:    cfg.MetaStream.Name,
		DurableName:   cfg.Worker.Durable,
		FilterSubject: "dorch.wad.*.meta",
		MaxDeliver:    cfg.Worker.MaxDeliveries,
	})
	if err != nil {
		return fmt.Errorf("ensuring consumer: %w", err)
	}

	resolver, err := objectstore.New(ctx, objectstore.Config{
		Bucket:      cfg.WadStore.Bucket,
		Endpoint:    cfg.WadStore.Endpoint,
		Region:      cfg.WadStore.Region,
		LegacyProbe: cfg.LegacyProbe,
	}, logger)
	if err != nil {
		return fmt.Errorf("building object store resolver: %w", err)
	}

	sidecar := cache.New(cache.Config{
		Host: cfg.Cache.Host, Port: cfg.Cache.Port,
		Username: cfg.Cache.Username, Password: cfg.Cache.Password, TLS: cfg.Cache.TLS,
	}, logger)
	defer sidecar.Close()

	catalogClient := catalog.New(cfg.CatalogBaseURL, 10*time.Second)

	var ledger *scratch.Ledger
	if cfg.LedgerPath != "" {
		ledger, err = scratch.Open(cfg.LedgerPath, logger)
		if err != nil {
			return fmt.Errorf("opening resume ledger: %w", err)
		}
		defer ledger.Close()
	}

	if err := os.MkdirAll(cfg.ScratchDir, 0755); err != nil {
		return fmt.Errorf("creating scratch dir: %w", err)
	}

	pipeline := worker.NewMetaPipeline(resolver, sidecar, catalogClient, ledger, cfg.ScratchDir, logger)
	pool := worker.New(consumer, cfg.Worker, signaler, logger, "meta", queue.DecodeEnvelope, pipeline.Handle)

	logger.Info().Str("durable", cfg.Worker.Durable).Msg("dorch-worker starting")
	pool.Run(ctx)

	if signaler.Requested() {
		if err := q.Flush(3 * time.Second); err != nil {
			logger.Warn().Err(err).Msg("flush on fast-exit failed")
		}
	} else {
		if err := q.Drain(); err != nil {
			logger.Warn().Err(err).Msg("drain failed")
		}
	}

	stats := pool.Stats()
	logger.Info().Int("processed", stats.Processed).Int("failed", stats.Failed).Msg("dorch-worker stopped")
	return nil
}
