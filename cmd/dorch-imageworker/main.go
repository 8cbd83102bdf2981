// Command dorch-imageworker is the durable pull-consumer runtime for image
// jobs: fetch artifact, spawn the renderer subprocess, PUT the per-map image
// URL lists the renderer reports to the catalog. It does not upload image
// files itself; the image-store resolver it builds is not written to.
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
	"github.com/beebs-dev/dorch/internal/shutdown"
	"github.com/beebs-dev/dorch/internal/version"
	"github.com/beebs-dev/dorch/internal/worker"
)

func main() {
	app := &cli.App{
		Name:    "dorch-imageworker",
		Usage:   "durable pull consumer processing image-render jobs",
		Version: version.GetVersion(),
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Usage: "path to a dorch.toml config file"},
			&cli.StringFlag{Name: "durable", Value: "dorch-image-worker", Usage: "durable consumer name"},
			&cli.StringFlag{Name: "renderer-bin", Required: true, Usage: "path to the renderer subprocess executable"},
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

	workerCfg := cfg.Worker
	workerCfg.Durable = c.String("durable")
	if cfg.Renderer.MaxDeliveries > 0 {
		workerCfg.MaxDeliveries = cfg.Renderer.MaxDeliveries
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
		Name:            cfg.ImgStream.Name,
		Subjects:        []string{"dorch.wad.*.img"},
		MaxAge:          cfg.ImgStream.MaxAge(),
		DuplicateWindow: cfg.ImgStream.DedupeWindow(),
		MaxBytes:        cfg.ImgStream.MaxBytes,
	}); err != nil {
		return fmt.Errorf("ensuring images stream: %w", err)
	}

	consumer, err := q.EnsureConsumer(ctx, queue.ConsumerConfig{
		StreamName:    cfg.ImgStream.Name,
		DurableName:   workerCfg.Durable,
		FilterSubject: "dorch.wad.*.img",
		MaxDeliver:    workerCfg.MaxDeliveries,
	})
	if err != nil {
		return fmt.Errorf("ensuring consumer: %w", err)
	}

	wadResolver, err := objectstore.New(ctx, objectstore.Config{
		Bucket: cfg.WadStore.Bucket, Endpoint: cfg.WadStore.Endpoint, Region: cfg.WadStore.Region,
		LegacyProbe: cfg.LegacyProbe,
	}, logger)
	if err != nil {
		return fmt.Errorf("building wad store resolver: %w", err)
	}

	imageResolver, err := objectstore.New(ctx, objectstore.Config{
		Bucket: cfg.ImageStore.Bucket, Endpoint: cfg.ImageStore.Endpoint, Region: cfg.ImageStore.Region,
	}, logger)
	if err != nil {
		return fmt.Errorf("building image store resolver: %w", err)
	}

	sidecar := cache.New(cache.Config{
		Host: cfg.Cache.Host, Port: cfg.Cache.Port,
		Username: cfg.Cache.Username, Password: cfg.Cache.Password, TLS: cfg.Cache.TLS,
	}, logger)
	defer sidecar.Close()

	catalogClient := catalog.New(cfg.CatalogBaseURL, 10*time.Second)

	if err := os.MkdirAll(cfg.ScratchDir, 0755); err != nil {
		return fmt.Errorf("creating scratch dir: %w", err)
	}

	pipeline := worker.NewImagePipeline(wadResolver, imageResolver, sidecar, catalogClient, c.String("renderer-bin"), cfg.Renderer, cfg.ScratchDir, logger)
	pool := worker.New(consumer, workerCfg, signaler, logger, "img", queue.DecodeImageEnvelope, pipeline.Handle)

	logger.Info().Str("durable", workerCfg.Durable).Msg("dorch-imageworker starting")
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
	logger.Info().Int("processed", stats.Processed).Int("failed", stats.Failed).Msg("dorch-imageworker stopped")
	return nil
}
