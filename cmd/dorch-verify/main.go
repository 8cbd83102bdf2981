// Command dorch-verify is a thin administrative CLI that re-runs the
// metadata merger's integrity check (component D) for a single file hash
// against the catalog's already-stored record, without touching the queue.
package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/beebs-dev/dorch/internal/appconfig"
	"github.com/beebs-dev/dorch/internal/applog"
	"github.com/beebs-dev/dorch/internal/catalog"
	"github.com/beebs-dev/dorch/internal/merge"
	"github.com/beebs-dev/dorch/internal/objectstore"
	"github.com/beebs-dev/dorch/internal/worker"
	"github.com/beebs-dev/dorch/internal/version"
)

func main() {
	app := &cli.App{
		Name:    "dorch-verify",
		Usage:   "recompute a file's hashes and compare them against the catalog's stored record",
		Version: version.GetVersion(),
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Usage: "path to a dorch.toml config file"},
			&cli.StringFlag{Name: "sha1", Required: true, Usage: "content hash of the artifact to re-verify"},
			&cli.StringFlag{Name: "wad-id", Required: true, Usage: "catalog UUID of the stored record to compare against"},
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

	logger := applog.Setup(cfg.Logging)
	defer applog.Stop()

	ctx := context.Background()
	sha1, wadID := c.String("sha1"), c.String("wad-id")

	resolver, err := objectstore.New(ctx, objectstore.Config{
		Bucket: cfg.WadStore.Bucket, Endpoint: cfg.WadStore.Endpoint, Region: cfg.WadStore.Region,
		LegacyProbe: cfg.LegacyProbe,
	}, logger)
	if err != nil {
		return fmt.Errorf("building object store resolver: %w", err)
	}

	key, tried, err := resolver.Resolve(ctx, sha1, worker.MetaExtension, []string{sha1})
	if err != nil {
		return fmt.Errorf("resolving artifact for %s (tried %v): %w", sha1, tried, err)
	}

	scratchDir, err := os.MkdirTemp("", sha1+"-verify-*")
	if err != nil {
		return fmt.Errorf("creating scratch dir: %w", err)
	}
	defer os.RemoveAll(scratchDir)

	path, err := resolver.FetchAndDecompress(ctx, key, scratchDir)
	if err != nil {
		return fmt.Errorf("fetching artifact: %w", err)
	}

	buf, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading decompressed artifact: %w", err)
	}

	hashes, err := merge.ComputeHashes(bytes.NewReader(buf))
	if err != nil {
		return fmt.Errorf("computing hashes: %w", err)
	}

	catalogClient := catalog.New(cfg.CatalogBaseURL, 10*time.Second)
	rec, err := catalogClient.GetWAD(ctx, wadID)
	if err != nil {
		return fmt.Errorf("fetching catalog record: %w", err)
	}

	if rec.SHA256 == "" {
		fmt.Printf("sha1=%s wad_id=%s: catalog record has no stored sha256; computed sha256=%s\n", sha1, wadID, hashes.SHA256)
		return nil
	}

	if rec.SHA256 == hashes.SHA256 {
		fmt.Printf("OK sha1=%s wad_id=%s sha256=%s matches catalog record\n", sha1, wadID, hashes.SHA256)
		return nil
	}

	fmt.Printf("MISMATCH sha1=%s wad_id=%s catalog_sha256=%s computed_sha256=%s\n", sha1, wadID, rec.SHA256, hashes.SHA256)
	os.Exit(1)
	return nil
}
