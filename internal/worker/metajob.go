package worker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/ternarybob/arbor"

	"github.com/beebs-dev/dorch/internal/cache"
	"github.com/beebs-dev/dorch/internal/catalog"
	"github.com/beebs-dev/dorch/internal/domain"
	"github.com/beebs-dev/dorch/internal/loadorder"
	"github.com/beebs-dev/dorch/internal/mapstats"
	"github.com/beebs-dev/dorch/internal/merge"
	"github.com/beebs-dev/dorch/internal/objectstore"
	"github.com/beebs-dev/dorch/internal/scratch"
	"github.com/beebs-dev/dorch/internal/textscan"
	"github.com/beebs-dev/dorch/internal/wad"
)

// MetaExtension is the artifact extension metadata jobs resolve: the
// ingest corpus stores every file as a WAD-or-zip-family container under
// this fixed suffix regardless of its original file extension.
const MetaExtension = "dat"

// MetaPipeline wires together artifact retrieval, container decode, map
// statistics, text harvesting, and record merge for one metadata job.
type MetaPipeline struct {
	resolver *objectstore.Resolver
	sidecar  *cache.Sidecar
	client   *catalog.Client
	ledger   *scratch.Ledger
	scratch  string
	logger   arbor.ILogger
}

// NewMetaPipeline builds a MetaPipeline. ledger may be nil; it is advisory.
func NewMetaPipeline(resolver *objectstore.Resolver, sidecar *cache.Sidecar, client *catalog.Client, ledger *scratch.Ledger, scratchDir string, logger arbor.ILogger) *MetaPipeline {
	return &MetaPipeline{resolver: resolver, sidecar: sidecar, client: client, ledger: ledger, scratch: scratchDir, logger: logger}
}

// Handle implements Handler for metadata jobs (A -> F -> {B|C+E} -> D -> catalog PUT).
func (p *MetaPipeline) Handle(ctx context.Context, env domain.JobEnvelope) error {
	sha1 := env.SHA1
	if !domain.IsValidFileHash(sha1) {
		return fmt.Errorf("%w: invalid sha1 %q", domain.ErrPoison, sha1)
	}

	buf, err := p.fetchArtifact(ctx, sha1, env.PrimaryEntry)
	if err != nil {
		return err
	}

	extracted := extractMeta(buf)

	hashes, err := merge.ComputeHashes(bytes.NewReader(buf))
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrRetryable, err)
	}
	integrity := merge.CheckIntegrity(hashes, expectedHashes(env.PrimaryEntry))

	rec := merge.Merge(merge.Input{
		SHA1:      sha1,
		Computed:  hashes,
		HaveHash:  true,
		FileType:  extracted.Format,
		FileSize:  int64(len(buf)),
		Extracted: extracted,
		Primary:   env.PrimaryEntry,
		CrossRef:  env.CrossReferenceEntry,
		Readme:    env.ReadmeEntry,
		Integrity: &integrity,
	})

	if err := p.client.PutWAD(ctx, sha1, rec); err != nil {
		return err
	}

	if p.ledger != nil {
		_ = p.ledger.RecordDelivery(scratch.DeliveryOutcome{SHA1: sha1, Outcome: "completed"})
	}
	return nil
}

// fetchArtifact tries the cache sidecar first, falling back to the object
// store and backfilling the cache on a miss.
func (p *MetaPipeline) fetchArtifact(ctx context.Context, sha1 string, primary map[string]any) ([]byte, error) {
	if buf, ok := p.sidecar.Get(ctx, sha1); ok {
		return buf, nil
	}

	key, _, err := p.resolver.Resolve(ctx, sha1, MetaExtension, legacyProbeHints(sha1, primary))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("%w: artifact %s not found in object store", domain.ErrPoison, sha1)
		}
		return nil, err
	}

	jobScratch, err := os.MkdirTemp(p.scratch, sha1+"-*")
	if err != nil {
		return nil, fmt.Errorf("%w: creating scratch dir: %v", domain.ErrRetryable, err)
	}
	defer os.RemoveAll(jobScratch)

	decompressedPath, err := p.resolver.FetchAndDecompress(ctx, key, jobScratch)
	if err != nil {
		return nil, err
	}

	buf, err := os.ReadFile(decompressedPath)
	if err != nil {
		return nil, fmt.Errorf("%w: reading scratch file: %v", domain.ErrRetryable, err)
	}

	p.sidecar.Set(ctx, sha1, buf)
	return buf, nil
}

// expectedHashes pulls the "expected_hashes" sub-object out of a primary
// index row, if present, for integrity comparison against the freshly
// computed digests.
func expectedHashes(primary map[string]any) map[string]string {
	out := map[string]string{}
	v, ok := primary["expected_hashes"]
	if !ok {
		return out
	}
	asMap, ok := v.(map[string]any)
	if !ok {
		return out
	}
	for k, vv := range asMap {
		if s, ok := vv.(string); ok {
			out[k] = s
		}
	}
	return out
}

// legacyProbeHints collects the hash strings the legacy object-store prefix
// probe derives two-hex-character candidates from: the content hash itself,
// plus any md5/sha256 already known from the primary index entry.
func legacyProbeHints(sha1 string, primary map[string]any) []string {
	hints := []string{sha1}
	for _, v := range expectedHashes(primary) {
		if v != "" {
			hints = append(hints, v)
		}
	}
	return hints
}

var zipMagic = []byte("PK\x03\x04")

// extractMeta sniffs the container's on-disk signature and harvests map
// statistics and text content from it, recursing into embedded WADs for
// zip-family archives. The corpus stores files under a fixed extension, so
// detection goes by magic bytes rather than the original file name. A
// malformed or unrecognized container is never fatal to the job: it yields
// an "unknown"-format ExtractedMeta carrying a human-readable error, per
// the parse-errors policy in spec.md, and the pipeline continues with a
// record that still gets merged and published.
func extractMeta(buf []byte) domain.ExtractedMeta {
	switch {
	case bytes.HasPrefix(buf, zipMagic):
		return extractFromZip(buf)
	case len(buf) >= 4 && (bytes.HasPrefix(buf, []byte("IWAD")) || bytes.HasPrefix(buf, []byte("PWAD"))):
		return extractFromWAD(buf)
	default:
		return domain.ExtractedMeta{Format: "unknown", Error: "unrecognized container format"}
	}
}

func extractFromWAD(buf []byte) domain.ExtractedMeta {
	container, ok, msg := wad.Decode(buf)
	if !ok {
		return domain.ExtractedMeta{Format: "unknown", Error: msg}
	}

	blocks := wad.BuildMapBlocks(container.Lumps)
	summaries := make([]domain.MapSummary, 0, len(blocks))
	for _, b := range blocks {
		summaries = append(summaries, mapstats.Extract(buf, container, b))
	}
	summaries = loadorder.Merge([][]domain.MapSummary{summaries})

	harvest := textscan.ScanWAD(buf, container)

	meta := domain.ExtractedMeta{
		Format:       "wad",
		LumpCount:    len(container.Lumps),
		Maps:         summaries,
		MapNames:     mapNames(summaries),
		TextLumps:    harvest.TextLumps,
		TextFiles:    harvest.TextFiles,
		Names:        harvest.Names,
		Authors:      harvest.Authors,
		Descriptions: harvest.Descriptions,
	}
	return meta
}

func extractFromZip(buf []byte) domain.ExtractedMeta {
	embedded, zr, err := wad.ScanZip(buf)
	if err != nil {
		return domain.ExtractedMeta{Format: "unknown", Error: err.Error()}
	}

	var perWAD [][]domain.MapSummary
	var embeddedMeta []domain.ExtractedMeta
	embeddedHarvests := make([]textscan.Harvest, 0, len(embedded))

	for _, e := range embedded {
		blocks := wad.BuildMapBlocks(e.Container.Lumps)
		summaries := make([]domain.MapSummary, 0, len(blocks))
		for _, b := range blocks {
			summaries = append(summaries, mapstats.Extract(e.Buf, e.Container, b))
		}
		perWAD = append(perWAD, summaries)

		entryHarvest := textscan.ScanWAD(e.Buf, e.Container)
		embeddedHarvests = append(embeddedHarvests, entryHarvest)
		embeddedMeta = append(embeddedMeta, domain.ExtractedMeta{
			Format:    "wad",
			LumpCount: len(e.Container.Lumps),
			MapNames:  mapNames(summaries),
			TextLumps: entryHarvest.TextLumps,
		})
		_ = e.Path // embedded entry path is informational only, carried in logs not the record
	}

	merged := loadorder.Merge(perWAD)
	harvest := textscan.ScanZip(zr, embeddedHarvests)

	meta := domain.ExtractedMeta{
		Format:       "zip",
		EmbeddedWADs: embeddedMeta,
		Maps:         merged,
		MapNames:     mapNames(merged),
		TextLumps:    harvest.TextLumps,
		TextFiles:    harvest.TextFiles,
		Names:        harvest.Names,
		Authors:      harvest.Authors,
		Descriptions: harvest.Descriptions,
	}
	return meta
}

func mapNames(summaries []domain.MapSummary) []string {
	names := make([]string, 0, len(summaries))
	for _, m := range summaries {
		names = append(names, m.Map)
	}
	return names
}
