package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sync"

	"github.com/google/uuid"
	"github.com/ternarybob/arbor"

	"github.com/beebs-dev/dorch/internal/appconfig"
	"github.com/beebs-dev/dorch/internal/cache"
	"github.com/beebs-dev/dorch/internal/catalog"
	"github.com/beebs-dev/dorch/internal/domain"
	"github.com/beebs-dev/dorch/internal/objectstore"
)

// stderrTailBytes bounds the diagnostic tail kept from a renderer
// subprocess's stderr stream.
const stderrTailBytes = 4 * 1024

// rendererOutput is the renderer subprocess's single-line JSON stdout
// protocol.
type rendererOutput struct {
	OK        bool                            `json:"ok"`
	Retry     bool                            `json:"retry"`
	Kind      string                          `json:"kind,omitempty"`
	Message   string                          `json:"message,omitempty"`
	MapImages map[string][]catalog.ImageEntry `json:"map_images,omitempty"`
}

// ImagePipeline fetches an artifact, spawns the renderer subprocess, and
// uploads resulting image URLs to the catalog.
type ImagePipeline struct {
	resolver    *objectstore.Resolver
	sidecar     *cache.Sidecar
	client      *catalog.Client
	rendererBin string
	cfg         appconfig.RendererConfig
	imageStore  *objectstore.Resolver
	scratch     string
	logger      arbor.ILogger
}

// NewImagePipeline builds an ImagePipeline. rendererBin is the path to the
// renderer executable; imageStore is the resolver for the (separate) image
// bucket. Handle does not write to imageStore: the image URLs it PUTs to the
// catalog are the ones the renderer reports.
func NewImagePipeline(resolver, imageStore *objectstore.Resolver, sidecar *cache.Sidecar, client *catalog.Client, rendererBin string, cfg appconfig.RendererConfig, scratchDir string, logger arbor.ILogger) *ImagePipeline {
	return &ImagePipeline{
		resolver: resolver, imageStore: imageStore, sidecar: sidecar, client: client,
		rendererBin: rendererBin, cfg: cfg, scratch: scratchDir, logger: logger,
	}
}

// Handle implements Handler for image jobs: fetch artifact, render, PUT
// per-map image URL lists to the catalog.
func (p *ImagePipeline) Handle(ctx context.Context, env domain.JobEnvelope) error {
	sha1 := env.SHA1
	if !domain.IsValidFileHash(sha1) {
		return fmt.Errorf("%w: invalid sha1 %q", domain.ErrPoison, sha1)
	}
	wadID := env.WadID
	if _, err := uuid.Parse(wadID); err != nil {
		return fmt.Errorf("%w: invalid wad_id %q", domain.ErrPoison, wadID)
	}

	jobScratch, err := os.MkdirTemp(p.scratch, sha1+"-img-*")
	if err != nil {
		return fmt.Errorf("%w: creating scratch dir: %v", domain.ErrRetryable, err)
	}
	defer os.RemoveAll(jobScratch)

	artifactPath, err := p.fetchArtifactFile(ctx, sha1, jobScratch)
	if err != nil {
		return err
	}

	out, err := p.runRenderer(ctx, artifactPath, jobScratch)
	if err != nil {
		return err
	}

	if !out.OK {
		if out.Kind == "no_maps" {
			return fmt.Errorf("%w: %s", domain.ErrNoMaps, out.Message)
		}
		if out.Retry {
			return fmt.Errorf("%w: renderer reported: %s", domain.ErrRetryable, out.Message)
		}
		return fmt.Errorf("%w: renderer reported: %s", domain.ErrPoison, out.Message)
	}

	for mapName, images := range out.MapImages {
		if err := p.client.PutMapImages(ctx, wadID, mapName, images); err != nil {
			return err
		}
	}
	return nil
}

func (p *ImagePipeline) fetchArtifactFile(ctx context.Context, sha1, scratchDir string) (string, error) {
	if buf, ok := p.sidecar.Get(ctx, sha1); ok {
		path := scratchDir + "/artifact.bin"
		if err := os.WriteFile(path, buf, 0644); err != nil {
			return "", fmt.Errorf("%w: writing cached artifact: %v", domain.ErrRetryable, err)
		}
		return path, nil
	}

	key, _, err := p.resolver.Resolve(ctx, sha1, MetaExtension, []string{sha1})
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return "", fmt.Errorf("%w: artifact %s not found in object store", domain.ErrPoison, sha1)
		}
		return "", err
	}

	path, err := p.resolver.FetchAndDecompress(ctx, key, scratchDir)
	if err != nil {
		return "", err
	}

	if buf, readErr := os.ReadFile(path); readErr == nil {
		p.sidecar.Set(ctx, sha1, buf)
	}
	return path, nil
}

// runRenderer invokes the renderer subprocess with a bounded CPU/wall
// timeout, captures a tail of its stderr, and parses its single-line JSON
// stdout protocol. Non-zero exit and timeout are both classified retryable.
func (p *ImagePipeline) runRenderer(ctx context.Context, artifactPath, scratchDir string) (rendererOutput, error) {
	renderCtx, cancel := context.WithTimeout(ctx, p.cfg.Timeout())
	defer cancel()

	args := []string{
		"--input", artifactPath,
		"--out-dir", scratchDir,
		"--width", fmt.Sprintf("%d", p.cfg.Width),
		"--height", fmt.Sprintf("%d", p.cfg.Height),
		"--count", fmt.Sprintf("%d", p.cfg.Count),
	}
	if p.cfg.Panorama {
		args = append(args, "--panorama")
	}

	cmd := exec.CommandContext(renderCtx, p.rendererBin, args...)

	var stdout bytes.Buffer
	cmd.Stdout = &stdout

	tail := newTailWriter(stderrTailBytes)
	cmd.Stderr = tail

	runErr := cmd.Run()

	if renderCtx.Err() != nil {
		// Context cancellation (including our own timeout) sends SIGKILL via
		// exec.CommandContext; classify identically to a non-zero exit.
		return rendererOutput{}, fmt.Errorf("%w: renderer timed out: %s", domain.ErrRetryable, tail.String())
	}
	if runErr != nil {
		return rendererOutput{}, fmt.Errorf("%w: renderer exited with error: %v: %s", domain.ErrRetryable, runErr, tail.String())
	}

	var out rendererOutput
	if err := json.Unmarshal(bytes.TrimSpace(stdout.Bytes()), &out); err != nil {
		return rendererOutput{}, fmt.Errorf("%w: malformed renderer output: %v", domain.ErrRetryable, err)
	}
	return out, nil
}

// tailWriter streams everything written to it through to the parent's
// stderr while keeping only the trailing n bytes as a diagnostic tail.
type tailWriter struct {
	mu  sync.Mutex
	buf []byte
	n   int
}

func newTailWriter(n int) *tailWriter {
	return &tailWriter{n: n}
}

func (t *tailWriter) Write(p []byte) (int, error) {
	os.Stderr.Write(p)

	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf = append(t.buf, p...)
	if len(t.buf) > t.n {
		t.buf = t.buf[len(t.buf)-t.n:]
	}
	return len(p), nil
}

func (t *tailWriter) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return string(t.buf)
}
