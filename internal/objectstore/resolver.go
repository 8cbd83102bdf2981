// Package objectstore locates and fetches the compressed artifact for a
// file hash from an S3-compatible bucket, then decompresses it into a
// scratch path.
package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	smithyhttp "github.com/aws/smithy-go/transport/http"
	"github.com/klauspost/compress/gzip"
	"github.com/ternarybob/arbor"

	"github.com/beebs-dev/dorch/internal/domain"
)

// legacyFallbackPrefixes is the fixed fallback set retained only for
// archival compatibility with pre-canonical-key deployments.
var legacyFallbackPrefixes = []string{"00", "01", "02", "03", "ff"}

// Config configures one Resolver instance.
type Config struct {
	Bucket      string
	Endpoint    string
	Region      string
	LegacyProbe bool // enables the bounded prefix-probe fallback; off by default
}

// Resolver fetches and decompresses WAD artifacts from an S3-compatible store.
type Resolver struct {
	client *s3.Client
	cfg    Config
	logger arbor.ILogger
}

// New builds a Resolver against the given bucket/endpoint.
func New(ctx context.Context, cfg Config, logger arbor.ILogger) (*Resolver, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = true
	})

	return &Resolver{client: client, cfg: cfg, logger: logger}, nil
}

// CanonicalKey is the deployment's current key layout:
// {hash-with-leading-"00"-stripped}/{hash}.{ext}.gz
func CanonicalKey(hash, ext string) string {
	trimmed := strings.TrimPrefix(hash, "00")
	return fmt.Sprintf("%s/%s.%s.gz", trimmed, hash, ext)
}

// Resolve finds the object key for hash, preferring the canonical layout and
// falling back to a bounded HEAD-probe of legacy prefixes only when
// LegacyProbe is enabled. hashHints are the known hash strings for this file
// (sha1, and md5/sha256 when already known from the index entry) that the
// legacy prefix probe derives two-hex-character candidates from, alongside
// the fixed fallback set. Returns the key that a HEAD confirmed exists.
func (r *Resolver) Resolve(ctx context.Context, hash, ext string, hashHints []string) (string, []string, error) {
	canonical := CanonicalKey(hash, ext)
	tried := []string{canonical}

	ok, err := r.headExists(ctx, canonical)
	if err != nil {
		return "", tried, err
	}
	if ok {
		return canonical, tried, nil
	}

	if !r.cfg.LegacyProbe {
		return "", tried, domain.ErrNotFound
	}

	for _, prefix := range legacyPrefixes(hashHints) {
		key := fmt.Sprintf("%s/%s.%s.gz", prefix, hash, ext)
		tried = append(tried, key)
		ok, err := r.headExists(ctx, key)
		if err != nil {
			return "", tried, err
		}
		if ok {
			return key, tried, nil
		}
	}

	return "", tried, domain.ErrNotFound
}

// legacyPrefixes derives the bounded probe-candidate prefix list: the first
// two hex characters of each known hash hint, deduped, followed by the
// fixed fallback set.
func legacyPrefixes(hashHints []string) []string {
	seen := map[string]bool{}
	var out []string
	add := func(p string) {
		p = strings.ToLower(p)
		if len(p) != 2 || seen[p] {
			return
		}
		seen[p] = true
		out = append(out, p)
	}
	for _, h := range hashHints {
		if len(h) >= 2 {
			add(h[:2])
		}
	}
	for _, p := range legacyFallbackPrefixes {
		add(p)
	}
	return out
}

// headExists treats 404/403 as "not found" (ok=false, err=nil) and
// propagates any other HTTP/IO error, since a transient failure on the
// canonical-key HEAD must not be silently classified as absent.
func (r *Resolver) headExists(ctx context.Context, key string) (bool, error) {
	_, err := r.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(r.cfg.Bucket),
		Key:    aws.String(key),
	})
	if err == nil {
		return true, nil
	}

	var respErr *smithyhttp.ResponseError
	if errors.As(err, &respErr) {
		switch respErr.HTTPStatusCode() {
		case http.StatusNotFound, http.StatusForbidden:
			return false, nil
		}
	}
	return false, fmt.Errorf("%w: head %s: %v", domain.ErrRetryable, key, err)
}

// FetchAndDecompress downloads the compressed object at key into scratchDir
// and gzip-decompresses it into a second file, returning its path.
func (r *Resolver) FetchAndDecompress(ctx context.Context, key, scratchDir string) (string, error) {
	out, err := r.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(r.cfg.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return "", fmt.Errorf("%w: fetching %s: %v", domain.ErrRetryable, key, err)
	}
	defer out.Body.Close()

	compressedPath := scratchDir + "/artifact.gz"
	decompressedPath := scratchDir + "/artifact.bin"

	compressedFile, err := os.Create(compressedPath)
	if err != nil {
		return "", fmt.Errorf("%w: creating scratch file: %v", domain.ErrRetryable, err)
	}
	if _, err := io.Copy(compressedFile, out.Body); err != nil {
		compressedFile.Close()
		return "", fmt.Errorf("%w: writing scratch file: %v", domain.ErrRetryable, err)
	}
	compressedFile.Close()

	if err := decompressGzip(compressedPath, decompressedPath); err != nil {
		return "", fmt.Errorf("%w: decompressing artifact: %v", domain.ErrRetryable, err)
	}

	return decompressedPath, nil
}

func decompressGzip(srcPath, dstPath string) error {
	src, err := os.Open(srcPath)
	if err != nil {
		return err
	}
	defer src.Close()

	gz, err := gzip.NewReader(src)
	if err != nil {
		return err
	}
	defer gz.Close()

	dst, err := os.Create(dstPath)
	if err != nil {
		return err
	}
	defer dst.Close()

	_, err = io.Copy(dst, gz)
	return err
}

// PublicURL returns the virtual-hosted URL a downstream reader can fetch
// the object from directly.
func (r *Resolver) PublicURL(key string) string {
	host := strings.TrimPrefix(r.cfg.Endpoint, "https://")
	host = strings.TrimPrefix(host, "http://")
	return fmt.Sprintf("https://%s.%s/%s", r.cfg.Bucket, host, key)
}
