// Package dispatcher reads the corpus indices and publishes one job
// envelope per known file hash onto the metadata queue.
package dispatcher

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/beebs-dev/dorch/internal/appconfig"
	"github.com/beebs-dev/dorch/internal/domain"
	"github.com/beebs-dev/dorch/internal/metrics"
	"github.com/beebs-dev/dorch/internal/queue"
	"github.com/beebs-dev/dorch/internal/shutdown"
)

// IndexEntry is one row of the primary or cross-reference index, kept as an
// opaque map so unknown fields pass through untouched into the job envelope
// and, eventually, the merged record's Sources.
type IndexEntry = map[string]any

// Indices holds the loaded corpus indices, keyed by sha1.
type Indices struct {
	Primary  []IndexEntry   // in file order; dispatch order follows this
	CrossRef map[string]IndexEntry
	Readmes  map[string]IndexEntry
}

// LoadIndices reads the primary and cross-reference JSONL files (plus an
// optional readmes JSONL), filtering the cross-reference lookup down to
// entries that intersect the primary index's known hash set.
func LoadIndices(primaryPath, crossRefPath, readmesPath string) (Indices, error) {
	primary, err := readJSONL(primaryPath)
	if err != nil {
		return Indices{}, fmt.Errorf("reading primary index: %w", err)
	}

	known := map[string]bool{}
	for _, e := range primary {
		if sha1, ok := e["sha1"].(string); ok {
			known[sha1] = true
		}
	}

	crossRefRows, err := readJSONL(crossRefPath)
	if err != nil {
		return Indices{}, fmt.Errorf("reading cross-reference index: %w", err)
	}
	crossRef := map[string]IndexEntry{}
	for _, e := range crossRefRows {
		sha1, ok := e["sha1"].(string)
		if !ok || !known[sha1] {
			continue
		}
		crossRef[sha1] = e
	}

	var readmes map[string]IndexEntry
	if readmesPath != "" {
		readmes = map[string]IndexEntry{}
		rows, err := readJSONLSkipInvalid(readmesPath)
		if err != nil {
			return Indices{}, fmt.Errorf("reading readmes index: %w", err)
		}
		for _, e := range rows {
			if sha1, ok := e["sha1"].(string); ok {
				readmes[sha1] = e
			}
		}
	}

	return Indices{Primary: primary, CrossRef: crossRef, Readmes: readmes}, nil
}

func readJSONL(path string) ([]IndexEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var out []IndexEntry
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var entry IndexEntry
		if err := json.Unmarshal(line, &entry); err != nil {
			return nil, fmt.Errorf("invalid JSON line: %w", err)
		}
		out = append(out, entry)
	}
	return out, scanner.Err()
}

// readJSONLSkipInvalid is identical to readJSONL but tolerates malformed
// lines by skipping them, per the readmes index's best-effort contract.
func readJSONLSkipInvalid(path string) ([]IndexEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var out []IndexEntry
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var entry IndexEntry
		if err := json.Unmarshal(line, &entry); err != nil {
			continue
		}
		out = append(out, entry)
	}
	return out, scanner.Err()
}

// Options bound the scope of one dispatch run.
type Options struct {
	Start       int
	Limit       int // 0 == unbounded
	Sleep       time.Duration
	SmokeTestID string // if set, dispatch only this one sha1
}

// Dispatcher publishes JobEnvelopes for a loaded corpus.
type Dispatcher struct {
	q      *queue.Queue
	cfg    appconfig.DispatcherConfig
	stream appconfig.StreamConfig
	signal *shutdown.Signaler
	logger arbor.ILogger
}

// New builds a Dispatcher.
func New(q *queue.Queue, cfg appconfig.DispatcherConfig, stream appconfig.StreamConfig, signal *shutdown.Signaler, logger arbor.ILogger) *Dispatcher {
	return &Dispatcher{q: q, cfg: cfg, stream: stream, signal: signal, logger: logger}
}

// EnsureStream provisions the metadata stream with work-queue retention.
func (d *Dispatcher) EnsureStream(ctx context.Context) error {
	_, err := d.q.EnsureStream(ctx, queue.StreamConfig{
		Name:            d.stream.Name,
		Subjects:        []string{"dorch.wad.*.meta"},
		MaxAge:          d.stream.MaxAge(),
		DuplicateWindow: d.stream.DedupeWindow(),
		MaxBytes:        d.stream.MaxBytes,
	})
	return err
}

// Run iterates the primary index in order, publishing one JobEnvelope per
// valid hash, honoring opts and the shared shutdown signal.
func (d *Dispatcher) Run(ctx context.Context, idx Indices, opts Options) (published int, err error) {
	for i, entry := range idx.Primary {
		if d.signal.Requested() {
			d.logger.Info().Int("published", published).Msg("shutdown requested; stopping dispatch")
			break
		}
		if opts.SmokeTestID == "" && i < opts.Start {
			continue
		}
		if opts.Limit > 0 && published >= opts.Limit {
			break
		}

		sha1, ok := entry["sha1"].(string)
		if !ok || !domain.IsValidFileHash(sha1) {
			d.logger.Warn().Int("row", i).Msg("skipping primary index row with missing/invalid sha1")
			continue
		}
		if opts.SmokeTestID != "" && sha1 != opts.SmokeTestID {
			continue
		}

		env := queue.NewEnvelope(sha1, entry, idx.CrossRef[sha1], idx.Readmes[sha1])
		data, err := queue.EncodeEnvelope(env)
		if err != nil {
			return published, fmt.Errorf("encoding envelope for %s: %w", sha1, err)
		}

		subject := queue.SubjectForMeta(sha1)
		msgID := "dorch-meta:" + sha1
		if err := d.q.Publish(ctx, subject, data, msgID, d.cfg.PublishTimeout()); err != nil {
			return published, fmt.Errorf("publishing %s: %w", sha1, err)
		}

		published++
		metrics.DispatchedTotal.Inc()
		if opts.Sleep > 0 {
			time.Sleep(opts.Sleep)
		}
	}

	if d.signal.Requested() {
		if err := d.q.Flush(3 * time.Second); err != nil {
			d.logger.Warn().Err(err).Msg("flush on fast-exit failed")
		}
	} else {
		if err := d.q.Drain(); err != nil {
			d.logger.Warn().Err(err).Msg("drain failed")
		}
	}

	return published, nil
}
