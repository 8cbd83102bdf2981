// Package scratch provides an embedded resume ledger backed by BadgerDB
// (via badgerhold, the teacher's typed struct-tag wrapper around it),
// recording the dispatcher's last-published offset into the primary index
// and each worker delivery outcome, so a restarted process can skip work it
// already completed instead of redoing the whole corpus.
package scratch

import (
	"fmt"
	"os"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"
)

// Ledger wraps a badgerhold store used purely as a local resume record; it
// never participates in the at-least-once delivery contract and is
// advisory only — losing it just means redoing already-processed work.
type Ledger struct {
	store  *badgerhold.Store
	logger arbor.ILogger
}

// Open creates the ledger directory if needed and opens the store.
func Open(path string, logger arbor.ILogger) (*Ledger, error) {
	if err := os.MkdirAll(path, 0755); err != nil {
		return nil, fmt.Errorf("creating ledger directory: %w", err)
	}

	options := badgerhold.DefaultOptions
	options.Dir = path
	options.ValueDir = path
	options.Logger = nil

	store, err := badgerhold.Open(options)
	if err != nil {
		return nil, fmt.Errorf("opening ledger at %s: %w", path, err)
	}

	return &Ledger{store: store, logger: logger}, nil
}

// Close releases the underlying store.
func (l *Ledger) Close() error {
	return l.store.Close()
}

// dispatcherCursorKey is the one row the cursor record is ever stored under;
// there is exactly one dispatcher cursor per ledger.
const dispatcherCursorKey = "dispatcher:cursor"

// cursorRecord is the badgerhold-tagged record for the dispatcher's resume
// cursor.
type cursorRecord struct {
	Key   string `badgerhold:"key"`
	Index int
}

// SetDispatcherCursor records the primary-index row offset a restarted
// dispatcher resumes from: rows before it are skipped, as with --start.
func (l *Ledger) SetDispatcherCursor(index int) error {
	rec := cursorRecord{Key: dispatcherCursorKey, Index: index}
	if err := l.store.Upsert(dispatcherCursorKey, rec); err != nil {
		return fmt.Errorf("recording dispatcher cursor: %w", err)
	}
	return nil
}

// DispatcherCursor returns the last recorded cursor, or 0 if none is set.
func (l *Ledger) DispatcherCursor() (int, error) {
	var rec cursorRecord
	err := l.store.Get(dispatcherCursorKey, &rec)
	if err == badgerhold.ErrNotFound {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("reading dispatcher cursor: %w", err)
	}
	return rec.Index, nil
}

// DeliveryOutcome records what happened the last time a worker processed
// sha1, for diagnostics and duplicate-delivery debugging. It does not gate
// processing: the pipeline contract is at-least-once regardless.
type DeliveryOutcome struct {
	SHA1      string `badgerhold:"key"`
	Outcome   string // "completed", "failed", "poison"
	Message   string
	Timestamp time.Time
}

// RecordDelivery upserts the most recent delivery outcome for sha1.
func (l *Ledger) RecordDelivery(o DeliveryOutcome) error {
	if o.Timestamp.IsZero() {
		o.Timestamp = time.Now()
	}
	if err := l.store.Upsert(o.SHA1, o); err != nil {
		return fmt.Errorf("recording delivery for %s: %w", o.SHA1, err)
	}
	return nil
}

// LastDelivery returns the last recorded outcome for sha1, if any.
func (l *Ledger) LastDelivery(sha1 string) (DeliveryOutcome, bool, error) {
	var out DeliveryOutcome
	err := l.store.Get(sha1, &out)
	if err == badgerhold.ErrNotFound {
		return DeliveryOutcome{}, false, nil
	}
	if err != nil {
		return DeliveryOutcome{}, false, fmt.Errorf("reading delivery for %s: %w", sha1, err)
	}
	return out, true, nil
}
