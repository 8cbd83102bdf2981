// Package queue wraps NATS JetStream as a durable, at-least-once work
// queue: subject derivation, JobEnvelope encoding, stream provisioning, and
// a pull-consumer wrapper used by both the dispatcher and the workers.
package queue

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/beebs-dev/dorch/internal/domain"
)

// SubjectForMeta derives the metadata-job subject for a file hash.
func SubjectForMeta(sha1 string) string {
	return fmt.Sprintf("dorch.wad.%s.meta", sha1)
}

// SubjectForImage derives the image-job subject for a catalog WAD uuid.
func SubjectForImage(wadID string) string {
	return fmt.Sprintf("dorch.wad.%s.img", wadID)
}

// ParseSubject extracts the hash/uuid component (the next-to-last
// dot-separated segment) from a subject and validates it looks like the
// expected identifier shape: a file hash for "meta" subjects, a UUID for
// "img" subjects. Identifiers under any other trailing segment are only
// checked for being non-empty.
func ParseSubject(subject string) (id string, kind string, ok bool) {
	parts := strings.Split(subject, ".")
	if len(parts) < 2 {
		return "", "", false
	}
	kind = parts[len(parts)-1]
	id = parts[len(parts)-2]
	if id == "" {
		return "", "", false
	}
	switch kind {
	case "meta":
		if !domain.IsValidFileHash(id) {
			return "", "", false
		}
	case "img":
		if _, err := uuid.Parse(id); err != nil {
			return "", "", false
		}
	}
	return id, kind, true
}

// EncodeEnvelope serializes a JobEnvelope as UTF-8 JSON.
func EncodeEnvelope(e domain.JobEnvelope) ([]byte, error) {
	return json.Marshal(e)
}

// DecodeEnvelope parses a JobEnvelope, rejecting payloads that are not JSON
// objects or whose sha1 is invalid. A missing or non-positive dispatched_at
// is replaced with the current wall time.
func DecodeEnvelope(data []byte) (domain.JobEnvelope, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return domain.JobEnvelope{}, fmt.Errorf("%w: payload is not a JSON object: %v", domain.ErrPoison, err)
	}

	var e domain.JobEnvelope
	if err := json.Unmarshal(data, &e); err != nil {
		return domain.JobEnvelope{}, fmt.Errorf("%w: decoding envelope: %v", domain.ErrPoison, err)
	}

	if !domain.IsValidFileHash(e.SHA1) {
		return domain.JobEnvelope{}, fmt.Errorf("%w: invalid sha1 %q", domain.ErrPoison, e.SHA1)
	}

	if e.DispatchedAt <= 0 {
		e.DispatchedAt = float64(time.Now().Unix())
	}

	return e, nil
}

// NewEnvelope builds a JobEnvelope for dispatch at the current version.
func NewEnvelope(sha1 string, primary, crossRef, readme map[string]any) domain.JobEnvelope {
	return domain.JobEnvelope{
		Version:             1,
		SHA1:                sha1,
		PrimaryEntry:        primary,
		CrossReferenceEntry: crossRef,
		ReadmeEntry:         readme,
		DispatchedAt:        float64(time.Now().Unix()),
	}
}

// NewImageEnvelope builds a JobEnvelope for an image job: wadID is the
// catalog's UUID (used for the subject and the image-upload endpoint),
// sha1 is the content hash used to locate the artifact in the object store.
func NewImageEnvelope(wadID, sha1 string) domain.JobEnvelope {
	return domain.JobEnvelope{
		Version:      1,
		SHA1:         sha1,
		WadID:        wadID,
		DispatchedAt: float64(time.Now().Unix()),
	}
}

// DecodeImageEnvelope is DecodeEnvelope's counterpart for image jobs: it
// validates WadID as a UUID rather than SHA1 as a file hash, since the
// image subject and catalog endpoint both address by the catalog's id.
func DecodeImageEnvelope(data []byte) (domain.JobEnvelope, error) {
	var e domain.JobEnvelope
	if err := json.Unmarshal(data, &e); err != nil {
		return domain.JobEnvelope{}, fmt.Errorf("%w: decoding image envelope: %v", domain.ErrPoison, err)
	}
	if _, err := uuid.Parse(e.WadID); err != nil {
		return domain.JobEnvelope{}, fmt.Errorf("%w: invalid wad_id %q", domain.ErrPoison, e.WadID)
	}
	if e.DispatchedAt <= 0 {
		e.DispatchedAt = float64(time.Now().Unix())
	}
	return e, nil
}
