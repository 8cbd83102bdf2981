// Package catalog is a thin client for the downstream catalog HTTP service:
// out of scope for this pipeline's own logic, specified here only by its
// three endpoints.
package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/beebs-dev/dorch/internal/domain"
)

// Client talks to the downstream catalog service.
type Client struct {
	baseURL string
	http    *http.Client
}

// New builds a Client bound to baseURL with a bounded request timeout.
func New(baseURL string, timeout time.Duration) *Client {
	return &Client{baseURL: baseURL, http: &http.Client{Timeout: timeout}}
}

// GetWAD fetches the stored merged record plus sha1 for wadID.
func (c *Client) GetWAD(ctx context.Context, wadID string) (domain.MergedRecord, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/wad/%s", c.baseURL, wadID), nil)
	if err != nil {
		return domain.MergedRecord{}, fmt.Errorf("%w: building request: %v", domain.ErrRetryable, err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return domain.MergedRecord{}, fmt.Errorf("%w: GET /wad/%s: %v", domain.ErrRetryable, wadID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return domain.MergedRecord{}, fmt.Errorf("%w: GET /wad/%s: status %d", domain.ErrRetryable, wadID, resp.StatusCode)
	}

	var rec domain.MergedRecord
	if err := json.NewDecoder(resp.Body).Decode(&rec); err != nil {
		return domain.MergedRecord{}, fmt.Errorf("%w: decoding wad response: %v", domain.ErrRetryable, err)
	}
	return rec, nil
}

// PutWAD upserts the merged record for sha1. Idempotent by file hash, as
// required by the pipeline's at-least-once delivery contract.
func (c *Client) PutWAD(ctx context.Context, sha1 string, rec domain.MergedRecord) error {
	body, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("%w: marshaling record: %v", domain.ErrPoison, err)
	}
	return c.put(ctx, fmt.Sprintf("/wad/%s", sha1), body)
}

// ImageEntry is one uploaded screenshot or panorama reference.
type ImageEntry struct {
	URL  string `json:"url"`
	Type string `json:"type,omitempty"`
}

// PutMapImages upserts the image URL list for one map within a WAD.
// Idempotent by (wadID, mapName).
func (c *Client) PutMapImages(ctx context.Context, wadID, mapName string, images []ImageEntry) error {
	body, err := json.Marshal(images)
	if err != nil {
		return fmt.Errorf("%w: marshaling images: %v", domain.ErrPoison, err)
	}
	return c.put(ctx, fmt.Sprintf("/wad/%s/maps/%s/images", wadID, mapName), body)
}

func (c *Client) put(ctx context.Context, path string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: building request: %v", domain.ErrRetryable, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: PUT %s: %v", domain.ErrRetryable, path, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 300 {
		return fmt.Errorf("%w: PUT %s: status %d", domain.ErrRetryable, path, resp.StatusCode)
	}
	return nil
}
