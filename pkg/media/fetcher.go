// Package media downloads remote media so it can be re-uploaded through the
// private API (photo-by-URL sends).
package media

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

// Fetcher downloads media bytes over HTTP.
type Fetcher struct {
	client   *resty.Client
	maxBytes int64
}

// NewFetcher creates a fetcher with a request timeout and a size cap.
func NewFetcher(timeout time.Duration, maxBytes int64) *Fetcher {
	client := resty.New().
		SetTimeout(timeout).
		SetRetryCount(2).
		SetRetryWaitTime(500 * time.Millisecond)
	return &Fetcher{client: client, maxBytes: maxBytes}
}

// Fetch downloads url and returns the body bytes.
func (f *Fetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	resp, err := f.client.R().SetContext(ctx).Get(url)
	if err != nil {
		return nil, fmt.Errorf("media: fetch %s: %w", url, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("media: fetch %s: status %d", url, resp.StatusCode())
	}
	body := resp.Body()
	if f.maxBytes > 0 && int64(len(body)) > f.maxBytes {
		return nil, fmt.Errorf("media: %s exceeds %d byte limit", url, f.maxBytes)
	}
	if len(body) == 0 {
		return nil, fmt.Errorf("media: %s returned an empty body", url)
	}
	return body, nil
}
