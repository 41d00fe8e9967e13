package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/sync/singleflight"
)

// Fetcher supplies the raw subscription text.
type Fetcher interface {
	Fetch(ctx context.Context) (string, error)
}

// upstreamFetcher: одновременные запросы к одному upstream делят одну загрузку
type upstreamFetcher struct {
	client  *http.Client
	url     string
	timeout time.Duration
	group   singleflight.Group
}

func newUpstreamFetcher(client *http.Client, url string, timeout time.Duration) *upstreamFetcher {
	if timeout <= 0 {
		timeout = DefaultFetchTimeout
	}
	return &upstreamFetcher{client: client, url: url, timeout: timeout}
}

// Fetch waits for the shared download or for its own ctx, whichever ends first.
// The download itself is not tied to any single caller.
func (f *upstreamFetcher) Fetch(ctx context.Context) (string, error) {
	ch := f.group.DoChan(f.url, func() (any, error) {
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), f.timeout)
		defer cancel()
		return fetchText(fctx, f.client, f.url)
	})
	select {
	case <-ctx.Done():
		return "", fmt.Errorf("fetch upstream: %w", ctx.Err())
	case r := <-ch:
		if r.Err != nil {
			return "", fmt.Errorf("fetch upstream: %w", r.Err)
		}
		return r.Val.(string), nil
	}
}

func fetchText(ctx context.Context, client *http.Client, u string) (string, error) {
	req, err := NewRequestWithUA(ctx, http.MethodGet, u)
	if err != nil {
		return "", err
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("http %d", resp.StatusCode)
	}
	b, err := io.ReadAll(io.LimitReader(resp.Body, maxRemoteSize))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// вспомогательные штуки

func NewRequestWithUA(ctx context.Context, method, url string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)
	return req, nil
}

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}
