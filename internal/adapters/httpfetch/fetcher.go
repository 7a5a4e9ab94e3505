// Package httpfetch downloads image bytes over HTTP with a bounded timeout.
package httpfetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/fr0stylo/photomigrate/internal/app/ports"
	"github.com/fr0stylo/photomigrate/internal/observability"
)

const (
	DefaultTimeout = 10 * time.Second
	userAgent      = "photomigrate/1"
	// Error bodies are only drained, never stored.
	maxErrorBody = 64 << 10
)

// Fetcher implements ports.Fetcher.
type Fetcher struct {
	client *http.Client
}

var _ ports.Fetcher = (*Fetcher)(nil)

// Option customizes a Fetcher.
type Option func(*Fetcher)

// WithTransport replaces the base round tripper. It is still wrapped with tracing.
func WithTransport(rt http.RoundTripper) Option {
	return func(f *Fetcher) {
		f.client.Transport = observability.InstrumentTransport(rt)
	}
}

// New builds a Fetcher whose requests, body read included, are bounded by timeout.
// A non-positive timeout selects DefaultTimeout.
func New(timeout time.Duration, opts ...Option) *Fetcher {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	f := &Fetcher{client: &http.Client{
		Timeout:   timeout,
		Transport: observability.InstrumentTransport(nil),
	}}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch issues a GET for rawURL. Non-2xx responses are returned without error so the caller
// can classify them; only transport failures produce an error.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (ports.FetchResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return ports.FetchResult{}, err
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return ports.FetchResult{}, err
	}
	defer resp.Body.Close()

	result := ports.FetchResult{StatusCode: resp.StatusCode, Status: resp.Status, Header: resp.Header}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))
		return result, nil
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return ports.FetchResult{}, fmt.Errorf("read body: %w", err)
	}
	result.Body = body
	return result, nil
}
