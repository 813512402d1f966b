package singleton

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
)

// HTTPFetcher fetches scripts with GET requests.
// Relative URLs are resolved against BaseURL when it is set.
type HTTPFetcher struct {
	Client  *http.Client
	BaseURL string
}

func (f HTTPFetcher) Fetch(ctx context.Context, target string) ([]byte, error) {
	resolved, err := f.resolve(target)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, resolved, nil)
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}

	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// Drain so the connection can be reused.
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, HTTPStatusError{URL: resolved, StatusCode: resp.StatusCode}
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return body, nil
}

func (f HTTPFetcher) resolve(target string) (string, error) {
	if f.BaseURL == "" {
		return target, nil
	}
	base, err := url.Parse(f.BaseURL)
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	ref, err := url.Parse(target)
	if err != nil {
		return "", fmt.Errorf("parse script url: %w", err)
	}
	return base.ResolveReference(ref).String(), nil
}
