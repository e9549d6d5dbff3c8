package importer

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/angelmondragon/procurement-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/procurement-backend/pkg/errors"
)

// Fetcher downloads feed documents over HTTP.
type Fetcher struct {
	client   *http.Client
	maxBytes int64
}

func NewFetcher(cfg config.ImportConfig) *Fetcher {
	timeout := cfg.FetchTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	maxBytes := cfg.MaxFeedBytes
	if maxBytes <= 0 {
		maxBytes = 10 << 20
	}
	return &Fetcher{
		client:   &http.Client{Timeout: timeout},
		maxBytes: maxBytes,
	}
}

// Fetch returns the body of rawURL. Transport errors, non-2xx answers and
// oversized bodies are reported as UPSTREAM_FETCH.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeUpstreamFetch, err, "build feed request")
	}
	req.Header.Set("Accept", "application/yaml, text/yaml, text/plain, */*")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeUpstreamFetch, err, "fetch feed")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, pkgerrors.Newf(pkgerrors.CodeUpstreamFetch, "feed responded with status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeUpstreamFetch, err, "read feed body")
	}
	if int64(len(body)) > f.maxBytes {
		return nil, pkgerrors.Newf(pkgerrors.CodeUpstreamFetch, "feed exceeds %d bytes", f.maxBytes)
	}
	return body, nil
}

// ValidateFeedURL accepts absolute http(s) URLs with a host.
func ValidateFeedURL(raw string) (string, error) {
	value := strings.TrimSpace(raw)
	invalid := pkgerrors.New(pkgerrors.CodeValidation, "invalid feed url").
		WithDetails(map[string]string{"url": "must be an absolute http or https url"})
	if value == "" {
		return "", invalid
	}
	u, err := url.Parse(value)
	if err != nil {
		return "", invalid
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", invalid
	}
	if u.Host == "" || u.Hostname() == "" {
		return "", invalid
	}
	return u.String(), nil
}

// Describe keeps the failure text short enough for task rows and events.
func Describe(err error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	if typed := pkgerrors.As(err); typed != nil {
		msg = fmt.Sprintf("%s: %s", typed.Code(), typed.Message())
		if cause := typed.Unwrap(); cause != nil {
			msg += ": " + cause.Error()
		}
	}
	const limit = 1000
	if len(msg) > limit {
		msg = msg[:limit]
	}
	return msg
}
