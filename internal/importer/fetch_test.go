package importer

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/procurement-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/procurement-backend/pkg/errors"
)

func TestFetcherReturnsBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(acmeFeed))
	}))
	defer srv.Close()

	body, err := NewFetcher(config.ImportConfig{FetchTimeout: time.Second}).Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	require.Equal(t, acmeFeed, string(body))
}

func TestFetcherRejectsNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := NewFetcher(config.ImportConfig{}).Fetch(context.Background(), srv.URL)
	require.True(t, pkgerrors.HasCode(err, pkgerrors.CodeUpstreamFetch))
	require.True(t, retryable(err))
}

func TestFetcherRejectsOversizedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(strings.Repeat("x", 64)))
	}))
	defer srv.Close()

	_, err := NewFetcher(config.ImportConfig{MaxFeedBytes: 16}).Fetch(context.Background(), srv.URL)
	require.True(t, pkgerrors.HasCode(err, pkgerrors.CodeUpstreamFetch))
}

func TestValidateFeedURL(t *testing.T) {
	got, err := ValidateFeedURL("  https://example.com/feed.yaml ")
	require.NoError(t, err)
	require.Equal(t, "https://example.com/feed.yaml", got)

	for _, raw := range []string{"", "ftp://example.com/x", "/relative/path", "http://", "::not a url"} {
		_, err := ValidateFeedURL(raw)
		require.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation), "url %q", raw)
	}
}

func TestDescribe(t *testing.T) {
	require.Equal(t, "", Describe(nil))
	err := pkgerrors.Wrap(pkgerrors.CodeUpstreamFetch, errors.New("dial tcp: refused"), "fetch feed")
	require.Equal(t, "UPSTREAM_FETCH: fetch feed: dial tcp: refused", Describe(err))
	require.Len(t, Describe(errors.New(strings.Repeat("a", 2000))), 1000)
}
