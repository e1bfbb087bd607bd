package source

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/x-collector/internal/retry"
)

func fastScraperConfig(baseURL string) ScraperConfig {
	return ScraperConfig{
		BaseURL:   baseURL,
		Timeout:   5 * time.Second,
		RateLimit: 1000,
		Policy: retry.Policy{
			MaxAttempts: 3,
			BaseDelay:   time.Millisecond,
			Factor:      2.0,
		},
	}
}

func robotsServer(t *testing.T, robotsBody string) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			_, _ = w.Write([]byte(robotsBody))
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	t.Cleanup(server.Close)
	return server
}

func TestScraper_RobotsDisallowed(t *testing.T) {
	server := robotsServer(t, "User-agent: *\nDisallow: /\n")
	s := NewScraper(fastScraperConfig(server.URL), nil)

	err := s.Start(context.Background(), "nasa")
	require.Error(t, err)

	var robotsErr *RobotsDisallowedError
	require.ErrorAs(t, err, &robotsErr)
	assert.Contains(t, robotsErr.URL, "/nasa")
}

func TestScraper_RobotsDisallowedBlocksFetch(t *testing.T) {
	server := robotsServer(t, "User-agent: *\nDisallow: /\n")
	s := NewScraper(fastScraperConfig(server.URL), nil)
	s.render = func(context.Context, string) (string, error) {
		t.Fatal("render must not run when robots.txt disallows the page")
		return "", nil
	}

	_, err := s.Fetch(context.Background(), "nasa", 10, "")
	var robotsErr *RobotsDisallowedError
	require.ErrorAs(t, err, &robotsErr)
}

func TestScraper_RobotsAllowed(t *testing.T) {
	server := robotsServer(t, "User-agent: *\nDisallow: /search\n")
	s := NewScraper(fastScraperConfig(server.URL), nil)

	require.NoError(t, s.Start(context.Background(), "nasa"))
}

func TestScraper_RobotsUnreachableProceeds(t *testing.T) {
	// A server with no robots.txt at all; the 404 yields a permissive policy.
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	s := NewScraper(fastScraperConfig(server.URL), nil)
	require.NoError(t, s.Start(context.Background(), "nasa"))
}

func TestScraper_FetchParsesRenderedPage(t *testing.T) {
	server := robotsServer(t, "User-agent: *\nAllow: /\n")
	s := NewScraper(fastScraperConfig(server.URL), nil)

	var renderedURL string
	s.render = func(_ context.Context, pageURL string) (string, error) {
		renderedURL = pageURL
		return timelineHTML(
			articleHTML("1900000000000000010", "newest", ""),
			articleHTML("1900000000000000009", "older", ""),
		), nil
	}

	posts, err := s.Fetch(context.Background(), "nasa", 10, "")
	require.NoError(t, err)
	assert.Equal(t, server.URL+"/nasa", renderedURL)
	require.Len(t, posts, 2)
	assert.Equal(t, "1900000000000000010", posts[0].ID)
	assert.Equal(t, 0, s.Dropped())
}

func TestScraper_FetchFiltersCursor(t *testing.T) {
	server := robotsServer(t, "User-agent: *\nAllow: /\n")
	s := NewScraper(fastScraperConfig(server.URL), nil)
	s.render = func(context.Context, string) (string, error) {
		return timelineHTML(
			articleHTML("1900000000000000010", "after cursor", ""),
			articleHTML("1900000000000000008", "the cursor itself", ""),
			articleHTML("1900000000000000005", "before cursor", ""),
		), nil
	}

	posts, err := s.Fetch(context.Background(), "nasa", 10, "1900000000000000008")
	require.NoError(t, err)
	require.Len(t, posts, 1)
	assert.Equal(t, "1900000000000000010", posts[0].ID)
}

func TestScraper_FetchRetriesRenderFailures(t *testing.T) {
	server := robotsServer(t, "User-agent: *\nAllow: /\n")
	s := NewScraper(fastScraperConfig(server.URL), nil)

	var calls int
	s.render = func(context.Context, string) (string, error) {
		calls++
		if calls < 2 {
			return "", errors.New("browser crashed")
		}
		return timelineHTML(articleHTML("1900000000000000010", "ok", "")), nil
	}

	posts, err := s.Fetch(context.Background(), "nasa", 10, "")
	require.NoError(t, err)
	assert.Len(t, posts, 1)
	assert.Equal(t, 2, calls)
	assert.Equal(t, 1, s.Retries())
}

func TestScraper_FetchCountsDropped(t *testing.T) {
	server := robotsServer(t, "User-agent: *\nAllow: /\n")
	s := NewScraper(fastScraperConfig(server.URL), nil)
	s.render = func(context.Context, string) (string, error) {
		broken := `<article data-testid="tweet"><div data-testid="tweetText">no id</div></article>`
		return timelineHTML(broken, articleHTML("1900000000000000010", "ok", "")), nil
	}

	posts, err := s.Fetch(context.Background(), "nasa", 10, "")
	require.NoError(t, err)
	assert.Len(t, posts, 1)
	assert.Equal(t, 1, s.Dropped())
}

func TestIDAfter(t *testing.T) {
	assert.True(t, idAfter("1000000000000000002", "1000000000000000001"))
	assert.False(t, idAfter("1000000000000000001", "1000000000000000002"))
	assert.False(t, idAfter("1000000000000000001", "1000000000000000001"))
	// Snowflake ids grow in magnitude over time; a longer id is newer.
	assert.True(t, idAfter("10000000000000000000", "9999999999999999999"))
	assert.False(t, idAfter("999", "1000"))
}
