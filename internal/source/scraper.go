package source

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/temoto/robotstxt"

	"github.com/jonathan/x-collector/internal/observability"
	"github.com/jonathan/x-collector/internal/retry"
)

// DefaultScraperBaseURL is the public site the scraper targets.
const DefaultScraperBaseURL = "https://twitter.com"

const scraperUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 " +
	"(KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// ScraperConfig configures the browser-driven scraper.
type ScraperConfig struct {
	BaseURL   string
	Timeout   time.Duration
	RateLimit float64 // page fetches per second
	Policy    retry.Policy
}

// Scraper collects posts by rendering the target's public timeline in a
// headless browser and parsing the markup. It checks the robots-exclusion
// policy before the first fetch and refuses to run when fetching is
// disallowed.
type Scraper struct {
	cfg     ScraperConfig
	limiter *retry.Limiter
	log     *slog.Logger

	// render is the page-fetch primitive, replaced in tests.
	render func(ctx context.Context, pageURL string) (string, error)

	robotsChecked bool
	dropped       int
	retries       int
}

// Retries reports how many automatic re-attempts this scraper has consumed.
func (s *Scraper) Retries() int { return s.retries }

// NewScraper creates a scraper. Call Start before the first Fetch.
func NewScraper(cfg ScraperConfig, log *slog.Logger) *Scraper {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultScraperBaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.RateLimit == 0 {
		cfg.RateLimit = 0.5
	}
	if cfg.Policy.MaxAttempts == 0 {
		cfg.Policy = retry.DefaultPolicy()
	}
	if log == nil {
		log = slog.Default()
	}

	s := &Scraper{
		cfg:     cfg,
		limiter: retry.NewLimiter(cfg.RateLimit),
		log:     log,
	}
	s.render = s.renderWithBrowser
	return s
}

// Start verifies the robots-exclusion policy for the target user's page.
// A disallow is fatal: the scraper refuses to run and the caller must not
// fall back silently.
func (s *Scraper) Start(ctx context.Context, username string) error {
	userPage := s.cfg.BaseURL + "/" + url.PathEscape(username)

	robotsURL := s.cfg.BaseURL + "/robots.txt"
	group, err := s.fetchRobots(ctx, robotsURL)
	if err != nil {
		// An unreachable robots.txt is treated as permission to proceed,
		// matching the usual crawler convention for missing policies.
		s.log.Warn("could not fetch robots.txt, proceeding", "url", robotsURL, "error", err)
		s.robotsChecked = true
		return nil
	}

	parsed, err := url.Parse(userPage)
	if err != nil {
		return fmt.Errorf("invalid target page %s: %w", userPage, err)
	}
	if !group.Test(parsed.Path) {
		return &RobotsDisallowedError{URL: userPage}
	}

	s.log.Info("robots.txt allows fetching", "url", userPage)
	s.robotsChecked = true
	return nil
}

// Dropped returns the number of article elements that could not be parsed
// into records during the lifetime of this scraper.
func (s *Scraper) Dropped() int { return s.dropped }

// Fetch renders the user's timeline and parses up to maxResults posts.
// cursor filtering is done client-side: the public timeline exposes no
// since_id parameter, so records at or before the cursor are dropped here.
func (s *Scraper) Fetch(ctx context.Context, username string, maxResults int, cursor string) ([]RawPost, error) {
	if !s.robotsChecked {
		if err := s.Start(ctx, username); err != nil {
			return nil, err
		}
	}

	pageURL := s.cfg.BaseURL + "/" + url.PathEscape(username)
	s.log.Info("scraping timeline", "username", username, "max_posts", maxResults)

	var html string
	attempts, err := retry.DoWithAttempts(ctx, s.cfg.Policy, func(ctx context.Context) error {
		if err := s.limiter.Acquire(ctx); err != nil {
			return err
		}
		rendered, err := s.render(ctx, pageURL)
		if err != nil {
			return retry.Transient(fmt.Errorf("page render failed: %w", err))
		}
		html = rendered
		return nil
	})
	s.retries += attempts - 1
	if err != nil {
		return nil, err
	}

	posts, dropped, err := parseTimeline(html, username, maxResults)
	if err != nil {
		return nil, err
	}
	if dropped > 0 {
		s.dropped += dropped
		observability.ScraperDroppedRecords.Add(float64(dropped))
		s.log.Warn("dropped unparsable articles", "count", dropped)
	}

	if cursor != "" {
		posts = filterAfterCursor(posts, cursor)
	}

	s.log.Info("scrape complete", "username", username, "posts", len(posts))
	return posts, nil
}

// renderWithBrowser loads the page in headless Chrome, scrolls to trigger
// lazy loading, and returns the rendered markup.
func (s *Scraper) renderWithBrowser(ctx context.Context, pageURL string) (string, error) {
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx,
		append(chromedp.DefaultExecAllocatorOptions[:],
			chromedp.Flag("headless", true),
			chromedp.Flag("disable-gpu", true),
			chromedp.Flag("no-sandbox", true),
			chromedp.Flag("disable-dev-shm-usage", true),
			chromedp.Flag("disable-blink-features", "AutomationControlled"),
			chromedp.UserAgent(scraperUserAgent),
		)...,
	)
	defer cancelAlloc()

	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	defer cancelBrowser()

	browserCtx, cancelTimeout := context.WithTimeout(browserCtx, s.cfg.Timeout)
	defer cancelTimeout()

	var html string
	err := chromedp.Run(browserCtx,
		chromedp.Navigate(pageURL),
		chromedp.WaitReady("body"),
		chromedp.WaitVisible(`article[data-testid="tweet"]`, chromedp.ByQuery),
		// Scroll to force lazy-loaded articles into the DOM.
		chromedp.ActionFunc(func(ctx context.Context) error {
			for i := 0; i < 3; i++ {
				if err := chromedp.Evaluate(`window.scrollTo(0, document.body.scrollHeight)`, nil).Do(ctx); err != nil {
					return err
				}
				if err := chromedp.Sleep(1 * time.Second).Do(ctx); err != nil {
					return err
				}
			}
			return nil
		}),
		chromedp.OuterHTML("html", &html),
	)
	if err != nil {
		return "", fmt.Errorf("browser rendering failed: %w", err)
	}

	return html, nil
}

// fetchRobots downloads and parses the robots.txt group for all user agents.
func (s *Scraper) fetchRobots(ctx context.Context, robotsURL string) (*robotstxt.Group, error) {
	client := &http.Client{Timeout: 10 * time.Second}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create robots request: %w", err)
	}
	req.Header.Set("User-Agent", scraperUserAgent)

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("robots request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read robots.txt: %w", err)
	}

	robots, err := robotstxt.FromStatusAndBytes(resp.StatusCode, body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse robots.txt: %w", err)
	}

	return robots.FindGroup("*"), nil
}

// filterAfterCursor keeps only posts strictly newer than the cursor post id.
// X post ids are snowflake ids: numerically (and for equal lengths,
// lexically) increasing over time.
func filterAfterCursor(posts []RawPost, cursor string) []RawPost {
	filtered := posts[:0]
	for _, p := range posts {
		if idAfter(p.ID, cursor) {
			filtered = append(filtered, p)
		}
	}
	return filtered
}

func idAfter(id, cursor string) bool {
	if len(id) != len(cursor) {
		return len(id) > len(cursor)
	}
	return id > cursor
}
