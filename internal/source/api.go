package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/jonathan/x-collector/internal/retry"
)

// DefaultAPIBaseURL is the X API v2 endpoint.
const DefaultAPIBaseURL = "https://api.x.com"

// maxResultsPerPage is the X API v2 per-request ceiling for timelines.
const maxResultsPerPage = 100

var errUserNotFound = errors.New("user not found")

// APIConfig configures the structured API client.
type APIConfig struct {
	BearerToken string
	APIKey      string
	APISecret   string

	BaseURL   string
	Timeout   time.Duration
	RateLimit float64 // requests per second
	Policy    retry.Policy
}

// APIClient collects posts through the X API v2. It resolves the username to
// a user id once per instance and paginates timelines until the requested
// number of records is satisfied or the API reports no more pages.
type APIClient struct {
	cfg        APIConfig
	httpClient *http.Client
	limiter    *retry.Limiter
	log        *slog.Logger

	bearer  string
	userIDs map[string]string
	retries int
}

// Retries reports how many automatic re-attempts this client has consumed.
func (c *APIClient) Retries() int { return c.retries }

// NewAPIClient creates an API client. Either a bearer token or a key/secret
// pair is required; the key/secret pair is exchanged for an app-only bearer
// token on first use.
func NewAPIClient(cfg APIConfig, log *slog.Logger) (*APIClient, error) {
	if cfg.BearerToken == "" && (cfg.APIKey == "" || cfg.APISecret == "") {
		return nil, &AuthError{Cause: errors.New("either bearer token or key/secret pair must be provided")}
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultAPIBaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.RateLimit == 0 {
		cfg.RateLimit = 1
	}
	if cfg.Policy.MaxAttempts == 0 {
		cfg.Policy = retry.DefaultPolicy()
	}
	if log == nil {
		log = slog.Default()
	}

	return &APIClient{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		limiter:    retry.NewLimiter(cfg.RateLimit),
		log:        log,
		bearer:     cfg.BearerToken,
		userIDs:    make(map[string]string),
	}, nil
}

// Fetch retrieves up to maxResults posts for username, newer than cursor if
// one is given. A user that does not exist yields an empty result, not an
// error.
func (c *APIClient) Fetch(ctx context.Context, username string, maxResults int, cursor string) ([]RawPost, error) {
	userID, err := c.resolveUserID(ctx, username)
	if err != nil {
		if errors.Is(err, errUserNotFound) {
			c.log.Warn("user not found, returning empty result", "username", username)
			return nil, nil
		}
		return nil, err
	}

	var (
		posts     []RawPost
		pageToken string
		remaining = maxResults
	)

	for remaining > 0 {
		pageSize := remaining
		if pageSize > maxResultsPerPage {
			pageSize = maxResultsPerPage
		}

		page, err := c.fetchTimelinePage(ctx, userID, pageSize, cursor, pageToken)
		if err != nil {
			return posts, err
		}
		if len(page.Data) == 0 {
			break
		}

		mediaByKey := make(map[string]apiMedia, len(page.Includes.Media))
		for _, m := range page.Includes.Media {
			mediaByKey[m.MediaKey] = m
		}

		for _, tweet := range page.Data {
			raw := tweet.toRawPost(username, mediaByKey)
			posts = append(posts, raw)
		}

		remaining -= len(page.Data)
		if page.Meta.NextToken == "" {
			break
		}
		pageToken = page.Meta.NextToken
	}

	c.log.Info("api fetch complete", "username", username, "posts", len(posts))
	return posts, nil
}

// resolveUserID maps a username to its stable user id, cached per client.
func (c *APIClient) resolveUserID(ctx context.Context, username string) (string, error) {
	if id, ok := c.userIDs[username]; ok {
		return id, nil
	}

	endpoint := fmt.Sprintf("%s/2/users/by/username/%s", c.cfg.BaseURL, url.PathEscape(username))
	q := url.Values{}
	q.Set("user.fields", "id,name,username")

	var resp apiUserResponse
	attempts, err := retry.DoWithAttempts(ctx, c.cfg.Policy, func(ctx context.Context) error {
		return c.getJSON(ctx, endpoint+"?"+q.Encode(), &resp)
	})
	c.retries += attempts - 1
	if err != nil {
		return "", err
	}
	if resp.Data.ID == "" {
		return "", errUserNotFound
	}

	c.userIDs[username] = resp.Data.ID
	return resp.Data.ID, nil
}

func (c *APIClient) fetchTimelinePage(ctx context.Context, userID string, pageSize int, sinceID, pageToken string) (*apiTimelineResponse, error) {
	// The v2 timeline endpoint rejects max_results below 5.
	if pageSize < 5 {
		pageSize = 5
	}

	q := url.Values{}
	q.Set("max_results", strconv.Itoa(pageSize))
	q.Set("tweet.fields", "id,text,created_at,author_id,conversation_id,public_metrics,referenced_tweets,attachments,lang")
	q.Set("expansions", "attachments.media_keys,referenced_tweets.id")
	q.Set("media.fields", "url,preview_image_url,type")
	if sinceID != "" {
		q.Set("since_id", sinceID)
	}
	if pageToken != "" {
		q.Set("pagination_token", pageToken)
	}

	endpoint := fmt.Sprintf("%s/2/users/%s/tweets?%s", c.cfg.BaseURL, url.PathEscape(userID), q.Encode())

	var resp apiTimelineResponse
	attempts, err := retry.DoWithAttempts(ctx, c.cfg.Policy, func(ctx context.Context) error {
		return c.getJSON(ctx, endpoint, &resp)
	})
	c.retries += attempts - 1
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// getJSON performs one authenticated GET and decodes the response. Errors
// are classified here: auth failures are fatal, rate limits and server
// errors are transient, anything else propagates as-is.
func (c *APIClient) getJSON(ctx context.Context, endpoint string, out any) error {
	if err := c.limiter.Acquire(ctx); err != nil {
		return err
	}
	if err := c.ensureBearer(ctx); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.bearer)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return retry.Transient(fmt.Errorf("x api request failed: %w", err))
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return &AuthError{Cause: fmt.Errorf("x api status %d", resp.StatusCode)}
	case resp.StatusCode == http.StatusNotFound:
		return errUserNotFound
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return retry.Transient(fmt.Errorf("x api status %d", resp.StatusCode))
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("x api status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode x api response: %w", err)
	}
	return nil
}

// ensureBearer exchanges the key/secret pair for an app-only bearer token
// when no bearer token was configured directly.
func (c *APIClient) ensureBearer(ctx context.Context) error {
	if c.bearer != "" {
		return nil
	}

	form := strings.NewReader("grant_type=client_credentials")
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/oauth2/token", form)
	if err != nil {
		return fmt.Errorf("failed to create token request: %w", err)
	}
	req.SetBasicAuth(url.QueryEscape(c.cfg.APIKey), url.QueryEscape(c.cfg.APISecret))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return retry.Transient(fmt.Errorf("token request failed: %w", err))
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return &AuthError{Cause: fmt.Errorf("token endpoint status %d", resp.StatusCode)}
	}

	var token struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&token); err != nil {
		return fmt.Errorf("failed to decode token response: %w", err)
	}
	if token.AccessToken == "" {
		return &AuthError{Cause: errors.New("token endpoint returned empty access token")}
	}

	c.bearer = token.AccessToken
	return nil
}

type apiUserResponse struct {
	Data struct {
		ID       string `json:"id"`
		Name     string `json:"name"`
		Username string `json:"username"`
	} `json:"data"`
}

type apiTimelineResponse struct {
	Data     []apiTweet `json:"data"`
	Includes struct {
		Media []apiMedia `json:"media"`
	} `json:"includes"`
	Meta struct {
		NextToken string `json:"next_token"`
	} `json:"meta"`
}

type apiMedia struct {
	MediaKey        string `json:"media_key"`
	Type            string `json:"type"`
	URL             string `json:"url"`
	PreviewImageURL string `json:"preview_image_url"`
}

type apiTweet struct {
	ID            string    `json:"id"`
	Text          string    `json:"text"`
	CreatedAt     time.Time `json:"created_at"`
	AuthorID      string    `json:"author_id"`
	Lang          string    `json:"lang"`
	PublicMetrics struct {
		RetweetCount    int  `json:"retweet_count"`
		ReplyCount      int  `json:"reply_count"`
		LikeCount       int  `json:"like_count"`
		QuoteCount      int  `json:"quote_count"`
		ImpressionCount *int `json:"impression_count"`
	} `json:"public_metrics"`
	Attachments struct {
		MediaKeys []string `json:"media_keys"`
	} `json:"attachments"`
	ReferencedTweets []struct {
		Type string `json:"type"`
		ID   string `json:"id"`
	} `json:"referenced_tweets"`
}

func (t apiTweet) toRawPost(username string, mediaByKey map[string]apiMedia) RawPost {
	raw := RawPost{
		ID:             t.ID,
		Text:           t.Text,
		AuthorID:       t.AuthorID,
		AuthorUsername: username,
		Language:       t.Lang,
		CreatedAt:      t.CreatedAt,
		ReplyCount:     t.PublicMetrics.ReplyCount,
		RetweetCount:   t.PublicMetrics.RetweetCount,
		LikeCount:      t.PublicMetrics.LikeCount,
		QuoteCount:     t.PublicMetrics.QuoteCount,
		ViewCount:      t.PublicMetrics.ImpressionCount,
	}

	for _, ref := range t.ReferencedTweets {
		raw.Referenced = append(raw.Referenced, Referenced{
			Kind: ReferencedKind(ref.Type),
			ID:   ref.ID,
		})
	}

	for _, key := range t.Attachments.MediaKeys {
		m, ok := mediaByKey[key]
		if !ok {
			continue
		}
		switch {
		case m.URL != "":
			raw.MediaURLs = append(raw.MediaURLs, m.URL)
		case m.PreviewImageURL != "":
			raw.MediaURLs = append(raw.MediaURLs, m.PreviewImageURL)
		}
	}

	return raw
}
