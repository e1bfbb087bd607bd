package source

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/x-collector/internal/retry"
)

func fastAPIConfig(baseURL string) APIConfig {
	return APIConfig{
		BearerToken: "test-bearer",
		BaseURL:     baseURL,
		Timeout:     5 * time.Second,
		RateLimit:   1000,
		Policy: retry.Policy{
			MaxAttempts: 3,
			BaseDelay:   time.Millisecond,
			Factor:      2.0,
		},
	}
}

func userPayload(id string) map[string]any {
	return map[string]any{"data": map[string]any{"id": id, "name": "NASA", "username": "nasa"}}
}

func tweetPayload(id, text string) map[string]any {
	return map[string]any{
		"id":         id,
		"text":       text,
		"created_at": "2026-03-14T09:26:53Z",
		"author_id":  "11348282",
		"lang":       "en",
		"public_metrics": map[string]any{
			"retweet_count": 5, "reply_count": 2, "like_count": 40, "quote_count": 1,
		},
	}
}

func TestAPIClient_RequiresCredentials(t *testing.T) {
	_, err := NewAPIClient(APIConfig{}, nil)
	require.Error(t, err)

	var authErr *AuthError
	assert.ErrorAs(t, err, &authErr)
}

func TestAPIClient_FetchPaginates(t *testing.T) {
	var timelineCalls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-bearer", r.Header.Get("Authorization"))

		switch r.URL.Path {
		case "/2/users/by/username/nasa":
			_ = json.NewEncoder(w).Encode(userPayload("11348282"))
		case "/2/users/11348282/tweets":
			timelineCalls++
			resp := map[string]any{}
			if r.URL.Query().Get("pagination_token") == "" {
				resp["data"] = []any{tweetPayload("101", "first"), tweetPayload("100", "second")}
				resp["meta"] = map[string]any{"next_token": "page2"}
			} else {
				resp["data"] = []any{tweetPayload("99", "third")}
				resp["meta"] = map[string]any{}
			}
			_ = json.NewEncoder(w).Encode(resp)
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	defer server.Close()

	client, err := NewAPIClient(fastAPIConfig(server.URL), nil)
	require.NoError(t, err)

	posts, err := client.Fetch(context.Background(), "nasa", 10, "")
	require.NoError(t, err)
	require.Len(t, posts, 3)
	assert.Equal(t, 2, timelineCalls)
	assert.Equal(t, "101", posts[0].ID)
	assert.Equal(t, "first", posts[0].Text)
	assert.Equal(t, "nasa", posts[0].AuthorUsername)
	assert.Equal(t, 40, posts[0].LikeCount)
	assert.Equal(t, 0, client.Retries())
}

func TestAPIClient_FetchPassesSinceID(t *testing.T) {
	var sawSinceID string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/2/users/by/username/nasa":
			_ = json.NewEncoder(w).Encode(userPayload("11348282"))
		default:
			sawSinceID = r.URL.Query().Get("since_id")
			_ = json.NewEncoder(w).Encode(map[string]any{"data": []any{}})
		}
	}))
	defer server.Close()

	client, err := NewAPIClient(fastAPIConfig(server.URL), nil)
	require.NoError(t, err)

	posts, err := client.Fetch(context.Background(), "nasa", 10, "12345")
	require.NoError(t, err)
	assert.Empty(t, posts)
	assert.Equal(t, "12345", sawSinceID)
}

func TestAPIClient_MediaExpansion(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/2/users/by/username/nasa":
			_ = json.NewEncoder(w).Encode(userPayload("11348282"))
		default:
			tweet := tweetPayload("101", "with media")
			tweet["attachments"] = map[string]any{"media_keys": []any{"3_1", "3_2", "3_missing"}}
			_ = json.NewEncoder(w).Encode(map[string]any{
				"data": []any{tweet},
				"includes": map[string]any{
					"media": []any{
						map[string]any{"media_key": "3_1", "type": "photo", "url": "https://pbs.twimg.com/media/a.jpg"},
						map[string]any{"media_key": "3_2", "type": "video", "preview_image_url": "https://pbs.twimg.com/media/b.jpg"},
					},
				},
			})
		}
	}))
	defer server.Close()

	client, err := NewAPIClient(fastAPIConfig(server.URL), nil)
	require.NoError(t, err)

	posts, err := client.Fetch(context.Background(), "nasa", 10, "")
	require.NoError(t, err)
	require.Len(t, posts, 1)
	assert.Equal(t, []string{
		"https://pbs.twimg.com/media/a.jpg",
		"https://pbs.twimg.com/media/b.jpg",
	}, posts[0].MediaURLs)
}

func TestAPIClient_UserNotFoundIsEmpty(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client, err := NewAPIClient(fastAPIConfig(server.URL), nil)
	require.NoError(t, err)

	posts, err := client.Fetch(context.Background(), "no_such_account", 10, "")
	require.NoError(t, err, "a missing user is an empty result, not a failure")
	assert.Empty(t, posts)
}

func TestAPIClient_AuthFailureNotRetried(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	client, err := NewAPIClient(fastAPIConfig(server.URL), nil)
	require.NoError(t, err)

	_, err = client.Fetch(context.Background(), "nasa", 10, "")
	require.Error(t, err)

	var authErr *AuthError
	assert.ErrorAs(t, err, &authErr)
	assert.Equal(t, 1, calls, "credential failures must not be retried")
}

func TestAPIClient_RetriesServerErrors(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		switch r.URL.Path {
		case "/2/users/by/username/nasa":
			_ = json.NewEncoder(w).Encode(userPayload("11348282"))
		default:
			_ = json.NewEncoder(w).Encode(map[string]any{"data": []any{}})
		}
	}))
	defer server.Close()

	client, err := NewAPIClient(fastAPIConfig(server.URL), nil)
	require.NoError(t, err)

	_, err = client.Fetch(context.Background(), "nasa", 10, "")
	require.NoError(t, err)
	assert.Equal(t, 2, client.Retries())
}

func TestAPIClient_RetriesExhausted(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	client, err := NewAPIClient(fastAPIConfig(server.URL), nil)
	require.NoError(t, err)

	_, err = client.Fetch(context.Background(), "nasa", 10, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "retries exhausted")
	assert.Equal(t, 2, client.Retries())
}

func TestAPIClient_BearerExchange(t *testing.T) {
	var tokenCalls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/oauth2/token":
			tokenCalls++
			user, _, ok := r.BasicAuth()
			require.True(t, ok)
			assert.Equal(t, "app-key", user)
			_ = json.NewEncoder(w).Encode(map[string]string{"access_token": "exchanged-token"})
		case "/2/users/by/username/nasa":
			assert.Equal(t, "Bearer exchanged-token", r.Header.Get("Authorization"))
			_ = json.NewEncoder(w).Encode(userPayload("11348282"))
		default:
			_ = json.NewEncoder(w).Encode(map[string]any{"data": []any{}})
		}
	}))
	defer server.Close()

	cfg := fastAPIConfig(server.URL)
	cfg.BearerToken = ""
	cfg.APIKey = "app-key"
	cfg.APISecret = "app-secret"

	client, err := NewAPIClient(cfg, nil)
	require.NoError(t, err)

	_, err = client.Fetch(context.Background(), "nasa", 10, "")
	require.NoError(t, err)
	assert.Equal(t, 1, tokenCalls, "token is exchanged once and reused")
}
