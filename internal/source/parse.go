package source

import (
	"errors"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

var (
	statusLinkRe = regexp.MustCompile(`/status/(\d+)`)
	countRe      = regexp.MustCompile(`(\d+)`)
)

// parseTimeline extracts post records from a rendered timeline page.
// Parsing is best-effort: an article that cannot be parsed is dropped and
// counted, never aborting the page.
func parseTimeline(html, username string, maxResults int) ([]RawPost, int, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, 0, errors.New("failed to parse timeline markup")
	}

	var (
		posts   []RawPost
		dropped int
	)

	doc.Find(`article[data-testid="tweet"]`).EachWithBreak(func(_ int, article *goquery.Selection) bool {
		if len(posts) >= maxResults {
			return false
		}
		raw, ok := parseArticle(article, username)
		if !ok {
			dropped++
			return true
		}
		posts = append(posts, raw)
		return true
	})

	return posts, dropped, nil
}

// parseArticle extracts one post from a tweet article element. Returns
// false when the element carries no recognizable post id.
func parseArticle(article *goquery.Selection, username string) (RawPost, bool) {
	raw := RawPost{AuthorUsername: username}

	// The permalink on the timestamp anchor carries the post id.
	timeEl := article.Find("time").First()
	if href, ok := timeEl.Parent().Attr("href"); ok {
		if m := statusLinkRe.FindStringSubmatch(href); m != nil {
			raw.ID = m[1]
		}
	}
	if raw.ID == "" {
		return raw, false
	}

	if datetime, ok := timeEl.Attr("datetime"); ok {
		if ts, err := time.Parse(time.RFC3339, datetime); err == nil {
			raw.CreatedAt = ts
		}
	}

	textEl := article.Find(`div[data-testid="tweetText"]`).First()
	raw.Text = strings.TrimSpace(textEl.Text())
	if lang, ok := textEl.Attr("lang"); ok {
		raw.Language = lang
	}

	raw.ReplyCount = parseMetric(article, "reply")
	raw.RetweetCount = parseMetric(article, "retweet")
	raw.LikeCount = parseMetric(article, "like")

	article.Find("img").Each(func(_ int, img *goquery.Selection) {
		src, ok := img.Attr("src")
		if ok && strings.Contains(src, "pbs.twimg.com/media") {
			raw.MediaURLs = append(raw.MediaURLs, src)
		}
	})

	// Relations are only partially visible in markup. A reply context block
	// marks replies (parent id unknown); a retweet shows as an RT prefix.
	if article.Find(`div[data-testid="reply"]`).Length() > 0 {
		raw.Referenced = append(raw.Referenced, Referenced{Kind: RefRepliedTo})
	}
	if strings.HasPrefix(raw.Text, "RT @") {
		raw.Referenced = append(raw.Referenced, Referenced{Kind: RefRetweeted})
	}

	return raw, true
}

// parseMetric reads an engagement count from a metric button's aria-label.
func parseMetric(article *goquery.Selection, kind string) int {
	btn := article.Find(`button[data-testid="` + kind + `"]`).First()
	label, ok := btn.Attr("aria-label")
	if !ok {
		return 0
	}
	label = strings.ReplaceAll(label, ",", "")
	m := countRe.FindString(label)
	if m == "" {
		return 0
	}
	n, err := strconv.Atoi(m)
	if err != nil {
		return 0
	}
	return n
}
