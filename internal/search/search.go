// Package search finds Reddit discussion threads for a free-text query.
//
// Several interchangeable strategies exist. Each one fails soft: network
// errors, non-200 responses and parse errors are logged and turned into an
// empty result so that a Chain can fall through to the next strategy.
package search

import (
	"context"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"nexusai.dev/nexus/internal/utils"
)

const (
	desktopUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

	// MaxResults caps the HTTP-backed strategies.
	MaxResults = 15
	// MaxBrowserResults caps the headless-browser strategy.
	MaxBrowserResults = 5
)

// Result is one candidate thread.
type Result struct {
	Title     string `json:"title"`
	URL       string `json:"url"`
	Subreddit string `json:"subreddit"`
}

// Source returns the tag stored on content items, e.g. "r/golang".
func (r Result) Source() string {
	sub := r.Subreddit
	if sub == "" {
		sub = "reddit"
	}
	return "r/" + sub
}

// Strategy is one way of turning a query into results. Search never returns
// nil and never panics on upstream failure.
type Strategy interface {
	Name() string
	Search(ctx context.Context, query string) []Result
}

// run applies the retry policy to one strategy attempt function and maps any
// final error to an empty result.
func run(ctx context.Context, name, query string, policy utils.RetryPolicy, logger *zap.Logger,
	attempt func(ctx context.Context) ([]Result, error)) []Result {
	results, err := utils.Retry(ctx, policy, func(ctx context.Context, n int) ([]Result, error) {
		r, err := attempt(ctx)
		if err != nil {
			logger.Debug("search attempt failed",
				zap.String("strategy", name), zap.Int("attempt", n), zap.Error(err))
		}
		return r, err
	})
	if err != nil {
		logger.Warn("search strategy failed",
			zap.String("strategy", name), zap.String("query", query), zap.Error(err))
		return []Result{}
	}
	if results == nil {
		return []Result{}
	}
	return results
}

// isRedditThread reports whether href points into a subreddit.
func isRedditThread(href string) bool {
	return strings.Contains(href, "reddit.com/r/")
}

// subredditFromURL extracts the path segment after /r/, or "reddit".
func subredditFromURL(href string) string {
	_, after, ok := strings.Cut(href, "/r/")
	if !ok {
		return "reddit"
	}
	sub, _, _ := strings.Cut(after, "/")
	sub, _, _ = strings.Cut(sub, "?")
	if sub == "" {
		return "reddit"
	}
	return sub
}

// unwrapRedirect resolves DuckDuckGo (/l/?uddg=) and Google (/url?q=)
// redirect links to their target.
func unwrapRedirect(href string) string {
	u, err := url.Parse(href)
	if err != nil {
		return href
	}
	switch {
	case strings.HasSuffix(u.Host, "duckduckgo.com") && strings.HasPrefix(u.Path, "/l/"):
		if target := u.Query().Get("uddg"); target != "" {
			return target
		}
	case u.Path == "/url":
		if target := u.Query().Get("q"); target != "" {
			return target
		}
		if target := u.Query().Get("url"); target != "" {
			return target
		}
	}
	return href
}

// collector accumulates results, deduplicating by URL up to a cap.
type collector struct {
	max     int
	seen    map[string]bool
	results []Result
}

func newCollector(max int) *collector {
	return &collector{max: max, seen: make(map[string]bool)}
}

func (c *collector) full() bool { return len(c.results) >= c.max }

func (c *collector) add(title, href string) {
	c.addResult(Result{Title: title, URL: href, Subreddit: subredditFromURL(href)})
}

func (c *collector) addResult(r Result) {
	r.Title = strings.TrimSpace(r.Title)
	if r.Title == "" || r.URL == "" || !isRedditThread(r.URL) || c.seen[r.URL] || c.full() {
		return
	}
	if r.Subreddit == "" {
		r.Subreddit = subredditFromURL(r.URL)
	}
	c.seen[r.URL] = true
	c.results = append(c.results, r)
}
