package search

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"nexusai.dev/nexus/internal/logging"
	"nexusai.dev/nexus/internal/utils"
)

const defaultRedditBase = "https://www.reddit.com"

// RedditJSONStrategy queries Reddit's public search.json listing.
type RedditJSONStrategy struct {
	BaseURL string
	Client  *http.Client
	Retry   utils.RetryPolicy
	logger  *zap.Logger
}

func NewRedditJSONStrategy(logger *zap.Logger) *RedditJSONStrategy {
	return &RedditJSONStrategy{
		BaseURL: defaultRedditBase,
		Client:  &http.Client{Timeout: 10 * time.Second},
		Retry:   utils.FailFast(),
		logger:  logging.OrNop(logger),
	}
}

func (s *RedditJSONStrategy) Name() string { return "reddit_json" }

func (s *RedditJSONStrategy) Search(ctx context.Context, query string) []Result {
	return run(ctx, s.Name(), query, s.Retry, s.logger, func(ctx context.Context) ([]Result, error) {
		return s.search(ctx, query)
	})
}

type redditListing struct {
	Data struct {
		Children []struct {
			Data struct {
				Title     string `json:"title"`
				Permalink string `json:"permalink"`
				Subreddit string `json:"subreddit"`
			} `json:"data"`
		} `json:"children"`
	} `json:"data"`
}

func (s *RedditJSONStrategy) search(ctx context.Context, query string) ([]Result, error) {
	params := url.Values{}
	params.Set("q", query)
	params.Set("limit", strconv.Itoa(MaxResults))
	params.Set("sort", "relevance")
	endpoint := strings.TrimRight(s.BaseURL, "/") + "/search.json?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", desktopUserAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := s.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP %d", resp.StatusCode)
	}

	var listing redditListing
	if err := json.NewDecoder(io.LimitReader(resp.Body, 4<<20)).Decode(&listing); err != nil {
		return nil, fmt.Errorf("failed to decode listing: %w", err)
	}

	c := newCollector(MaxResults)
	for _, child := range listing.Data.Children {
		if c.full() {
			break
		}
		d := child.Data
		if d.Permalink == "" {
			continue
		}
		c.addResult(Result{Title: d.Title, URL: defaultRedditBase + d.Permalink, Subreddit: d.Subreddit})
	}
	return c.results, nil
}
