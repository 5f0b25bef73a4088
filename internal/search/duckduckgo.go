package search

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"nexusai.dev/nexus/internal/logging"
	"nexusai.dev/nexus/internal/utils"
)

const defaultDuckDuckGoURL = "https://html.duckduckgo.com/html/"

// DuckDuckGoStrategy scrapes the DuckDuckGo HTML endpoint restricted to
// reddit.com.
type DuckDuckGoStrategy struct {
	Endpoint string
	Client   *http.Client
	Retry    utils.RetryPolicy
	logger   *zap.Logger
}

func NewDuckDuckGoStrategy(logger *zap.Logger) *DuckDuckGoStrategy {
	return &DuckDuckGoStrategy{
		Endpoint: defaultDuckDuckGoURL,
		Client:   &http.Client{Timeout: 10 * time.Second},
		Retry:    utils.FailFast(),
		logger:   logging.OrNop(logger),
	}
}

func (s *DuckDuckGoStrategy) Name() string { return "duckduckgo" }

func (s *DuckDuckGoStrategy) Search(ctx context.Context, query string) []Result {
	return run(ctx, s.Name(), query, s.Retry, s.logger, func(ctx context.Context) ([]Result, error) {
		return s.search(ctx, query)
	})
}

func (s *DuckDuckGoStrategy) search(ctx context.Context, query string) ([]Result, error) {
	form := url.Values{}
	form.Set("q", "site:reddit.com "+query)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.Endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", desktopUserAgent)
	req.Header.Set("Referer", "https://html.duckduckgo.com/")

	resp, err := s.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(io.LimitReader(resp.Body, 2<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}
	return parseDuckDuckGo(doc), nil
}

func parseDuckDuckGo(doc *goquery.Document) []Result {
	c := newCollector(MaxResults)
	doc.Find("a.result__a").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		href, _ := a.Attr("href")
		c.add(a.Text(), unwrapRedirect(href))
		return !c.full()
	})
	return c.results
}
