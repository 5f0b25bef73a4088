package search

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"go.uber.org/zap"

	"nexusai.dev/nexus/internal/logging"
	"nexusai.dev/nexus/internal/utils"
)

const (
	googleSearchURL   = "https://www.google.com/search"
	googleResultBlock = "div.g"
)

// Renderer loads a page in a real browser and returns its HTML once
// waitSelector is present.
type Renderer interface {
	Render(ctx context.Context, pageURL, waitSelector string, wait time.Duration) (string, error)
}

// BrowserStrategy runs a Google search for reddit.com through a headless
// browser. It is the only strategy that retries by default: three attempts
// with 2s × attempt backoff.
type BrowserStrategy struct {
	Renderer Renderer
	Retry    utils.RetryPolicy
	logger   *zap.Logger
}

func NewBrowserStrategy(renderer Renderer, logger *zap.Logger) *BrowserStrategy {
	return &BrowserStrategy{
		Renderer: renderer,
		Retry:    utils.Linear(3, 2*time.Second),
		logger:   logging.OrNop(logger),
	}
}

func (s *BrowserStrategy) Name() string { return "browser_google" }

func (s *BrowserStrategy) Search(ctx context.Context, query string) []Result {
	return run(ctx, s.Name(), query, s.Retry, s.logger, func(ctx context.Context) ([]Result, error) {
		return s.search(ctx, query)
	})
}

func (s *BrowserStrategy) search(ctx context.Context, query string) ([]Result, error) {
	pageURL := googleSearchURL + "?q=" + url.QueryEscape("site:reddit.com "+query)

	html, err := s.Renderer.Render(ctx, pageURL, googleResultBlock, 5*time.Second)
	if err != nil {
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	results := parseGoogle(doc)
	if len(results) == 0 {
		return nil, fmt.Errorf("no reddit results on page")
	}
	return results, nil
}

func parseGoogle(doc *goquery.Document) []Result {
	c := newCollector(MaxBrowserResults)
	doc.Find(googleResultBlock).EachWithBreak(func(_ int, block *goquery.Selection) bool {
		title := block.Find("h3").First().Text()
		href, _ := block.Find("a").First().Attr("href")
		c.add(title, unwrapRedirect(href))
		return !c.full()
	})
	return c.results
}

// RodRenderer drives a local Chromium through go-rod. A fresh browser is
// launched per render and torn down afterwards.
type RodRenderer struct {
	Bin           string
	UserAgent     string
	NavigateAfter time.Duration
}

func NewRodRenderer(bin string) *RodRenderer {
	return &RodRenderer{Bin: bin, UserAgent: desktopUserAgent, NavigateAfter: 10 * time.Second}
}

func (r *RodRenderer) Render(ctx context.Context, pageURL, waitSelector string, wait time.Duration) (string, error) {
	l := launcher.New().Headless(true).Context(ctx)
	if r.Bin != "" {
		l = l.Bin(r.Bin)
	}
	controlURL, err := l.Launch()
	if err != nil {
		return "", fmt.Errorf("launch browser: %w", err)
	}
	defer l.Cleanup()

	browser := rod.New().ControlURL(controlURL).Context(ctx)
	if err := browser.Connect(); err != nil {
		return "", fmt.Errorf("connect browser: %w", err)
	}
	defer browser.Close()

	page, err := browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		return "", fmt.Errorf("open page: %w", err)
	}
	if r.UserAgent != "" {
		if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: r.UserAgent}); err != nil {
			return "", fmt.Errorf("set user agent: %w", err)
		}
	}
	if err := page.Timeout(r.NavigateAfter).Navigate(pageURL); err != nil {
		return "", fmt.Errorf("navigate: %w", err)
	}
	if _, err := page.Timeout(wait).Element(waitSelector); err != nil {
		return "", fmt.Errorf("wait for %q: %w", waitSelector, err)
	}
	return page.HTML()
}
