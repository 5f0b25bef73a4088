// Package fetch retrieves readable text for a discussion thread URL.
package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"nexusai.dev/nexus/internal/logging"
	"nexusai.dev/nexus/internal/utils"
)

const (
	chromeUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	safariUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.2 Safari/605.1.15"

	maxComments     = 5
	minParagraphLen = 50
	maxExtracted    = 5000
	maxBody         = 4 << 20
)

// Fetcher turns a URL into text. The JSON listing is tried first, then the
// HTML page.
type Fetcher struct {
	JSONClient *http.Client
	HTMLClient *http.Client
	logger     *zap.Logger
}

func New(logger *zap.Logger) *Fetcher {
	return &Fetcher{
		JSONClient: &http.Client{Timeout: 5 * time.Second},
		HTMLClient: &http.Client{Timeout: 10 * time.Second},
		logger:     logging.OrNop(logger),
	}
}

// Fetch never fails: when nothing can be extracted the returned string starts
// with "Error".
func (f *Fetcher) Fetch(ctx context.Context, pageURL string) string {
	content, err := f.fetchJSON(ctx, pageURL)
	if err == nil {
		return content
	}
	f.logger.Info("json fetch failed, falling back to html",
		zap.String("url", pageURL), zap.Error(err))

	return f.fetchHTML(ctx, pageURL)
}

type listing struct {
	Data struct {
		Children []struct {
			Data struct {
				Title    string  `json:"title"`
				Selftext string  `json:"selftext"`
				Body     *string `json:"body"`
			} `json:"data"`
		} `json:"children"`
	} `json:"data"`
}

func (f *Fetcher) fetchJSON(ctx context.Context, pageURL string) (string, error) {
	jsonURL := strings.TrimRight(pageURL, "/") + ".json"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, jsonURL, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", chromeUserAgent)

	resp, err := f.JSONClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("HTTP %d", resp.StatusCode)
	}

	var listings []listing
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBody)).Decode(&listings); err != nil {
		return "", fmt.Errorf("decode listing: %w", err)
	}
	if len(listings) == 0 || len(listings[0].Data.Children) == 0 {
		return "", fmt.Errorf("listing has no post")
	}

	post := listings[0].Data.Children[0].Data
	var comments []string
	if len(listings) > 1 {
		for _, c := range listings[1].Data.Children {
			if len(comments) == maxComments {
				break
			}
			if c.Data.Body != nil {
				comments = append(comments, *c.Data.Body)
			}
		}
	}

	return fmt.Sprintf("Title: %s\n\nPost Body:\n%s\n\nTop Comments:\n", post.Title, post.Selftext) +
		strings.Join(comments, "\n---\n"), nil
}

func (f *Fetcher) fetchHTML(ctx context.Context, pageURL string) string {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return fmt.Sprintf("Error fetching content: %v", err)
	}
	req.Header.Set("User-Agent", safariUserAgent)

	resp, err := f.HTMLClient.Do(req)
	if err != nil {
		return fmt.Sprintf("Error fetching content: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Sprintf("Error: Failed to fetch content (Status: %d)", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return fmt.Sprintf("Error fetching content: %v", err)
	}
	return extract(doc)
}

// extract prefers the meta description, then the shreddit-post marker of the
// new layout, then long paragraphs.
func extract(doc *goquery.Document) string {
	description, ok := doc.Find(`meta[name="description"]`).First().Attr("content")
	if !ok {
		description, _ = doc.Find(`meta[property="og:description"]`).First().Attr("content")
	}

	if post := doc.Find("shreddit-post").First(); post.Length() > 0 {
		title, _ := post.Attr("post-title")
		return fmt.Sprintf("Title: %s\n\nDescription/Snippet:\n%s", title, description)
	}

	title := strings.TrimSpace(doc.Find("title").First().Text())

	var paragraphs []string
	doc.Find("p").Each(func(_ int, p *goquery.Selection) {
		text := strings.TrimSpace(p.Text())
		if len([]rune(text)) > minParagraphLen {
			paragraphs = append(paragraphs, text)
		}
	})
	text := utils.Truncate(strings.Join(paragraphs, "\n"), maxExtracted)

	return fmt.Sprintf("Title: %s\n\nDescription:\n%s\n\nExtracted Text:\n%s", title, description, text)
}
