// Package fetch retrieves news pages over HTTP and reduces them to the
// readable text the content extraction stage refines.
package fetch

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/presslens/presslens/internal/domain"
)

const userAgent = "presslens/1.0 (press critique analysis)"

// Fetcher downloads a page and strips it to text. It implements
// stages.PageFetcher.
type Fetcher struct {
	client *http.Client
	logger *zap.Logger
}

func New(logger *zap.Logger) *Fetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fetcher{
		client: &http.Client{Timeout: 30 * time.Second},
		logger: logger,
	}
}

// Fetch downloads the page and returns its readable text. Navigation,
// scripts and styles are dropped; paragraph structure is preserved with
// blank lines so the extraction model sees article boundaries.
func (f *Fetcher) Fetch(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", domain.NewPermanentError("fetch", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return "", fmt.Errorf("%w: %v", domain.ErrRunCancelled, err)
		}
		return "", domain.NewTransientError("fetch", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("fetching %s: status %d", url, resp.StatusCode)
		if retryableStatus(resp.StatusCode) {
			return "", domain.NewTransientError("fetch", err)
		}
		return "", domain.NewPermanentError("fetch", err)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return "", domain.NewPermanentError("fetch", fmt.Errorf("parsing %s: %w", url, err))
	}

	text := readableText(doc)
	if text == "" {
		return "", domain.NewPermanentError("fetch", fmt.Errorf("no readable text at %s", url))
	}
	f.logger.Debug("fetched page", zap.String("url", url), zap.Int("chars", len(text)))
	return text, nil
}

func retryableStatus(code int) bool {
	return code == http.StatusTooManyRequests ||
		code == http.StatusRequestTimeout ||
		code >= http.StatusInternalServerError
}

// readableText extracts block-level text from the document body. The
// article element is preferred when present; boilerplate containers are
// removed before extraction.
func readableText(doc *goquery.Document) string {
	doc.Find("script, style, nav, header, footer, aside, noscript, iframe").Remove()

	root := doc.Find("article").First()
	if root.Length() == 0 {
		root = doc.Find("main").First()
	}
	if root.Length() == 0 {
		root = doc.Find("body").First()
	}

	var blocks []string
	if title := strings.TrimSpace(doc.Find("title").First().Text()); title != "" {
		blocks = append(blocks, title)
	}
	root.Find("h1, h2, h3, p, blockquote, li").Each(func(_ int, s *goquery.Selection) {
		if t := collapseSpace(s.Text()); t != "" {
			blocks = append(blocks, t)
		}
	})
	if len(blocks) <= 1 {
		if t := collapseSpace(root.Text()); t != "" {
			return t
		}
	}
	return strings.Join(blocks, "\n\n")
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
