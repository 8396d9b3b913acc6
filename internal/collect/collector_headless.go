package collect

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// HeadlessCollector renders market pages in a real browser before
// extraction. Some chains serve an empty shell over plain HTTP and only
// build the product grid in JavaScript; those sources are configured with
// kind "headless" and end up here.
type HeadlessCollector struct {
	Pool    *BrowserPool
	Timeout time.Duration
}

// NewHeadlessCollector wraps a browser pool. The timeout applies per page
// render.
func NewHeadlessCollector(pool *BrowserPool, timeout time.Duration) *HeadlessCollector {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HeadlessCollector{Pool: pool, Timeout: timeout}
}

// FetchCandidates mirrors the static collector: search when a term is
// given, harvest the configured paths otherwise. Render failures are
// logged and skipped.
func (c *HeadlessCollector) FetchCandidates(ctx context.Context, src Source, term string) ([]Candidate, error) {
	if strings.TrimSpace(term) == "" {
		return c.harvest(ctx, src)
	}

	var lastErr error
	for _, searchURL := range SearchURLs(src, term) {
		found, err := c.renderAndExtract(ctx, src, searchURL)
		if err != nil {
			log.Printf("[Collector] headless %s: %v", src.Name, err)
			lastErr = err
			continue
		}
		if len(found) > 0 {
			return found, nil
		}
	}
	return nil, lastErr
}

func (c *HeadlessCollector) harvest(ctx context.Context, src Source) ([]Candidate, error) {
	paths := src.Paths
	if len(paths) == 0 {
		paths = []string{"/"}
	}

	var merged []Candidate
	seen := make(map[string]bool)
	var lastErr error

	for _, path := range paths {
		found, err := c.renderAndExtract(ctx, src, joinURL(src.BaseURL, path))
		if err != nil {
			log.Printf("[Collector] headless %s: %v", src.Name, err)
			lastErr = err
			continue
		}
		for _, cand := range found {
			if seen[cand.Label] {
				continue
			}
			seen[cand.Label] = true
			merged = append(merged, cand)
		}
	}

	if len(merged) == 0 {
		return nil, lastErr
	}
	return merged, nil
}

func (c *HeadlessCollector) renderAndExtract(ctx context.Context, src Source, pageURL string) ([]Candidate, error) {
	renderCtx, cancel := context.WithTimeout(ctx, c.Timeout)
	defer cancel()

	rendered, err := c.Pool.Render(renderCtx, pageURL)
	if err != nil {
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rendered))
	if err != nil {
		return nil, err
	}
	return ExtractCandidates(doc, src.Selectors, src.MaxItems), nil
}
