package collect

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"
)

const desktopUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// StaticCollector fetches market pages over plain HTTP with Colly and
// extracts price candidates from the served HTML. Pages that need
// JavaScript belong to HeadlessCollector instead.
type StaticCollector struct {
	UserAgent   string
	Timeout     time.Duration
	MaxRetries  int
	DomainDelay time.Duration
	Parallelism int
	MaxBodySize int

	// AllowPrivateHosts disables the private-address guard so tests can
	// point a source at a loopback server.
	AllowPrivateHosts bool
}

// NewStaticCollector returns a collector with defaults tuned for
// supermarket sites.
func NewStaticCollector() *StaticCollector {
	return &StaticCollector{
		UserAgent:   desktopUserAgent,
		Timeout:     10 * time.Second,
		MaxRetries:  2,
		DomainDelay: 300 * time.Millisecond,
		Parallelism: 4,
		MaxBodySize: 10 * 1024 * 1024,
	}
}

// FetchCandidates searches the source for one term, or harvests the
// source's configured paths when the term is empty. A page that fails to
// fetch is logged and skipped; the error comes back only when nothing at
// all was extracted.
func (c *StaticCollector) FetchCandidates(ctx context.Context, src Source, term string) ([]Candidate, error) {
	if strings.TrimSpace(term) == "" {
		return c.harvest(ctx, src)
	}

	var lastErr error
	for _, searchURL := range SearchURLs(src, term) {
		doc, err := c.fetchDoc(ctx, searchURL)
		if err != nil {
			log.Printf("[Collector] static %s: %v", src.Name, err)
			lastErr = err
			continue
		}
		if found := ExtractCandidates(doc, src.Selectors, src.MaxItems); len(found) > 0 {
			return found, nil
		}
	}
	return nil, lastErr
}

// harvest walks the source's listing paths and merges everything found,
// deduplicating by label.
func (c *StaticCollector) harvest(ctx context.Context, src Source) ([]Candidate, error) {
	paths := src.Paths
	if len(paths) == 0 {
		paths = []string{"/"}
	}

	var merged []Candidate
	seen := make(map[string]bool)
	var lastErr error

	for _, path := range paths {
		doc, err := c.fetchDoc(ctx, joinURL(src.BaseURL, path))
		if err != nil {
			log.Printf("[Collector] static %s: %v", src.Name, err)
			lastErr = err
			continue
		}
		for _, cand := range ExtractCandidates(doc, src.Selectors, src.MaxItems) {
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

// fetchDoc retrieves a single page and parses it with goquery.
func (c *StaticCollector) fetchDoc(ctx context.Context, pageURL string) (*goquery.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	parsed, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL %q: %w", pageURL, err)
	}

	col := c.build(ctx, parsed.Hostname())

	var doc *goquery.Document
	var fetchErr error

	col.OnResponse(func(r *colly.Response) {
		d, err := goquery.NewDocumentFromReader(bytes.NewReader(r.Body))
		if err != nil {
			fetchErr = fmt.Errorf("parse %s: %w", pageURL, err)
			return
		}
		doc = d
	})

	col.OnError(func(r *colly.Response, err error) {
		retries := 0
		if v := r.Request.Ctx.GetAny("retries"); v != nil {
			retries = v.(int)
		}
		if retries < c.MaxRetries && ctx.Err() == nil {
			r.Request.Ctx.Put("retries", retries+1)
			log.Printf("[Collector] retry %d/%d for %s: %v", retries+1, c.MaxRetries, r.Request.URL, err)
			time.Sleep(time.Duration(retries+1) * 500 * time.Millisecond)
			r.Request.Retry()
			return
		}
		fetchErr = fmt.Errorf("fetch %s: %w", r.Request.URL, err)
	})

	visitErr := col.Visit(pageURL)
	col.Wait()

	// A retried request that eventually succeeded still leaves Visit
	// returning the first error, so the parsed document wins.
	if doc != nil {
		return doc, nil
	}
	if fetchErr != nil {
		return nil, fetchErr
	}
	if visitErr != nil {
		return nil, fmt.Errorf("visit %s: %w", pageURL, visitErr)
	}
	return nil, fmt.Errorf("no response from %s", pageURL)
}

func (c *StaticCollector) build(ctx context.Context, host string) *colly.Collector {
	col := colly.NewCollector(
		colly.UserAgent(c.UserAgent),
		colly.AllowedDomains(host),
		colly.MaxBodySize(c.MaxBodySize),
		colly.DetectCharset(),
		colly.AllowURLRevisit(),
		colly.IgnoreRobotsTxt(),
	)

	col.Limit(&colly.LimitRule{
		DomainGlob:  "*",
		Parallelism: c.Parallelism,
		Delay:       c.DomainDelay,
		RandomDelay: c.DomainDelay / 2,
	})

	timeout := c.Timeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < timeout {
			timeout = remaining
		}
	}
	if timeout <= 0 {
		timeout = time.Millisecond
	}
	col.SetRequestTimeout(timeout)

	col.WithTransport(&http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           safeDialContext(c.AllowPrivateHosts),
		MaxIdleConns:          10,
		IdleConnTimeout:       30 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	})

	return col
}
