package collect

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/stealth"
)

// BrowserPool owns a shared headless Chrome instance and bounds how many
// pages render at once. Chrome is launched lazily on the first Render so
// deployments that only use static sources never pay for it.
type BrowserPool struct {
	sem chan struct{}

	mu      sync.Mutex
	browser *rod.Browser
	lnch    *launcher.Launcher
	closed  bool
}

// NewBrowserPool creates a pool with the given number of render slots.
func NewBrowserPool(workers int) *BrowserPool {
	if workers < 1 {
		workers = 1
	}
	return &BrowserPool{sem: make(chan struct{}, workers)}
}

// Render navigates a stealth page to the URL and returns the rendered DOM
// as HTML. Render blocks while every worker slot is busy.
func (p *BrowserPool) Render(ctx context.Context, pageURL string) (string, error) {
	select {
	case p.sem <- struct{}{}:
		defer func() { <-p.sem }()
	case <-ctx.Done():
		return "", ctx.Err()
	}

	browser, err := p.ensureBrowser()
	if err != nil {
		return "", err
	}

	page, err := stealth.Page(browser)
	if err != nil {
		return "", fmt.Errorf("create page: %w", err)
	}
	defer page.Close()

	page = page.Context(ctx)
	if err := page.Navigate(pageURL); err != nil {
		return "", fmt.Errorf("navigate %s: %w", pageURL, err)
	}
	if err := page.WaitLoad(); err != nil {
		log.Printf("[Browser] wait load %s: %v", pageURL, err)
	}

	// Nudge lazy-loaded product grids into the DOM.
	for i := 0; i < 3; i++ {
		if _, err := page.Eval(`() => window.scrollBy(0, window.innerHeight)`); err != nil {
			break
		}
		select {
		case <-time.After(300 * time.Millisecond):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	res, err := page.Eval(`() => document.documentElement.outerHTML`)
	if err != nil {
		return "", fmt.Errorf("read DOM %s: %w", pageURL, err)
	}
	return res.Value.Str(), nil
}

func (p *BrowserPool) ensureBrowser() (*rod.Browser, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, fmt.Errorf("browser pool is closed")
	}
	if p.browser != nil {
		return p.browser, nil
	}

	l := launcher.New().
		Headless(true).
		Set("disable-blink-features", "AutomationControlled").
		Set("disable-gpu").
		Set("no-sandbox")

	wsURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("launch chrome: %w", err)
	}

	browser := rod.New().ControlURL(wsURL)
	if err := browser.Connect(); err != nil {
		l.Cleanup()
		return nil, fmt.Errorf("connect chrome: %w", err)
	}

	log.Printf("[Browser] launched headless chrome (workers=%d)", cap(p.sem))
	p.lnch = l
	p.browser = browser
	return browser, nil
}

// Close shuts the shared browser down. Safe to call more than once.
func (p *BrowserPool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	if p.browser != nil {
		p.browser.Close()
		p.browser = nil
	}
	if p.lnch != nil {
		p.lnch.Cleanup()
		p.lnch = nil
	}
}
