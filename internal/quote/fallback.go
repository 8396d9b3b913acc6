package quote

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/economizaja/cotador/internal/collect"
	"github.com/economizaja/cotador/internal/models"
)

// FallbackStats reports one fallback round.
type FallbackStats struct {
	Entries int `json:"entries"`
	Errors  int `json:"errors"`
}

// runFallback retries every item against every searchable source after a
// run in which no market produced a nonzero total. Unlike the first
// lookup it tries each item's candidate keys in order, so a synonym or an
// accent-free spelling can still hit when the canonical term missed.
func (p *Pipeline) runFallback(ctx context.Context, sources []collect.Source, items []models.Item) FallbackStats {
	var wg sync.WaitGroup
	var mu sync.Mutex
	stats := FallbackStats{}

	for _, src := range sources {
		if !searchable(src) {
			continue
		}
		wg.Add(1)
		go func(src collect.Source) {
			defer wg.Done()
			coll, err := p.collectors.Get(src.Kind)
			if err != nil {
				log.Printf("[Pipeline] fallback %s: %v", src.Name, err)
				mu.Lock()
				stats.Errors++
				mu.Unlock()
				return
			}
			written, failed := p.fallbackSource(ctx, coll, src, items)
			mu.Lock()
			stats.Entries += written
			stats.Errors += failed
			mu.Unlock()
		}(src)
	}

	wg.Wait()
	return stats
}

// fallbackSource walks one source. Items that already have a nonzero
// price in this market are skipped, so rerunning the fallback never
// overwrites a hit. The stored entry is keyed by the requested item, not
// by the found label, so the aggregate lookup always matches it.
func (p *Pipeline) fallbackSource(ctx context.Context, coll collect.Collector, src collect.Source, items []models.Item) (written, failed int) {
	for _, item := range items {
		if entry, err := p.store.GetPrice(ctx, src.Name, item.NormalizedKey); err == nil && entry.Price > 0 {
			continue
		}

		for _, key := range item.CandidateKeys {
			cands, err := p.fetchWithTimeout(ctx, coll, src, key)
			if err != nil {
				log.Printf("[Pipeline] fallback %s %q: %v", src.Name, key, err)
				failed++
				continue
			}

			hit := false
			for _, cand := range cands {
				if cand.Price <= 0 {
					continue
				}
				entry := models.PriceEntry{
					Market:     src.Name,
					ItemKey:    item.NormalizedKey,
					ItemLabel:  cand.Label,
					Price:      collect.Round2(cand.Price),
					Source:     src.Name,
					ObservedAt: time.Now().UTC(),
				}
				if err := p.store.PutPrice(ctx, entry); err != nil {
					log.Printf("[Pipeline] fallback store %s: %v", src.Name, err)
					failed++
					break
				}
				written++
				hit = true
				break
			}
			if hit {
				break
			}
		}
	}
	return written, failed
}
