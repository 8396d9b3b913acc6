package quote

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/economizaja/cotador/internal/collect"
	"github.com/economizaja/cotador/internal/models"
	"github.com/economizaja/cotador/internal/store"
)

// ErrEmptyList is returned when a quote request carries no usable items.
var ErrEmptyList = errors.New("shopping list is empty")

type runState string

const (
	stateInit      runState = "INIT"
	stateLookup    runState = "LOOKUP"
	stateFallback  runState = "FALLBACK"
	stateAggregate runState = "AGGREGATE"
	statePersist   runState = "PERSIST"
	stateDone      runState = "DONE"
	stateFailed    runState = "FAILED"
)

const (
	notFoundLabel = "Item não encontrado neste mercado"
	currencyBRL   = "BRL"
	sourceReal    = "real"
	sourceMock    = "mock"
)

// Config bounds how long each stage of a run may take.
type Config struct {
	StaticTimeout   time.Duration
	HeadlessTimeout time.Duration
	RequestDeadline time.Duration
}

func (c Config) withDefaults() Config {
	if c.StaticTimeout <= 0 {
		c.StaticTimeout = 10 * time.Second
	}
	if c.HeadlessTimeout <= 0 {
		c.HeadlessTimeout = 30 * time.Second
	}
	if c.RequestDeadline <= 0 {
		c.RequestDeadline = 90 * time.Second
	}
	return c
}

// Pipeline runs a shopping list through lookup, fallback collection,
// aggregation and persistence, producing one Quote per run.
type Pipeline struct {
	store      *store.Store
	registry   *collect.Registry
	collectors *collect.Set
	normalizer *Normalizer
	cfg        Config
}

func NewPipeline(st *store.Store, registry *collect.Registry, collectors *collect.Set, normalizer *Normalizer, cfg Config) *Pipeline {
	return &Pipeline{
		store:      st,
		registry:   registry,
		collectors: collectors,
		normalizer: normalizer,
		cfg:        cfg.withDefaults(),
	}
}

// Run quotes one shopping list. Collection failures never abort the run;
// a market that yields nothing simply totals zero. The only hard errors
// are an empty list and a failure to persist the final quote.
func (p *Pipeline) Run(ctx context.Context, rawItems []string) (*models.Quote, error) {
	now := time.Now().UTC()
	id := quoteID(now)
	state := stateInit
	advance := func(next runState) {
		log.Printf("[Pipeline] %s: %s -> %s", id, state, next)
		state = next
	}
	fail := func(err error) (*models.Quote, error) {
		log.Printf("[Pipeline] %s: %s -> %s: %v", id, state, stateFailed, err)
		return nil, err
	}

	var items []models.Item
	var requested []string
	for _, raw := range rawItems {
		trimmed := strings.TrimSpace(raw)
		if trimmed == "" {
			continue
		}
		item := p.normalizer.Normalize(trimmed)
		if item.NormalizedKey == "" {
			continue
		}
		requested = append(requested, trimmed)
		items = append(items, item)
	}
	if len(items) == 0 {
		return fail(ErrEmptyList)
	}

	// Collection is bounded by the request deadline; store work rides a
	// context that survives it, so an expired deadline still aggregates
	// and persists whatever was collected.
	runCtx, cancel := context.WithTimeout(ctx, p.cfg.RequestDeadline)
	defer cancel()
	storeCtx := context.WithoutCancel(ctx)

	// The list is kept for history even when the quote later fails.
	if _, err := p.store.SaveList(storeCtx, requested); err != nil {
		log.Printf("[Pipeline] %s: save list: %v", id, err)
	}

	advance(stateLookup)
	sources := p.registry.Sources()
	empty, err := p.store.Empty(storeCtx)
	if err != nil {
		return fail(fmt.Errorf("check store: %w", err))
	}
	if empty {
		stats := p.Populate(runCtx, sources, items)
		log.Printf("[Pipeline] %s: populated %d entries from %d markets (%d errors)", id, stats.Entries, stats.Markets, stats.Errors)
	}

	markets, err := p.attemptedMarkets(storeCtx, sources)
	if err != nil {
		return fail(fmt.Errorf("list markets: %w", err))
	}

	keys := make([]string, len(items))
	for i, item := range items {
		keys[i] = item.NormalizedKey
	}
	totals, err := p.store.Totals(storeCtx, markets, keys)
	if err != nil {
		return fail(fmt.Errorf("compute totals: %w", err))
	}

	if len(markets) > 0 && allZero(totals) {
		advance(stateFallback)
		stats := p.runFallback(runCtx, sources, items)
		log.Printf("[Pipeline] %s: fallback wrote %d entries (%d errors)", id, stats.Entries, stats.Errors)
		if markets, err = p.attemptedMarkets(storeCtx, sources); err != nil {
			return fail(fmt.Errorf("list markets: %w", err))
		}
	}

	advance(stateAggregate)
	details, finalTotals := p.aggregate(storeCtx, markets, items)

	advance(statePersist)
	quote := &models.Quote{
		ID:             id,
		RequestedAt:    now,
		Source:         p.sourceLabel(sources),
		Currency:       currencyBRL,
		RequestedItems: requested,
		Details:        details,
		Totals:         finalTotals,
	}
	if err := p.store.SaveQuote(storeCtx, quote); err != nil {
		return fail(fmt.Errorf("save quote: %w", err))
	}

	advance(stateDone)
	return quote, nil
}

// PopulateStats reports one collection round.
type PopulateStats struct {
	Markets int `json:"markets"`
	Entries int `json:"entries"`
	Errors  int `json:"errors"`
}

// Populate fans out over the sources and fills the price store. With a
// non-empty item list, searchable sources are queried per item; otherwise
// each source's listing pages are harvested whole. Every failure is
// logged and counted, never fatal.
func (p *Pipeline) Populate(ctx context.Context, sources []collect.Source, items []models.Item) PopulateStats {
	var wg sync.WaitGroup
	var mu sync.Mutex
	stats := PopulateStats{}

	for _, src := range sources {
		wg.Add(1)
		go func(src collect.Source) {
			defer wg.Done()
			coll, err := p.collectors.Get(src.Kind)
			if err != nil {
				log.Printf("[Pipeline] source %s: %v", src.Name, err)
				mu.Lock()
				stats.Errors++
				mu.Unlock()
				return
			}
			written, failed := p.collectSource(ctx, coll, src, items)
			mu.Lock()
			stats.Entries += written
			stats.Errors += failed
			if written > 0 {
				stats.Markets++
			}
			mu.Unlock()
		}(src)
	}

	wg.Wait()
	return stats
}

func (p *Pipeline) collectSource(ctx context.Context, coll collect.Collector, src collect.Source, items []models.Item) (written, failed int) {
	record := func(cands []collect.Candidate) {
		observed := time.Now().UTC()
		for _, cand := range cands {
			key := p.normalizer.Normalize(cand.Label).NormalizedKey
			if key == "" || cand.Price <= 0 {
				continue
			}
			entry := models.PriceEntry{
				Market:     src.Name,
				ItemKey:    key,
				ItemLabel:  cand.Label,
				Price:      collect.Round2(cand.Price),
				Source:     src.Name,
				ObservedAt: observed,
			}
			if err := p.store.PutPrice(ctx, entry); err != nil {
				log.Printf("[Pipeline] store %s: %v", src.Name, err)
				failed++
				continue
			}
			written++
		}
	}

	if len(items) == 0 || !searchable(src) {
		cands, err := p.fetchWithTimeout(ctx, coll, src, "")
		if err != nil {
			log.Printf("[Pipeline] collect %s: %v", src.Name, err)
			failed++
		}
		record(cands)
		return written, failed
	}

	for _, item := range items {
		cands, err := p.fetchWithTimeout(ctx, coll, src, item.NormalizedKey)
		if err != nil {
			log.Printf("[Pipeline] collect %s %q: %v", src.Name, item.NormalizedKey, err)
			failed++
			continue
		}
		record(cands)
	}
	return written, failed
}

func (p *Pipeline) fetchWithTimeout(ctx context.Context, coll collect.Collector, src collect.Source, term string) ([]collect.Candidate, error) {
	timeout := p.cfg.StaticTimeout
	if src.Kind == collect.KindHeadless {
		timeout = p.cfg.HeadlessTimeout
	}
	fetchCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return coll.FetchCandidates(fetchCtx, src, term)
}

// aggregate builds the per-market detail rows and totals. An item with no
// stored price, or a stored zero, appears as a not-found row priced 0 and
// does not count toward the total.
func (p *Pipeline) aggregate(ctx context.Context, markets []string, items []models.Item) (map[string][]models.QuoteItem, map[string]float64) {
	details := make(map[string][]models.QuoteItem, len(markets))
	totals := make(map[string]float64, len(markets))

	for _, market := range markets {
		rows := make([]models.QuoteItem, 0, len(items))
		sum := 0.0
		for _, item := range items {
			entry, err := p.store.MatchPrice(ctx, market, item.NormalizedKey)
			if err != nil {
				if !errors.Is(err, store.ErrNotFound) {
					log.Printf("[Pipeline] match %s/%s: %v", market, item.NormalizedKey, err)
				}
				rows = append(rows, models.QuoteItem{ItemBuscado: item.Raw, ItemEncontrado: notFoundLabel, Preco: 0})
				continue
			}
			if entry.Price <= 0 {
				rows = append(rows, models.QuoteItem{ItemBuscado: item.Raw, ItemEncontrado: notFoundLabel, Preco: 0})
				continue
			}
			label := entry.ItemLabel
			if label == "" {
				label = entry.ItemKey
			}
			rows = append(rows, models.QuoteItem{ItemBuscado: item.Raw, ItemEncontrado: label, Preco: collect.Round2(entry.Price)})
			sum += entry.Price
		}
		details[market] = rows
		totals[market] = collect.Round2(sum)
	}

	return details, totals
}

func (p *Pipeline) attemptedMarkets(ctx context.Context, sources []collect.Source) ([]string, error) {
	markets, err := p.store.Markets(ctx)
	if err != nil {
		return nil, err
	}
	for _, src := range sources {
		markets = collect.AppendUnique(markets, src.Name)
	}
	sort.Strings(markets)
	return markets, nil
}

// sourceLabel is "mock" only when every configured source is a mock.
func (p *Pipeline) sourceLabel(sources []collect.Source) string {
	if len(sources) == 0 {
		return sourceReal
	}
	for _, src := range sources {
		if src.Kind != collect.KindMock {
			return sourceReal
		}
	}
	return sourceMock
}

func searchable(src collect.Source) bool {
	return len(src.SearchTemplates) > 0 || src.Kind == collect.KindMock
}

func allZero(totals map[string]float64) bool {
	for _, v := range totals {
		if v > 0 {
			return false
		}
	}
	return true
}

func quoteID(t time.Time) string {
	short := strings.Split(uuid.NewString(), "-")[0]
	return fmt.Sprintf("cotacao_%s_%s", t.Format("20060102_150405"), short)
}
