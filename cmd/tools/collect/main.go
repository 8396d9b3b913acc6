package main

import (
	"context"
	"flag"
	"log"
	"sort"

	"github.com/economizaja/cotador/internal/collect"
	"github.com/economizaja/cotador/internal/quote"
	"github.com/economizaja/cotador/internal/store"
)

func main() {
	dbPath := flag.String("db", "data/cotador.db", "path to the sqlite database")
	sourceName := flag.String("source", "", "collect a single source by name (default: all)")
	workers := flag.Int("headless-workers", 2, "concurrent headless browser tabs")
	flag.Parse()

	ctx := context.Background()
	db, err := store.Open(*dbPath)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	if err := store.ApplyMigrations(ctx, db); err != nil {
		log.Fatalf("Migration failed: %v", err)
	}
	st := store.New(db)

	registry, err := collect.LoadRegistry("", "")
	if err != nil {
		log.Fatalf("Failed to load source registry: %v", err)
	}
	normalizer, err := quote.LoadNormalizer("")
	if err != nil {
		log.Fatalf("Failed to load synonyms: %v", err)
	}

	sources := registry.Sources()
	if *sourceName != "" {
		src, ok := registry.Source(*sourceName)
		if !ok {
			log.Fatalf("Unknown source: %s", *sourceName)
		}
		sources = []collect.Source{src}
	}

	pool := collect.NewBrowserPool(*workers)
	defer pool.Close()

	collectors := collect.NewSet()
	collectors.Register(collect.KindStatic, collect.NewStaticCollector())
	collectors.Register(collect.KindHeadless, collect.NewHeadlessCollector(pool, 0))
	collectors.Register(collect.KindMock, collect.NewMockCollector())

	pipeline := quote.NewPipeline(st, registry, collectors, normalizer, quote.Config{})

	log.Printf("Starting collection for %d source(s)", len(sources))
	stats := pipeline.Populate(ctx, sources, nil)
	log.Printf("Collection finished. Markets: %d, Entries: %d, Errors: %d", stats.Markets, stats.Entries, stats.Errors)

	counts, err := st.CountByMarket(ctx)
	if err != nil {
		log.Fatalf("Count failed: %v", err)
	}
	markets := make([]string, 0, len(counts))
	for market := range counts {
		markets = append(markets, market)
	}
	sort.Strings(markets)
	for _, market := range markets {
		log.Printf("  %s: %d prices", market, counts[market])
	}
}
