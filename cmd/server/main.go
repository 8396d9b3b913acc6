package main

import (
	"context"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/economizaja/cotador/internal/api"
	"github.com/economizaja/cotador/internal/collect"
	"github.com/economizaja/cotador/internal/quote"
	"github.com/economizaja/cotador/internal/store"
)

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	ctx := context.Background()
	dbPath := databasePath()
	db, err := store.Open(dbPath)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	if err := store.ApplyMigrations(ctx, db); err != nil {
		log.Fatalf("Migration failed: %v", err)
	}
	st := store.New(db)

	registry, err := collect.LoadRegistry(os.Getenv("COTADOR_SOURCES_FILE"), os.Getenv("COTADOR_RULES_FILE"))
	if err != nil {
		log.Fatalf("Failed to load source registry: %v", err)
	}

	normalizer, err := quote.LoadNormalizer(os.Getenv("COTADOR_SYNONYMS_FILE"))
	if err != nil {
		log.Fatalf("Failed to load synonyms: %v", err)
	}

	cfg := quote.Config{
		StaticTimeout:   envSeconds("COTADOR_STATIC_TIMEOUT_SECONDS", 10*time.Second),
		HeadlessTimeout: envSeconds("COTADOR_HEADLESS_TIMEOUT_SECONDS", 30*time.Second),
		RequestDeadline: envSeconds("COTADOR_REQUEST_DEADLINE_SECONDS", 90*time.Second),
	}

	pool := collect.NewBrowserPool(envInt("COTADOR_HEADLESS_WORKERS", 2))
	defer pool.Close()

	static := collect.NewStaticCollector()
	static.Timeout = cfg.StaticTimeout

	collectors := collect.NewSet()
	collectors.Register(collect.KindStatic, static)
	collectors.Register(collect.KindHeadless, collect.NewHeadlessCollector(pool, cfg.HeadlessTimeout))
	collectors.Register(collect.KindMock, collect.NewMockCollector())

	pipeline := quote.NewPipeline(st, registry, collectors, normalizer, cfg)

	srv := api.NewServer(st, registry, pipeline)
	log.Printf("[Server] cotador listening on :%s (db=%s, sources=%d)", port, dbPath, len(registry.Sources()))
	if err := srv.Start(":" + port); err != nil {
		log.Fatal(err)
	}
}

func databasePath() string {
	if path := os.Getenv("COTADOR_DB_PATH"); path != "" {
		return path
	}
	dir := os.Getenv("COTADOR_DATA_DIR")
	if dir == "" {
		dir = "data"
	}
	return filepath.Join(dir, "cotador.db")
}

func envInt(name string, def int) int {
	v := os.Getenv(name)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func envSeconds(name string, def time.Duration) time.Duration {
	v := os.Getenv(name)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return time.Duration(n) * time.Second
}
