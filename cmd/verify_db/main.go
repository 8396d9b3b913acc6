package main

import (
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/economizaja/cotador/internal/store"
)

func main() {
	path := os.Getenv("COTADOR_DB_PATH")
	if path == "" {
		dir := os.Getenv("COTADOR_DATA_DIR")
		if dir == "" {
			dir = "data"
		}
		path = filepath.Join(dir, "cotador.db")
	}

	db, err := store.Open(path)
	if err != nil {
		log.Fatalf("Unable to open database: %v", err)
	}
	defer db.Close()

	var prices, quotes, lists int
	err = db.QueryRow(`
		SELECT
			(SELECT count(*) FROM prices),
			(SELECT count(*) FROM quotes),
			(SELECT count(*) FROM shopping_lists)
	`).Scan(&prices, &quotes, &lists)

	if err != nil {
		log.Fatalf("Query failed: %v", err)
	}

	fmt.Printf("Database: %s\n", path)
	fmt.Printf("Prices: %d\n", prices)
	fmt.Printf("Quotes: %d\n", quotes)
	fmt.Printf("Shopping lists: %d\n", lists)
}
