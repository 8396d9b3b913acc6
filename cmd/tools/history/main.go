package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/economizaja/cotador/internal/store"
)

func main() {
	dbPath := flag.String("db", "data/cotador.db", "path to the sqlite database")
	limit := flag.Int("limit", 20, "maximum quotes to show")
	flag.Parse()

	db, err := store.Open(*dbPath)
	if err != nil {
		log.Fatal(err)
	}
	defer db.Close()

	ctx := context.Background()
	if err := store.ApplyMigrations(ctx, db); err != nil {
		log.Fatal(err)
	}
	st := store.New(db)

	summaries, err := st.ListSummaries(ctx, *limit)
	if err != nil {
		log.Fatal(err)
	}
	if len(summaries) == 0 {
		fmt.Println("No quotes stored yet")
		return
	}

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"ID", "Requested At", "Best Market", "Best Total"})

	for _, s := range summaries {
		market := "-"
		if s.BestMarket != nil {
			market = *s.BestMarket
		}
		total := "-"
		if s.BestTotal != nil {
			total = fmt.Sprintf("R$ %.2f", *s.BestTotal)
		}
		t.AppendRow(table.Row{s.ID, s.RequestedAt.Format("2006-01-02 15:04:05"), market, total})
	}
	t.Render()
}
