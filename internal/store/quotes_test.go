package store

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/economizaja/cotador/internal/models"
)

func sampleQuote(id string, at time.Time) *models.Quote {
	return &models.Quote{
		ID:             id,
		RequestedAt:    at,
		Source:         "mock",
		Currency:       "BRL",
		RequestedItems: []string{"arroz", "café"},
		Details: map[string][]models.QuoteItem{
			"tauste": {
				{ItemBuscado: "arroz", ItemEncontrado: "Arroz Tipo 1 5kg", Preco: 27.9},
				{ItemBuscado: "café", ItemEncontrado: "Item não encontrado neste mercado", Preco: 0},
			},
		},
		Totals: map[string]float64{"tauste": 27.9},
	}
}

func TestSaveAndGetQuote(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	at := time.Date(2026, 8, 25, 9, 30, 0, 500000000, time.UTC)
	q := sampleQuote("cotacao_20260825_093000_ab12cd34", at)
	if err := st.SaveQuote(ctx, q); err != nil {
		t.Fatalf("SaveQuote: %v", err)
	}

	got, err := st.GetQuote(ctx, q.ID)
	if err != nil {
		t.Fatalf("GetQuote: %v", err)
	}
	if got.ID != q.ID || got.Source != q.Source || got.Currency != q.Currency {
		t.Errorf("got %+v", got)
	}
	if !got.RequestedAt.Equal(at) {
		t.Errorf("requested_at = %v, want %v", got.RequestedAt, at)
	}
	if !reflect.DeepEqual(got.RequestedItems, q.RequestedItems) {
		t.Errorf("requested items = %v", got.RequestedItems)
	}
	if !reflect.DeepEqual(got.Details, q.Details) {
		t.Errorf("details = %v", got.Details)
	}
	if !reflect.DeepEqual(got.Totals, q.Totals) {
		t.Errorf("totals = %v", got.Totals)
	}
}

func TestGetQuote_NotFound(t *testing.T) {
	st := openTestStore(t)

	if _, err := st.GetQuote(context.Background(), "cotacao_inexistente"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	if _, err := st.LatestQuote(context.Background()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("latest on empty store: err = %v, want ErrNotFound", err)
	}
}

func TestSaveQuote_DuplicateID(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	q := sampleQuote("cotacao_dup", time.Now().UTC())
	if err := st.SaveQuote(ctx, q); err != nil {
		t.Fatalf("first save: %v", err)
	}
	if err := st.SaveQuote(ctx, q); err == nil {
		t.Fatal("duplicate ID should fail")
	}
}

func TestLatestQuoteAndListIDs(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 8, 25, 10, 0, 0, 0, time.UTC)
	// Insert out of chronological order; listing must still come back
	// newest first.
	for _, q := range []*models.Quote{
		sampleQuote("cotacao_b", base.Add(1 * time.Minute)),
		sampleQuote("cotacao_c", base.Add(2 * time.Minute)),
		sampleQuote("cotacao_a", base),
	} {
		if err := st.SaveQuote(ctx, q); err != nil {
			t.Fatalf("save %s: %v", q.ID, err)
		}
	}

	latest, err := st.LatestQuote(ctx)
	if err != nil {
		t.Fatalf("LatestQuote: %v", err)
	}
	if latest.ID != "cotacao_c" {
		t.Errorf("latest = %s, want cotacao_c", latest.ID)
	}

	ids, err := st.ListQuoteIDs(ctx)
	if err != nil {
		t.Fatalf("ListQuoteIDs: %v", err)
	}
	if !reflect.DeepEqual(ids, []string{"cotacao_c", "cotacao_b", "cotacao_a"}) {
		t.Fatalf("ids = %v", ids)
	}
}

func TestListSummaries(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 8, 25, 10, 0, 0, 0, time.UTC)
	q1 := sampleQuote("cotacao_1", base)
	q2 := sampleQuote("cotacao_2", base.Add(time.Minute))
	q2.Totals = map[string]float64{"tauste": 0, "amigao": 12.5, "kawakami": 8.3}
	q3 := sampleQuote("cotacao_3", base.Add(2*time.Minute))
	q3.Totals = map[string]float64{"tauste": 0}

	for _, q := range []*models.Quote{q1, q2, q3} {
		if err := st.SaveQuote(ctx, q); err != nil {
			t.Fatalf("save %s: %v", q.ID, err)
		}
	}

	summaries, err := st.ListSummaries(ctx, 2)
	if err != nil {
		t.Fatalf("ListSummaries: %v", err)
	}
	if len(summaries) != 2 {
		t.Fatalf("got %d summaries, want limit of 2", len(summaries))
	}

	if summaries[0].ID != "cotacao_3" {
		t.Errorf("summaries[0] = %s, want newest", summaries[0].ID)
	}
	if summaries[0].BestMarket != nil || summaries[0].BestTotal != nil {
		t.Errorf("all-zero quote should have nil best fields: %+v", summaries[0])
	}

	if summaries[1].ID != "cotacao_2" {
		t.Errorf("summaries[1] = %s", summaries[1].ID)
	}
	if summaries[1].BestMarket == nil || *summaries[1].BestMarket != "kawakami" {
		t.Errorf("best market = %v, want kawakami", summaries[1].BestMarket)
	}
	if summaries[1].BestTotal == nil || *summaries[1].BestTotal != 8.3 {
		t.Errorf("best total = %v, want 8.3", summaries[1].BestTotal)
	}
}

func TestListSummaries_SkipsCorruptPayload(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	q := sampleQuote("cotacao_ok", time.Date(2026, 8, 25, 10, 0, 0, 0, time.UTC))
	if err := st.SaveQuote(ctx, q); err != nil {
		t.Fatalf("save: %v", err)
	}

	_, err := st.db.ExecContext(ctx,
		"INSERT INTO quotes (id, requested_at, payload) VALUES (?, ?, ?)",
		"cotacao_quebrada", "2026-08-25T11:00:00.000000000Z", "{not json")
	if err != nil {
		t.Fatalf("insert corrupt row: %v", err)
	}

	summaries, err := st.ListSummaries(ctx, 10)
	if err != nil {
		t.Fatalf("ListSummaries: %v", err)
	}
	if len(summaries) != 1 || summaries[0].ID != "cotacao_ok" {
		t.Fatalf("summaries = %+v, want only the valid quote", summaries)
	}
}

func TestClearQuotes(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	for _, id := range []string{"cotacao_x", "cotacao_y"} {
		if err := st.SaveQuote(ctx, sampleQuote(id, time.Now().UTC())); err != nil {
			t.Fatalf("save %s: %v", id, err)
		}
	}

	deleted, err := st.ClearQuotes(ctx)
	if err != nil {
		t.Fatalf("ClearQuotes: %v", err)
	}
	if deleted != 2 {
		t.Fatalf("deleted = %d, want 2", deleted)
	}

	ids, err := st.ListQuoteIDs(ctx)
	if err != nil {
		t.Fatalf("ListQuoteIDs: %v", err)
	}
	if len(ids) != 0 {
		t.Fatalf("ids after clear = %v", ids)
	}
}
