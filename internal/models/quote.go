package models

import (
	"sort"
	"time"
)

// QuoteItem is one requested item matched (or not) in one market.
type QuoteItem struct {
	ItemBuscado    string  `json:"item_buscado"`
	ItemEncontrado string  `json:"item_encontrado"`
	Preco          float64 `json:"preco"`
}

// Quote is the persisted result of one quotation request.
type Quote struct {
	ID             string                 `json:"id"`
	RequestedAt    time.Time              `json:"requested_at"`
	Source         string                 `json:"source"`
	Currency       string                 `json:"currency"`
	RequestedItems []string               `json:"requested_items"`
	Details        map[string][]QuoteItem `json:"cotacoes_detalhadas"`
	Totals         map[string]float64     `json:"totais_por_mercado"`
}

// BestMarket returns the market with the lowest total strictly greater than
// zero. ok is false when no market has a nonzero total. Ties break to the
// alphabetically first market name.
func (q *Quote) BestMarket() (market string, total float64, ok bool) {
	names := make([]string, 0, len(q.Totals))
	for name := range q.Totals {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		t := q.Totals[name]
		if t <= 0 {
			continue
		}
		if !ok || t < total {
			market, total, ok = name, t, true
		}
	}
	return market, total, ok
}

// Summary derives the listing view of this quote.
func (q *Quote) Summary() HistorySummary {
	s := HistorySummary{ID: q.ID, RequestedAt: q.RequestedAt}
	if market, total, ok := q.BestMarket(); ok {
		s.BestMarket = &market
		s.BestTotal = &total
	}
	return s
}

// HistorySummary is the lightweight view of a stored quote used for listings.
// BestMarket/BestTotal are nil when every market total was zero.
type HistorySummary struct {
	ID          string    `json:"id"`
	RequestedAt time.Time `json:"requested_at"`
	BestMarket  *string   `json:"best_market"`
	BestTotal   *float64  `json:"best_total"`
}

// PriceEntry is the cached price of one item at one market. Price 0 is the
// "not found" sentinel, not a real price.
type PriceEntry struct {
	Market     string    `json:"market"`
	ItemKey    string    `json:"item_key"`
	ItemLabel  string    `json:"item_label"`
	Price      float64   `json:"price"`
	Source     string    `json:"source"`
	ObservedAt time.Time `json:"observed_at"`
}

// ShoppingList is a saved request list.
type ShoppingList struct {
	ID      string    `json:"id"`
	SavedAt time.Time `json:"saved_at"`
	Items   []string  `json:"itens"`
}

// Item is one requested product after normalization. CandidateKeys is ordered
// most specific first: the canonical synonym expansion, the cleaned raw term,
// then the accent-stripped raw term.
type Item struct {
	Raw           string
	NormalizedKey string
	CandidateKeys []string
}
