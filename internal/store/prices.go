package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/economizaja/cotador/internal/models"
)

// ErrNotFound is returned when a lookup matches nothing.
var ErrNotFound = errors.New("not found")

// Store wraps the SQLite database behind typed accessors for prices,
// quotes and shopping lists.
type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// timeLayout pads nanoseconds to fixed width so lexicographic order on
// the stored strings matches chronological order.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

const priceCols = "market, item_key, item_label, price, source, observed_at"

func scanPrice(scan func(dest ...interface{}) error) (models.PriceEntry, error) {
	var e models.PriceEntry
	var observed string
	if err := scan(&e.Market, &e.ItemKey, &e.ItemLabel, &e.Price, &e.Source, &observed); err != nil {
		return e, err
	}
	if t, err := time.Parse(time.RFC3339Nano, observed); err == nil {
		e.ObservedAt = t
	}
	return e, nil
}

// PutPrice inserts or overwrites the entry for (market, item key). The
// newest write wins unconditionally, including a zero price.
func (s *Store) PutPrice(ctx context.Context, entry models.PriceEntry) error {
	if entry.Market == "" || entry.ItemKey == "" {
		return fmt.Errorf("price entry needs market and item key")
	}
	observed := entry.ObservedAt
	if observed.IsZero() {
		observed = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO prices (market, item_key, item_label, price, source, observed_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (market, item_key) DO UPDATE SET
			item_label = excluded.item_label,
			price = excluded.price,
			source = excluded.source,
			observed_at = excluded.observed_at
	`, entry.Market, entry.ItemKey, entry.ItemLabel, entry.Price, entry.Source, observed.UTC().Format(timeLayout))
	if err != nil {
		return fmt.Errorf("put price %s/%s: %w", entry.Market, entry.ItemKey, err)
	}
	return nil
}

// GetPrice fetches the exact entry for (market, item key).
func (s *Store) GetPrice(ctx context.Context, market, itemKey string) (models.PriceEntry, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+priceCols+" FROM prices WHERE market = ? AND item_key = ?", market, itemKey)
	entry, err := scanPrice(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return models.PriceEntry{}, ErrNotFound
	}
	if err != nil {
		return models.PriceEntry{}, fmt.Errorf("get price %s/%s: %w", market, itemKey, err)
	}
	return entry, nil
}

// MatchPrice finds an entry in one market whose stored key contains one
// of the given keys as a substring. Keys are tried in order; within a
// key, ties resolve to the smallest stored key so repeated calls return
// the same row.
func (s *Store) MatchPrice(ctx context.Context, market string, keys ...string) (models.PriceEntry, error) {
	for _, key := range keys {
		if key == "" {
			continue
		}
		row := s.db.QueryRowContext(ctx,
			"SELECT "+priceCols+" FROM prices WHERE market = ? AND instr(item_key, ?) > 0 ORDER BY item_key LIMIT 1",
			market, key)
		entry, err := scanPrice(row.Scan)
		if errors.Is(err, sql.ErrNoRows) {
			continue
		}
		if err != nil {
			return models.PriceEntry{}, fmt.Errorf("match price %s/%q: %w", market, key, err)
		}
		return entry, nil
	}
	return models.PriceEntry{}, ErrNotFound
}

// Totals sums the matched nonzero prices per market, rounded to cents.
// Markets with no matches total zero rather than being omitted.
func (s *Store) Totals(ctx context.Context, markets, keys []string) (map[string]float64, error) {
	totals := make(map[string]float64, len(markets))
	for _, market := range markets {
		sum := 0.0
		for _, key := range keys {
			entry, err := s.MatchPrice(ctx, market, key)
			if errors.Is(err, ErrNotFound) {
				continue
			}
			if err != nil {
				return nil, err
			}
			if entry.Price > 0 {
				sum += entry.Price
			}
		}
		totals[market] = math.Round(sum*100) / 100
	}
	return totals, nil
}

// Markets lists every market with at least one stored price.
func (s *Store) Markets(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT DISTINCT market FROM prices ORDER BY market")
	if err != nil {
		return nil, fmt.Errorf("list markets: %w", err)
	}
	defer rows.Close()

	var markets []string
	for rows.Next() {
		var market string
		if err := rows.Scan(&market); err != nil {
			return nil, fmt.Errorf("scan market: %w", err)
		}
		markets = append(markets, market)
	}
	return markets, rows.Err()
}

// IsEmpty reports whether one market has no stored prices.
func (s *Store) IsEmpty(ctx context.Context, market string) (bool, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM prices WHERE market = ?", market).Scan(&count); err != nil {
		return false, fmt.Errorf("count %s: %w", market, err)
	}
	return count == 0, nil
}

// Empty reports whether the whole price store has no entries.
func (s *Store) Empty(ctx context.Context) (bool, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM prices").Scan(&count); err != nil {
		return false, fmt.Errorf("count prices: %w", err)
	}
	return count == 0, nil
}

// CountByMarket returns the number of stored entries per market.
func (s *Store) CountByMarket(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT market, COUNT(*) FROM prices GROUP BY market ORDER BY market")
	if err != nil {
		return nil, fmt.Errorf("count by market: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var market string
		var count int
		if err := rows.Scan(&market, &count); err != nil {
			return nil, fmt.Errorf("scan count: %w", err)
		}
		counts[market] = count
	}
	return counts, rows.Err()
}
