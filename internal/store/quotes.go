package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"github.com/economizaja/cotador/internal/models"
)

// SaveQuote appends one quote to history. Quote IDs are unique; saving
// the same ID twice is an error.
func (s *Store) SaveQuote(ctx context.Context, q *models.Quote) error {
	payload, err := json.Marshal(q)
	if err != nil {
		return fmt.Errorf("encode quote %s: %w", q.ID, err)
	}

	_, err = s.db.ExecContext(ctx,
		"INSERT INTO quotes (id, requested_at, payload) VALUES (?, ?, ?)",
		q.ID, q.RequestedAt.UTC().Format(timeLayout), string(payload))
	if err != nil {
		return fmt.Errorf("save quote %s: %w", q.ID, err)
	}
	return nil
}

// GetQuote loads one quote by ID.
func (s *Store) GetQuote(ctx context.Context, id string) (*models.Quote, error) {
	var payload string
	err := s.db.QueryRowContext(ctx, "SELECT payload FROM quotes WHERE id = ?", id).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get quote %s: %w", id, err)
	}

	var q models.Quote
	if err := json.Unmarshal([]byte(payload), &q); err != nil {
		return nil, fmt.Errorf("decode quote %s: %w", id, err)
	}
	return &q, nil
}

// LatestQuote loads the most recently requested quote.
func (s *Store) LatestQuote(ctx context.Context) (*models.Quote, error) {
	var payload string
	err := s.db.QueryRowContext(ctx,
		"SELECT payload FROM quotes ORDER BY requested_at DESC, id DESC LIMIT 1").Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get latest quote: %w", err)
	}

	var q models.Quote
	if err := json.Unmarshal([]byte(payload), &q); err != nil {
		return nil, fmt.Errorf("decode latest quote: %w", err)
	}
	return &q, nil
}

// ListQuoteIDs returns every stored quote ID, newest first.
func (s *Store) ListQuoteIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id FROM quotes ORDER BY requested_at DESC, id DESC")
	if err != nil {
		return nil, fmt.Errorf("list quote ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan quote id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ListSummaries returns up to limit quote summaries, newest first. A row
// whose payload no longer decodes is logged and skipped instead of
// poisoning the listing.
func (s *Store) ListSummaries(ctx context.Context, limit int) ([]models.HistorySummary, error) {
	if limit <= 0 {
		limit = 10
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, payload FROM quotes ORDER BY requested_at DESC, id DESC LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("list summaries: %w", err)
	}
	defer rows.Close()

	summaries := make([]models.HistorySummary, 0, limit)
	for rows.Next() {
		var id, payload string
		if err := rows.Scan(&id, &payload); err != nil {
			return nil, fmt.Errorf("scan summary: %w", err)
		}

		var q models.Quote
		if err := json.Unmarshal([]byte(payload), &q); err != nil {
			log.Printf("[Store] skipping corrupt quote %s: %v", id, err)
			continue
		}
		summaries = append(summaries, q.Summary())
	}
	return summaries, rows.Err()
}

// ClearQuotes deletes the whole quote history and reports how many
// records went away.
func (s *Store) ClearQuotes(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM quotes")
	if err != nil {
		return 0, fmt.Errorf("clear quotes: %w", err)
	}
	deleted, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("clear quotes: %w", err)
	}
	return deleted, nil
}
