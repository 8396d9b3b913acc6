package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/economizaja/cotador/internal/models"
)

// SaveList stores one shopping list and returns the persisted record.
func (s *Store) SaveList(ctx context.Context, items []string) (models.ShoppingList, error) {
	now := time.Now().UTC()
	list := models.ShoppingList{
		ID:      fmt.Sprintf("lista_%s_%s", now.Format("20060102_150405"), shortID()),
		SavedAt: now,
		Items:   items,
	}

	payload, err := json.Marshal(list.Items)
	if err != nil {
		return models.ShoppingList{}, fmt.Errorf("encode list: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		"INSERT INTO shopping_lists (id, saved_at, items) VALUES (?, ?, ?)",
		list.ID, now.Format(timeLayout), string(payload))
	if err != nil {
		return models.ShoppingList{}, fmt.Errorf("save list %s: %w", list.ID, err)
	}
	return list, nil
}

// ListLists returns up to limit saved shopping lists, newest first,
// skipping records that no longer decode.
func (s *Store) ListLists(ctx context.Context, limit int) ([]models.ShoppingList, error) {
	if limit <= 0 {
		limit = 10
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, saved_at, items FROM shopping_lists ORDER BY saved_at DESC, id DESC LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("list shopping lists: %w", err)
	}
	defer rows.Close()

	lists := make([]models.ShoppingList, 0, limit)
	for rows.Next() {
		var list models.ShoppingList
		var savedAt, payload string
		if err := rows.Scan(&list.ID, &savedAt, &payload); err != nil {
			return nil, fmt.Errorf("scan shopping list: %w", err)
		}
		if err := json.Unmarshal([]byte(payload), &list.Items); err != nil {
			log.Printf("[Store] skipping corrupt list %s: %v", list.ID, err)
			continue
		}
		if t, err := time.Parse(time.RFC3339Nano, savedAt); err == nil {
			list.SavedAt = t
		}
		lists = append(lists, list)
	}
	return lists, rows.Err()
}

func shortID() string {
	return strings.Split(uuid.NewString(), "-")[0]
}
