package storage

import (
	"database/sql"
	"time"
)

const itemColumns = `id, user_id, photo_url, ai_data, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanItem(row rowScanner) (CollectionItem, error) {
	var (
		it                   CollectionItem
		createdAt, updatedAt string
	)
	if err := row.Scan(&it.ID, &it.UserID, &it.PhotoURL, &it.AIData, &createdAt, &updatedAt); err != nil {
		return CollectionItem{}, err
	}
	var err error
	if it.CreatedAt, err = parseTime("created_at", createdAt); err != nil {
		return CollectionItem{}, err
	}
	if it.UpdatedAt, err = parseTime("updated_at", updatedAt); err != nil {
		return CollectionItem{}, err
	}
	return it, nil
}

// SaveItem inserts a collection item. A second item with the same owner and
// photo URL yields ErrDuplicate.
func (s *Store) SaveItem(it CollectionItem) error {
	if it.CreatedAt.IsZero() {
		it.CreatedAt = time.Now()
	}
	if it.UpdatedAt.IsZero() {
		it.UpdatedAt = it.CreatedAt
	}
	_, err := s.db.Exec(`INSERT INTO collection_items (`+itemColumns+`) VALUES (?, ?, ?, ?, ?, ?)`,
		it.ID, it.UserID, it.PhotoURL, it.AIData, formatTime(it.CreatedAt), formatTime(it.UpdatedAt))
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	return err
}

// GetItem returns one of userID's items.
func (s *Store) GetItem(userID, id string) (CollectionItem, error) {
	it, err := scanItem(s.db.QueryRow(`SELECT `+itemColumns+` FROM collection_items WHERE user_id = ? AND id = ?`, userID, id))
	if err == sql.ErrNoRows {
		return CollectionItem{}, ErrNotFound
	}
	return it, err
}

// FindItemByPhoto looks an item up by owner and photo URL.
func (s *Store) FindItemByPhoto(userID, photoURL string) (CollectionItem, error) {
	it, err := scanItem(s.db.QueryRow(`SELECT `+itemColumns+` FROM collection_items WHERE user_id = ? AND photo_url = ?`, userID, photoURL))
	if err == sql.ErrNoRows {
		return CollectionItem{}, ErrNotFound
	}
	return it, err
}

// ListItems returns userID's items, newest first. limit <= 0 means no limit.
func (s *Store) ListItems(userID string, limit int) ([]CollectionItem, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.Query(`SELECT `+itemColumns+` FROM collection_items WHERE user_id = ? ORDER BY created_at DESC, id DESC LIMIT ?`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []CollectionItem
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

// UpdateItemAIData replaces an item's structured payload in place.
func (s *Store) UpdateItemAIData(userID, id, aiData string) error {
	res, err := s.db.Exec(`UPDATE collection_items SET ai_data = ?, updated_at = ? WHERE user_id = ? AND id = ?`,
		aiData, formatTime(time.Now()), userID, id)
	if err != nil {
		return err
	}
	return expectOneRow(res)
}

func (s *Store) DeleteItem(userID, id string) error {
	res, err := s.db.Exec(`DELETE FROM collection_items WHERE user_id = ? AND id = ?`, userID, id)
	if err != nil {
		return err
	}
	return expectOneRow(res)
}
