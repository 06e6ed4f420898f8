package storage

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// AddWishlist inserts an entry, filling in the ID when empty.
func (s *Store) AddWishlist(e WishlistEntry) (WishlistEntry, error) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	e.CreatedAt = e.CreatedAt.UTC().Truncate(time.Second)
	_, err := s.db.Exec(`
		INSERT INTO wishlist (id, user_id, brand, perfume_name, ai_data, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		e.ID, e.UserID, e.Brand, e.PerfumeName, e.AIData, formatTime(e.CreatedAt))
	if isUniqueViolation(err) {
		return WishlistEntry{}, ErrDuplicate
	}
	if err != nil {
		return WishlistEntry{}, err
	}
	return e, nil
}

// ToggleWishlist removes the entry matching brand and name if present,
// otherwise adds it. It reports whether the entry is now on the list.
func (s *Store) ToggleWishlist(e WishlistEntry) (bool, error) {
	res, err := s.db.Exec(`DELETE FROM wishlist WHERE user_id = ? AND brand = ? AND perfume_name = ?`,
		e.UserID, e.Brand, e.PerfumeName)
	if err != nil {
		return false, err
	}
	if n, err := res.RowsAffected(); err != nil {
		return false, err
	} else if n > 0 {
		return false, nil
	}
	if _, err := s.AddWishlist(e); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Store) ListWishlist(userID string) ([]WishlistEntry, error) {
	rows, err := s.db.Query(`
		SELECT id, user_id, brand, perfume_name, ai_data, created_at
		FROM wishlist WHERE user_id = ? ORDER BY created_at DESC, id DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []WishlistEntry
	for rows.Next() {
		var e WishlistEntry
		var createdAt string
		if err := rows.Scan(&e.ID, &e.UserID, &e.Brand, &e.PerfumeName, &e.AIData, &createdAt); err != nil {
			return nil, err
		}
		if e.CreatedAt, err = parseTime("created_at", createdAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Store) DeleteWishlist(userID, id string) error {
	res, err := s.db.Exec(`DELETE FROM wishlist WHERE user_id = ? AND id = ?`, userID, id)
	if err != nil {
		return err
	}
	return expectOneRow(res)
}

// InWishlist reports whether userID already wants brand/name.
func (s *Store) InWishlist(userID, brand, name string) (bool, error) {
	var one int
	err := s.db.QueryRow(`SELECT 1 FROM wishlist WHERE user_id = ? AND brand = ? AND perfume_name = ?`, userID, brand, name).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	return err == nil, err
}
