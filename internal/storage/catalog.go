package storage

import (
	"database/sql"
	"time"
)

// UpsertMasterPerfume inserts or refreshes the shared catalog row for
// (Brand, Name).
func (s *Store) UpsertMasterPerfume(p MasterPerfume) error {
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = time.Now()
	}
	_, err := s.db.Exec(`
		INSERT INTO master_perfumes (brand, name, description, notes, usage, image_url, full_ai_data, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(brand, name) DO UPDATE SET
			description = excluded.description,
			notes = excluded.notes,
			usage = excluded.usage,
			image_url = excluded.image_url,
			full_ai_data = excluded.full_ai_data,
			updated_at = excluded.updated_at`,
		p.Brand, p.Name, p.Description, p.Notes, p.Usage, p.ImageURL, p.FullAIData, formatTime(p.UpdatedAt))
	return err
}

func (s *Store) GetMasterPerfume(brand, name string) (MasterPerfume, error) {
	var p MasterPerfume
	var updatedAt string
	err := s.db.QueryRow(`
		SELECT brand, name, description, notes, usage, image_url, full_ai_data, updated_at
		FROM master_perfumes WHERE brand = ? AND name = ?`, brand, name,
	).Scan(&p.Brand, &p.Name, &p.Description, &p.Notes, &p.Usage, &p.ImageURL, &p.FullAIData, &updatedAt)
	if err == sql.ErrNoRows {
		return MasterPerfume{}, ErrNotFound
	}
	if err != nil {
		return MasterPerfume{}, err
	}
	if p.UpdatedAt, err = parseTime("updated_at", updatedAt); err != nil {
		return MasterPerfume{}, err
	}
	return p, nil
}

// CountMasterPerfumes returns the catalog size.
func (s *Store) CountMasterPerfumes() (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM master_perfumes`).Scan(&n)
	return n, err
}
