package storage

import (
	"database/sql"
	"time"
)

func (s *Store) GetProfile(id string) (Profile, error) {
	var (
		p                   Profile
		scanLim, consultLim sql.NullInt64
		updatedAt           string
	)
	err := s.db.QueryRow(`
		SELECT id, display_name, subscription_status, scan_limit_daily, consult_limit_daily, updated_at
		FROM profiles WHERE id = ?`, id,
	).Scan(&p.ID, &p.DisplayName, &p.SubscriptionStatus, &scanLim, &consultLim, &updatedAt)
	if err == sql.ErrNoRows {
		return Profile{}, ErrNotFound
	}
	if err != nil {
		return Profile{}, err
	}
	p.ScanLimitDaily = int(scanLim.Int64)
	p.ConsultLimitDaily = int(consultLim.Int64)
	if p.UpdatedAt, err = parseTime("updated_at", updatedAt); err != nil {
		return Profile{}, err
	}
	return p, nil
}

// UpsertProfile inserts or replaces a profile row. Zero limits are stored as
// NULL so the configured defaults apply.
func (s *Store) UpsertProfile(p Profile) error {
	if p.SubscriptionStatus == "" {
		p.SubscriptionStatus = "free"
	}
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = time.Now()
	}
	_, err := s.db.Exec(`
		INSERT INTO profiles (id, display_name, subscription_status, scan_limit_daily, consult_limit_daily, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			display_name = excluded.display_name,
			subscription_status = excluded.subscription_status,
			scan_limit_daily = excluded.scan_limit_daily,
			consult_limit_daily = excluded.consult_limit_daily,
			updated_at = excluded.updated_at`,
		p.ID, p.DisplayName, p.SubscriptionStatus, nullInt(p.ScanLimitDaily), nullInt(p.ConsultLimitDaily), formatTime(p.UpdatedAt),
	)
	return err
}

func nullInt(v int) sql.NullInt64 {
	return sql.NullInt64{Int64: int64(v), Valid: v > 0}
}
