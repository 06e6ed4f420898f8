package storage

import (
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrDuplicate is returned when an insert collides with a unique key.
	ErrDuplicate = errors.New("duplicate record")
	// ErrLimitReached is returned by LogUsageIfUnder when the count is at the limit.
	ErrLimitReached = errors.New("usage limit reached")
)

// Profile is a user's subscription state. Zero limits mean "use the
// configured default".
type Profile struct {
	ID                 string
	DisplayName        string
	SubscriptionStatus string // "free" or "pro"
	ScanLimitDaily     int
	ConsultLimitDaily  int
	UpdatedAt          time.Time
}

// UsageLog is one billable action. Append-only.
type UsageLog struct {
	ID         string
	UserID     string
	ActionType string
	CreatedAt  time.Time
}

type CollectionItem struct {
	ID        string
	UserID    string
	PhotoURL  string
	AIData    string // JSON object stored as text
	CreatedAt time.Time
	UpdatedAt time.Time
}

type WishlistEntry struct {
	ID          string
	UserID      string
	Brand       string
	PerfumeName string
	AIData      string // optional JSON snapshot
	CreatedAt   time.Time
}

// MasterPerfume is the shared catalog row keyed by (Brand, Name).
type MasterPerfume struct {
	Brand       string
	Name        string
	Description string
	Notes       string // JSON
	Usage       string // JSON
	ImageURL    string
	FullAIData  string // JSON
	UpdatedAt   time.Time
}

type Job struct {
	ID          string
	Type        string
	PayloadJSON string
	Status      string // "pending", "running", "completed", "failed"
	Attempts    int
	MaxAttempts int
	RunAfter    time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
	LastError   string
}
