package profile

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/kalambet/sillage/internal/storage"
)

// ProfileStore defines the storage operations the Manager needs.
// Implemented by storage.Store.
type ProfileStore interface {
	GetProfile(id string) (storage.Profile, error)
	UpsertProfile(p storage.Profile) error
}

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

type cacheEntry struct {
	profile  Profile
	cachedAt time.Time
}

// Manager provides cached access to per-user subscription profiles.
type Manager struct {
	store ProfileStore
	clock Clock
	ttl   time.Duration

	mu    sync.RWMutex
	cache map[string]cacheEntry
}

// NewManager creates a Manager with a 60-second cache TTL.
func NewManager(store ProfileStore) *Manager {
	return NewManagerWithClock(store, realClock{}, 60*time.Second)
}

// NewManagerWithClock creates a Manager with a custom clock (for testing).
func NewManagerWithClock(store ProfileStore, clock Clock, ttl time.Duration) *Manager {
	return &Manager{
		store: store,
		clock: clock,
		ttl:   ttl,
		cache: make(map[string]cacheEntry),
	}
}

// Get returns userID's profile. Users without a stored profile get a free
// tier profile with Exists false.
func (m *Manager) Get(userID string) (Profile, error) {
	if userID == "" {
		return Profile{}, errors.New("profile: empty user id")
	}

	m.mu.RLock()
	if e, ok := m.cache[userID]; ok && m.fresh(e) {
		m.mu.RUnlock()
		return e.profile, nil
	}
	m.mu.RUnlock()

	m.mu.Lock()
	defer m.mu.Unlock()

	// Double-check after acquiring write lock.
	if e, ok := m.cache[userID]; ok && m.fresh(e) {
		return e.profile, nil
	}

	row, err := m.store.GetProfile(userID)
	var p Profile
	switch {
	case errors.Is(err, storage.ErrNotFound):
		p = Profile{UserID: userID, Tier: TierFree}
	case err != nil:
		return Profile{}, fmt.Errorf("loading profile %s: %w", userID, err)
	default:
		p = fromRow(row)
	}

	m.cache[userID] = cacheEntry{profile: p, cachedAt: m.clock.Now()}
	return p, nil
}

// Update applies patch to userID's profile, creating it when missing, and
// invalidates the cached copy.
func (m *Manager) Update(userID string, patch Patch) (Profile, error) {
	if userID == "" {
		return Profile{}, errors.New("profile: empty user id")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	row, err := m.store.GetProfile(userID)
	if errors.Is(err, storage.ErrNotFound) {
		row = storage.Profile{ID: userID, SubscriptionStatus: string(TierFree)}
	} else if err != nil {
		return Profile{}, fmt.Errorf("loading profile %s: %w", userID, err)
	}

	if patch.DisplayName != nil {
		row.DisplayName = *patch.DisplayName
	}
	if patch.Tier != nil {
		if *patch.Tier != TierFree && *patch.Tier != TierPro {
			return Profile{}, fmt.Errorf("%w: unknown tier %q", ErrInvalidPatch, *patch.Tier)
		}
		row.SubscriptionStatus = string(*patch.Tier)
	}
	if patch.ScanLimitDaily != nil {
		if *patch.ScanLimitDaily < 0 {
			return Profile{}, fmt.Errorf("%w: scan limit must not be negative", ErrInvalidPatch)
		}
		row.ScanLimitDaily = *patch.ScanLimitDaily
	}
	if patch.ConsultLimitDaily != nil {
		if *patch.ConsultLimitDaily < 0 {
			return Profile{}, fmt.Errorf("%w: consult limit must not be negative", ErrInvalidPatch)
		}
		row.ConsultLimitDaily = *patch.ConsultLimitDaily
	}
	row.UpdatedAt = m.clock.Now()

	if err := m.store.UpsertProfile(row); err != nil {
		return Profile{}, fmt.Errorf("saving profile %s: %w", userID, err)
	}

	delete(m.cache, userID)
	return fromRow(row), nil
}

// Invalidate drops userID's cached profile.
func (m *Manager) Invalidate(userID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.cache, userID)
}

func (m *Manager) fresh(e cacheEntry) bool {
	return m.clock.Now().Before(e.cachedAt.Add(m.ttl))
}

func fromRow(row storage.Profile) Profile {
	return Profile{
		UserID:            row.ID,
		DisplayName:       row.DisplayName,
		Tier:              ParseTier(row.SubscriptionStatus),
		ScanLimitDaily:    row.ScanLimitDaily,
		ConsultLimitDaily: row.ConsultLimitDaily,
		Exists:            true,
		UpdatedAt:         row.UpdatedAt,
	}
}
