// Package quota enforces per-user daily allowances for billable actions.
package quota

import (
	"errors"
	"fmt"
	"time"

	"github.com/kalambet/sillage/internal/profile"
	"github.com/kalambet/sillage/internal/storage"
)

// Action is a billable action type, as recorded in usage logs.
type Action string

const (
	ActionScan    Action = "scan"
	ActionConsult Action = "expert_consult"
)

// Actions lists every gated action.
var Actions = []Action{ActionScan, ActionConsult}

// ErrQuotaExceeded is wrapped by DeniedError.
var ErrQuotaExceeded = errors.New("daily quota exceeded")

// DeniedError reports a gate denial.
type DeniedError struct {
	Action Action
	Reason string
	Used   int
	Limit  int
}

func (e *DeniedError) Error() string { return e.Reason }

func (e *DeniedError) Unwrap() error { return ErrQuotaExceeded }

// Decision is the outcome of a quota check.
type Decision struct {
	Action  Action       `json:"action"`
	Allowed bool         `json:"allowed"`
	Reason  string       `json:"reason,omitempty"`
	Tier    profile.Tier `json:"tier"`
	Used    int          `json:"used"`
	Limit   int          `json:"limit"` // 0 for unlimited tiers
}

// Limits are the free-tier defaults per action.
type Limits struct {
	ScanDaily    int
	ConsultDaily int
}

// DefaultLimits mirrors the shipped configuration.
var DefaultLimits = Limits{ScanDaily: 3, ConsultDaily: 1}

// Profiles resolves a user's subscription profile.
type Profiles interface {
	Get(userID string) (profile.Profile, error)
}

// UsageStore counts and records usage rows. Implemented by storage.Store.
type UsageStore interface {
	CountUsageSince(userID, action string, since time.Time) (int, error)
	LogUsage(userID, action string, at time.Time) (storage.UsageLog, error)
	LogUsageIfUnder(userID, action string, limit int, since, at time.Time) (storage.UsageLog, error)
}

// Clock abstracts time.Now for testing.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Gate checks and records daily usage.
type Gate struct {
	profiles Profiles
	usage    UsageStore
	limits   Limits
	clock    Clock
}

// NewGate creates a Gate. A nil clock uses the wall clock.
func NewGate(profiles Profiles, usage UsageStore, limits Limits, clock Clock) *Gate {
	if clock == nil {
		clock = realClock{}
	}
	return &Gate{profiles: profiles, usage: usage, limits: limits, clock: clock}
}

// StartOfDay returns midnight UTC of t's day.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Check reports whether userID may perform action now. It is advisory: the
// authoritative check happens in Record for free-tier users.
func (g *Gate) Check(userID string, action Action) (Decision, error) {
	p, err := g.profiles.Get(userID)
	if err != nil {
		return Decision{}, fmt.Errorf("quota: %w", err)
	}

	d := Decision{Action: action, Allowed: true, Tier: p.Tier}
	used, err := g.usage.CountUsageSince(userID, string(action), StartOfDay(g.clock.Now()))
	if err != nil {
		return Decision{}, fmt.Errorf("quota: counting %s usage: %w", action, err)
	}
	d.Used = used

	if p.IsPro() {
		return d, nil
	}

	d.Limit = g.limitFor(p, action)
	if used >= d.Limit {
		d.Allowed = false
		d.Reason = fmt.Sprintf("daily %s limit reached (%d/%d)", action, used, d.Limit)
	}
	return d, nil
}

// Require is Check that turns a denial into a *DeniedError.
func (g *Gate) Require(userID string, action Action) (Decision, error) {
	d, err := g.Check(userID, action)
	if err != nil {
		return d, err
	}
	if !d.Allowed {
		return d, &DeniedError{Action: action, Reason: d.Reason, Used: d.Used, Limit: d.Limit}
	}
	return d, nil
}

// Record logs one action for userID. For free-tier users the insert is
// conditional on the count still being under the limit, so concurrent
// requests cannot push the day's total past it.
func (g *Gate) Record(userID string, action Action) error {
	p, err := g.profiles.Get(userID)
	if err != nil {
		return fmt.Errorf("quota: %w", err)
	}

	now := g.clock.Now()
	if p.IsPro() {
		_, err := g.usage.LogUsage(userID, string(action), now)
		return err
	}

	limit := g.limitFor(p, action)
	_, err = g.usage.LogUsageIfUnder(userID, string(action), limit, StartOfDay(now), now)
	if errors.Is(err, storage.ErrLimitReached) {
		return &DeniedError{
			Action: action,
			Reason: fmt.Sprintf("daily %s limit reached (%d/%d)", action, limit, limit),
			Used:   limit,
			Limit:  limit,
		}
	}
	return err
}

// Summary returns a decision for every gated action.
func (g *Gate) Summary(userID string) ([]Decision, error) {
	out := make([]Decision, 0, len(Actions))
	for _, a := range Actions {
		d, err := g.Check(userID, a)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}

func (g *Gate) limitFor(p profile.Profile, action Action) int {
	switch action {
	case ActionScan:
		if p.ScanLimitDaily > 0 {
			return p.ScanLimitDaily
		}
		return g.limits.ScanDaily
	case ActionConsult:
		if p.ConsultLimitDaily > 0 {
			return p.ConsultLimitDaily
		}
		return g.limits.ConsultDaily
	}
	return 0
}
