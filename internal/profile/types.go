package profile

import (
	"errors"
	"time"
)

// ErrInvalidPatch is wrapped by Update for rejected field values.
var ErrInvalidPatch = errors.New("profile: invalid patch")

// Tier is a subscription level.
type Tier string

const (
	TierFree Tier = "free"
	TierPro  Tier = "pro"
)

// ParseTier maps a stored subscription status to a Tier. Anything other than
// "pro" is the free tier.
func ParseTier(s string) Tier {
	if Tier(s) == TierPro {
		return TierPro
	}
	return TierFree
}

// Profile is a user's subscription view. Zero limits defer to the configured
// defaults.
type Profile struct {
	UserID            string    `json:"user_id"`
	DisplayName       string    `json:"display_name,omitempty"`
	Tier              Tier      `json:"tier"`
	ScanLimitDaily    int       `json:"scan_limit_daily,omitempty"`
	ConsultLimitDaily int       `json:"consult_limit_daily,omitempty"`
	Exists            bool      `json:"exists"`
	UpdatedAt         time.Time `json:"updated_at,omitempty"`
}

// IsPro reports whether the user has an unlimited subscription.
func (p Profile) IsPro() bool { return p.Tier == TierPro }

// Patch is a partial profile update. Nil fields are left unchanged.
type Patch struct {
	DisplayName       *string `json:"display_name,omitempty"`
	Tier              *Tier   `json:"tier,omitempty"`
	ScanLimitDaily    *int    `json:"scan_limit_daily,omitempty"`
	ConsultLimitDaily *int    `json:"consult_limit_daily,omitempty"`
}
