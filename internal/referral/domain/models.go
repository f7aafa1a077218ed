package domain

import (
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

type Referral struct {
	ID               snowflake.ID      `gorm:"primaryKey;autoIncrement:false" json:"id"`
	ReferrerID       snowflake.ID      `gorm:"not null;index:ix_referrals_referrer" json:"referrer_id"`
	ProductContext   string            `gorm:"not null;size:128;uniqueIndex:ux_referrals_context_identity" json:"product_context"`
	ReferredIdentity string            `gorm:"not null;size:255;uniqueIndex:ux_referrals_context_identity" json:"referred_identity"`
	ReferralCode     string            `gorm:"not null;size:16;uniqueIndex:ux_referrals_code" json:"referral_code"`
	Status           Status            `gorm:"not null;size:16;index:ix_referrals_stale,priority:1" json:"status"`
	ClickedCount     int64             `gorm:"not null;default:0" json:"clicked_count"`
	ReferredPartyID  *snowflake.ID     `gorm:"index" json:"referred_party_id,omitempty"`
	Metadata         datatypes.JSONMap `json:"metadata,omitempty"`
	CreatedAt        time.Time         `gorm:"not null;index:ix_referrals_stale,priority:2" json:"created_at"`
	UpdatedAt        time.Time         `gorm:"not null" json:"updated_at"`
	LastClickedAt    *time.Time        `json:"last_clicked_at,omitempty"`
	SignupAt         *time.Time        `json:"signup_at,omitempty"`
	ActivatedAt      *time.Time        `json:"activated_at,omitempty"`
	RewardedAt       *time.Time        `json:"rewarded_at,omitempty"`
	ExpiredAt        *time.Time        `json:"expired_at,omitempty"`
	CancelledAt      *time.Time        `json:"cancelled_at,omitempty"`
}

func (Referral) TableName() string {
	return "referrals"
}

// LatestMilestone is the most recent lifecycle timestamp on the referral.
// New milestones are never stamped earlier than this.
func (r Referral) LatestMilestone() time.Time {
	latest := r.CreatedAt
	for _, ts := range []*time.Time{r.LastClickedAt, r.SignupAt, r.ActivatedAt, r.RewardedAt, r.ExpiredAt, r.CancelledAt} {
		if ts != nil && ts.After(latest) {
			latest = *ts
		}
	}
	return latest
}

// NotBefore clamps now so milestones stay ordered when clocks drift between replicas.
func NotBefore(now, floor time.Time) time.Time {
	if now.Before(floor) {
		return floor
	}
	return now
}

// NormalizeCode canonicalizes a user-supplied referral code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// NormalizeIdentity canonicalizes a referred identity (email, phone, handle).
func NormalizeIdentity(identity string) string {
	return strings.ToLower(strings.TrimSpace(identity))
}

type ClickResult struct {
	Recorded bool      `json:"recorded"`
	Referral *Referral `json:"-"`
}

type CreateRequest struct {
	ReferrerID       snowflake.ID
	ReferredIdentity string
	Metadata         map[string]any
}

type SignupRequest struct {
	Code             string
	ReferredIdentity string
	ReferredPartyID  *snowflake.ID
}

type ListRequest struct {
	ReferrerID snowflake.ID
	Status     Status
	PageToken  string
	PageSize   int
}

type ListFilter struct {
	Status Status
}
