package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	tierdomain "github.com/smallbiznis/referral/internal/tier/domain"
)

// Statistics is the per-beneficiary aggregate. Totals only grow; the
// available balances shrink on claim and never go below zero.
type Statistics struct {
	BeneficiaryID        snowflake.ID `gorm:"primaryKey;autoIncrement:false" json:"beneficiary_id"`
	TotalClicks          int64        `gorm:"not null;default:0" json:"total_clicks"`
	TotalSignups         int64        `gorm:"not null;default:0" json:"total_signups"`
	TotalActive          int64        `gorm:"not null;default:0" json:"total_active"`
	TotalRewardsEarned   int64        `gorm:"not null;default:0" json:"total_rewards_earned"`
	AvailableMinutes     int64        `gorm:"not null;default:0" json:"available_minutes"`
	AvailableCreditCents int64        `gorm:"not null;default:0" json:"available_credit_cents"`
	CurrentTier          string       `gorm:"not null;default:''" json:"current_tier"`
	CurrentTierLevel     int          `gorm:"not null;default:0" json:"current_tier_level"`
	UpdatedAt            time.Time    `gorm:"not null" json:"updated_at"`
}

func (Statistics) TableName() string {
	return "referral_statistics"
}

// AwardDelta is what one ledger entry adds to the aggregate.
type AwardDelta struct {
	Minutes     int64
	CreditCents int64
	Tier        tierdomain.Definition
}

// Summary is the read model served to beneficiaries.
type Summary struct {
	Statistics Statistics          `json:"statistics"`
	Progress   tierdomain.Progress `json:"progress"`
}
