package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// LedgerEntry is the single reward earned by one referral. referral_id is
// unique in the store, so a referral can never be rewarded twice.
type LedgerEntry struct {
	ID                snowflake.ID `gorm:"primaryKey;autoIncrement:false" json:"id"`
	ReferralID        snowflake.ID `gorm:"not null;uniqueIndex:ux_reward_ledger_referral" json:"referral_id"`
	BeneficiaryID     snowflake.ID `gorm:"not null;index:ix_reward_ledger_beneficiary,priority:1" json:"beneficiary_id"`
	RewardMinutes     int64        `gorm:"not null" json:"reward_minutes"`
	RewardCreditCents int64        `gorm:"not null" json:"reward_credit_cents"`
	TierLevel         int          `gorm:"not null" json:"tier_level"`
	TierName          string       `gorm:"not null;size:64" json:"tier_name"`
	AwardedAt         time.Time    `gorm:"not null" json:"awarded_at"`
	ExpiresAt         *time.Time   `gorm:"index:ix_reward_ledger_beneficiary,priority:3" json:"expires_at,omitempty"`
	Claimed           bool         `gorm:"not null;index:ix_reward_ledger_beneficiary,priority:2" json:"claimed"`
	ClaimedAt         *time.Time   `json:"claimed_at,omitempty"`
}

func (LedgerEntry) TableName() string {
	return "reward_ledger_entries"
}

// Expired reports whether the claim window has closed at now. The entry is
// still claimable at expires_at itself.
func (e LedgerEntry) Expired(now time.Time) bool {
	return e.ExpiresAt != nil && now.After(*e.ExpiresAt)
}

func (e LedgerEntry) Claimable(now time.Time) bool {
	return !e.Claimed && !e.Expired(now)
}

// Outcome is the result of an activation. Created is false when the referral
// had already been rewarded and Entry is the existing ledger row.
type Outcome struct {
	Entry          LedgerEntry  `json:"entry"`
	Created        bool         `json:"created"`
	ReferralID     snowflake.ID `json:"referral_id"`
	ReferralStatus string       `json:"referral_status"`
}

type ClaimedSummary struct {
	Count         int64      `json:"count"`
	Minutes       int64      `json:"minutes"`
	CreditCents   int64      `json:"credit_cents"`
	LastClaimedAt *time.Time `json:"last_claimed_at,omitempty"`
}

type RewardsView struct {
	Active  []LedgerEntry  `json:"active"`
	Expired []LedgerEntry  `json:"expired"`
	Claimed ClaimedSummary `json:"claimed"`
}
