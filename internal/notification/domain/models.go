package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

type Status string

const (
	StatusPending Status = "pending"
	StatusSent    Status = "sent"
	StatusFailed  Status = "failed"
)

const EventRewardAwarded = "reward.awarded"

// Notification is an outbox row written in the same transaction as the award
// it announces. Delivery happens afterwards and may be retried.
type Notification struct {
	ID            snowflake.ID   `gorm:"primaryKey;autoIncrement:false" json:"id"`
	LedgerEntryID snowflake.ID   `gorm:"not null;uniqueIndex:ux_reward_notifications_entry" json:"ledger_entry_id"`
	BeneficiaryID snowflake.ID   `gorm:"not null" json:"beneficiary_id"`
	DedupeKey     string         `gorm:"not null;size:32" json:"dedupe_key"`
	Payload       datatypes.JSON `json:"payload"`
	Status        Status         `gorm:"not null;size:16;index:ix_reward_notifications_due,priority:1" json:"status"`
	Attempts      int            `gorm:"not null;default:0" json:"attempts"`
	LastError     string         `gorm:"not null;default:''" json:"last_error,omitempty"`
	NextAttemptAt time.Time      `gorm:"not null;index:ix_reward_notifications_due,priority:2" json:"next_attempt_at"`
	SentAt        *time.Time     `json:"sent_at,omitempty"`
	CreatedAt     time.Time      `gorm:"not null" json:"created_at"`
	UpdatedAt     time.Time      `gorm:"not null" json:"updated_at"`
}

func (Notification) TableName() string {
	return "reward_notifications"
}

// RewardAwarded is the message delivered to every channel.
type RewardAwarded struct {
	Event             string     `json:"event"`
	DedupeKey         string     `json:"dedupe_key"`
	LedgerEntryID     string     `json:"ledger_entry_id"`
	ReferralID        string     `json:"referral_id"`
	BeneficiaryID     string     `json:"beneficiary_id"`
	TierLevel         int        `json:"tier_level"`
	TierName          string     `json:"tier_name"`
	RewardMinutes     int64      `json:"reward_minutes"`
	RewardCreditCents int64      `json:"reward_credit_cents"`
	AwardedAt         time.Time  `json:"awarded_at"`
	ExpiresAt         *time.Time `json:"expires_at,omitempty"`
}
