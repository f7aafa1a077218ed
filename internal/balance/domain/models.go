package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

const (
	SourceClaimOne      = "claim_one"
	SourceClaimAll      = "claim_all"
	SourceReferredBonus = "referred_bonus"
)

type AccountBalance struct {
	AccountID   snowflake.ID `gorm:"primaryKey;autoIncrement:false" json:"account_id"`
	Minutes     int64        `gorm:"not null;default:0" json:"minutes"`
	CreditCents int64        `gorm:"not null;default:0" json:"credit_cents"`
	UpdatedAt   time.Time    `gorm:"not null" json:"updated_at"`
}

func (AccountBalance) TableName() string {
	return "account_balances"
}

// Credit is one immutable balance movement. (source, reference_id) is unique,
// which is what stops a claim from being credited twice.
type Credit struct {
	ID          snowflake.ID `gorm:"primaryKey;autoIncrement:false" json:"id"`
	AccountID   snowflake.ID `gorm:"not null;index:ix_balance_credits_account" json:"account_id"`
	Source      string       `gorm:"not null;size:32;uniqueIndex:ux_balance_credits_reference" json:"source"`
	ReferenceID string       `gorm:"not null;size:64;uniqueIndex:ux_balance_credits_reference" json:"reference_id"`
	Minutes     int64        `gorm:"not null;default:0" json:"minutes"`
	CreditCents int64        `gorm:"not null;default:0" json:"credit_cents"`
	CreatedAt   time.Time    `gorm:"not null" json:"created_at"`
}

func (Credit) TableName() string {
	return "balance_credits"
}

type CreditRequest struct {
	AccountID   snowflake.ID
	Source      string
	ReferenceID string
	Minutes     int64
	CreditCents int64
}
