package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Repository mutates the aggregate with relative updates only. Callers pass
// the transaction they are already in.
type Repository interface {
	Ensure(ctx context.Context, db *gorm.DB, beneficiaryID snowflake.ID, now time.Time) error
	FindByBeneficiary(ctx context.Context, db *gorm.DB, beneficiaryID snowflake.ID, forUpdate bool) (*Statistics, error)
	IncrementClicks(ctx context.Context, db *gorm.DB, beneficiaryID snowflake.ID, now time.Time) error
	IncrementSignups(ctx context.Context, db *gorm.DB, beneficiaryID snowflake.ID, now time.Time) error
	ApplyAward(ctx context.Context, db *gorm.DB, beneficiaryID snowflake.ID, delta AwardDelta, now time.Time) error
	ApplyClaim(ctx context.Context, db *gorm.DB, beneficiaryID snowflake.ID, minutes, creditCents int64, now time.Time) error
}
