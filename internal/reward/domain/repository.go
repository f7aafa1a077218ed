package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	// InsertIgnore writes entry unless its referral already has one, and
	// reports whether a row was written.
	InsertIgnore(ctx context.Context, db *gorm.DB, entry *LedgerEntry) (bool, error)
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID, forUpdate bool) (*LedgerEntry, error)
	FindByReferral(ctx context.Context, db *gorm.DB, referralID snowflake.ID) (*LedgerEntry, error)
	ListUnclaimed(ctx context.Context, db *gorm.DB, beneficiaryID snowflake.ID) ([]*LedgerEntry, error)
	ListClaimable(ctx context.Context, db *gorm.DB, beneficiaryID snowflake.ID, now time.Time, forUpdate bool) ([]*LedgerEntry, error)
	// MarkClaimed flips an unclaimed, unexpired entry and reports whether it did.
	MarkClaimed(ctx context.Context, db *gorm.DB, id snowflake.ID, now time.Time) (bool, error)
	SummarizeClaimed(ctx context.Context, db *gorm.DB, beneficiaryID snowflake.ID) (ClaimedSummary, error)
	CountByBeneficiary(ctx context.Context, db *gorm.DB, beneficiaryID snowflake.ID) (int64, error)
}
