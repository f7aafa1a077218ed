package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/referral/pkg/db/pagination"
	"gorm.io/gorm"
)

// Repository persists referrals. Every state change is a conditional update
// on the expected current status and reports whether it applied.
type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, referral *Referral) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID, forUpdate bool) (*Referral, error)
	FindByCode(ctx context.Context, db *gorm.DB, code string, forUpdate bool) (*Referral, error)
	FindByIdentity(ctx context.Context, db *gorm.DB, productContext, identity string, forUpdate bool) (*Referral, error)
	FindByParty(ctx context.Context, db *gorm.DB, partyID snowflake.ID, forUpdate bool) (*Referral, error)
	List(ctx context.Context, db *gorm.DB, referrerID snowflake.ID, filter ListFilter, page pagination.Pagination) ([]*Referral, error)
	ListStale(ctx context.Context, db *gorm.DB, createdBefore time.Time, limit int) ([]*Referral, error)

	ApplyClick(ctx context.Context, db *gorm.DB, id snowflake.ID, from, to Status, now time.Time) (bool, error)
	MarkSignedUp(ctx context.Context, db *gorm.DB, id snowflake.ID, from Status, partyID *snowflake.ID, now time.Time) (bool, error)
	Transition(ctx context.Context, db *gorm.DB, id snowflake.ID, from, to Status, now time.Time) (bool, error)
}
