package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	InsertCredit(ctx context.Context, db *gorm.DB, credit *Credit) error
	AddToBalance(ctx context.Context, db *gorm.DB, accountID snowflake.ID, minutes, creditCents int64, now time.Time) error
	FindBalance(ctx context.Context, db *gorm.DB, accountID snowflake.ID) (*AccountBalance, error)
	ListCredits(ctx context.Context, db *gorm.DB, accountID snowflake.ID, limit int) ([]Credit, error)
}
