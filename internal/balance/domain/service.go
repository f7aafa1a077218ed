package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Crediter adds to an account balance inside the caller's transaction, so the
// credit commits or rolls back together with whatever earned it.
type Crediter interface {
	Credit(ctx context.Context, tx *gorm.DB, req CreditRequest) (Credit, error)
}

type Service interface {
	Crediter
	Get(ctx context.Context, accountID snowflake.ID) (AccountBalance, error)
	ListCredits(ctx context.Context, accountID snowflake.ID, limit int) ([]Credit, error)
}

var (
	ErrInvalidAccount   = errors.New("invalid_account")
	ErrInvalidAmount    = errors.New("invalid_amount")
	ErrInvalidReference = errors.New("invalid_reference")
	ErrDuplicateCredit  = errors.New("duplicate_credit")
)
