package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

type Service interface {
	Get(ctx context.Context, beneficiaryID snowflake.ID) (Summary, error)
	// Invalidate drops any cached summary after a committed mutation.
	Invalidate(ctx context.Context, beneficiaryID snowflake.ID)
}

var (
	ErrInvalidBeneficiary = errors.New("invalid_beneficiary")
)
