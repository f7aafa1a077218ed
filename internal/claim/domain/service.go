package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

type Service interface {
	ClaimOne(ctx context.Context, entryID, beneficiaryID snowflake.ID) (Result, error)
	ClaimAll(ctx context.Context, beneficiaryID snowflake.ID) (Result, error)
}

var (
	ErrNotFound           = errors.New("not_found")
	ErrInvalidID          = errors.New("invalid_id")
	ErrInvalidBeneficiary = errors.New("invalid_beneficiary")
	ErrAlreadyClaimed     = errors.New("already_claimed")
	ErrExpired            = errors.New("reward_expired")
)
