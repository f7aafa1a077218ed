package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/referral/pkg/db/pagination"
)

type ListResponse struct {
	pagination.PageInfo
	Referrals []Referral `json:"referrals"`
}

// Service drives referrals through the funnel.
type Service interface {
	Create(ctx context.Context, req CreateRequest) (Referral, error)
	Get(ctx context.Context, id snowflake.ID) (Referral, error)
	List(ctx context.Context, req ListRequest) (ListResponse, error)
	RecordClick(ctx context.Context, code string) (ClickResult, error)
	RecordSignup(ctx context.Context, req SignupRequest) (Referral, error)
	Expire(ctx context.Context, id snowflake.ID) (Referral, error)
	Cancel(ctx context.Context, id snowflake.ID) (Referral, error)
	// ExpireStale expires up to limit pre-signup referrals older than the signup deadline.
	ExpireStale(ctx context.Context, limit int) (int, error)
}

var (
	ErrNotFound          = errors.New("not_found")
	ErrInvalidID         = errors.New("invalid_id")
	ErrInvalidCode       = errors.New("invalid_code")
	ErrInvalidIdentity   = errors.New("invalid_referred_identity")
	ErrInvalidReferrer   = errors.New("invalid_referrer")
	ErrInvalidStatus     = errors.New("invalid_status")
	ErrAlreadyReferred   = errors.New("already_referred")
	ErrReferralClosed    = errors.New("referral_closed")
	ErrInvalidTransition = errors.New("invalid_transition")
	ErrCodeExhausted     = errors.New("referral_code_exhausted")
)
