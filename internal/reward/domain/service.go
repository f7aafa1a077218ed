package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

// Service turns activations into ledger entries, exactly once per referral.
type Service interface {
	Activate(ctx context.Context, referralID snowflake.ID) (Outcome, error)
	ActivateByIdentity(ctx context.Context, identity string) (Outcome, error)
	ActivateByParty(ctx context.Context, partyID snowflake.ID) (Outcome, error)
	ListRewards(ctx context.Context, beneficiaryID snowflake.ID) (RewardsView, error)
}

var (
	ErrNotFound           = errors.New("not_found")
	ErrInvalidID          = errors.New("invalid_id")
	ErrInvalidIdentity    = errors.New("invalid_referred_identity")
	ErrInvalidBeneficiary = errors.New("invalid_beneficiary")
	ErrReferralExpired    = errors.New("referral_expired")
	ErrNotActivatable     = errors.New("referral_not_activatable")
	ErrNoPendingReferral  = errors.New("no_pending_referral")
	ErrLedgerInconsistent = errors.New("ledger_inconsistent")
)
