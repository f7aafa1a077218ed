package service

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/oklog/ulid/v2"
	balancedomain "github.com/smallbiznis/referral/internal/balance/domain"
	"github.com/smallbiznis/referral/internal/claim/domain"
	"github.com/smallbiznis/referral/internal/clock"
	"github.com/smallbiznis/referral/internal/config"
	"github.com/smallbiznis/referral/internal/observability/metrics"
	rewarddomain "github.com/smallbiznis/referral/internal/reward/domain"
	statsdomain "github.com/smallbiznis/referral/internal/stats/domain"
	dbutil "github.com/smallbiznis/referral/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	Config    config.Config
	Clock     clock.Clock
	Ledger    rewarddomain.Repository
	StatsRepo statsdomain.Repository
	Stats     statsdomain.Service
	Crediter  balancedomain.Crediter
	Metrics   *metrics.ReferralMetrics `optional:"true"`
}

type Service struct {
	db        *gorm.DB
	log       *zap.Logger
	cfg       config.ReferralConfig
	clock     clock.Clock
	ledger    rewarddomain.Repository
	statsRepo statsdomain.Repository
	stats     statsdomain.Service
	crediter  balancedomain.Crediter
	metrics   *metrics.ReferralMetrics
}

func New(p Params) domain.Service {
	return &Service{
		db:        p.DB,
		log:       p.Log.Named("claim.service"),
		cfg:       p.Config.Referral,
		clock:     p.Clock,
		ledger:    p.Ledger,
		statsRepo: p.StatsRepo,
		stats:     p.Stats,
		crediter:  p.Crediter,
		metrics:   p.Metrics,
	}
}

func (s *Service) ClaimOne(ctx context.Context, entryID, beneficiaryID snowflake.ID) (domain.Result, error) {
	if entryID == 0 {
		return domain.Result{}, domain.ErrInvalidID
	}
	if beneficiaryID == 0 {
		return domain.Result{}, domain.ErrInvalidBeneficiary
	}

	txCtx, cancel := s.txContext(ctx)
	defer cancel()

	var result domain.Result
	err := s.db.WithContext(txCtx).Transaction(func(tx *gorm.DB) error {
		entry, err := s.ledger.FindByID(txCtx, tx, entryID, true)
		if err != nil {
			return err
		}
		// someone else's entry is indistinguishable from a missing one
		if entry == nil || entry.BeneficiaryID != beneficiaryID {
			return domain.ErrNotFound
		}
		if entry.Claimed {
			return domain.ErrAlreadyClaimed
		}

		now := s.clock.Now()
		if entry.Expired(now) {
			return domain.ErrExpired
		}

		applied, err := s.ledger.MarkClaimed(txCtx, tx, entry.ID, now)
		if err != nil {
			return err
		}
		if !applied {
			return domain.ErrAlreadyClaimed
		}

		if err := s.statsRepo.ApplyClaim(txCtx, tx, beneficiaryID, entry.RewardMinutes, entry.RewardCreditCents, now); err != nil {
			return err
		}

		reference := entry.ID.String()
		if entry.RewardMinutes > 0 || entry.RewardCreditCents > 0 {
			if _, err := s.crediter.Credit(txCtx, tx, balancedomain.CreditRequest{
				AccountID:   beneficiaryID,
				Source:      balancedomain.SourceClaimOne,
				ReferenceID: reference,
				Minutes:     entry.RewardMinutes,
				CreditCents: entry.RewardCreditCents,
			}); err != nil {
				return err
			}
		}

		result = domain.Result{
			Mode:            domain.ModeOne,
			EntryIDs:        []snowflake.ID{entry.ID},
			Count:           1,
			Minutes:         entry.RewardMinutes,
			CreditCents:     entry.RewardCreditCents,
			ClaimedAt:       &now,
			CreditReference: reference,
		}
		return nil
	})
	if err != nil {
		s.metrics.ObserveClaim(metrics.ClaimModeOne, claimResultLabel(err), 0, 0)
		return domain.Result{}, dbutil.WrapTransient(err)
	}

	s.stats.Invalidate(ctx, beneficiaryID)
	s.metrics.ObserveClaim(metrics.ClaimModeOne, "claimed", result.Minutes, result.CreditCents)
	return result, nil
}

func (s *Service) ClaimAll(ctx context.Context, beneficiaryID snowflake.ID) (domain.Result, error) {
	if beneficiaryID == 0 {
		return domain.Result{}, domain.ErrInvalidBeneficiary
	}

	txCtx, cancel := s.txContext(ctx)
	defer cancel()

	result := domain.Result{Mode: domain.ModeAll, EntryIDs: []snowflake.ID{}}
	err := s.db.WithContext(txCtx).Transaction(func(tx *gorm.DB) error {
		now := s.clock.Now()
		entries, err := s.ledger.ListClaimable(txCtx, tx, beneficiaryID, now, true)
		if err != nil {
			return err
		}

		for _, entry := range entries {
			applied, err := s.ledger.MarkClaimed(txCtx, tx, entry.ID, now)
			if err != nil {
				return err
			}
			if !applied {
				continue
			}
			result.EntryIDs = append(result.EntryIDs, entry.ID)
			result.Minutes += entry.RewardMinutes
			result.CreditCents += entry.RewardCreditCents
		}
		result.Count = len(result.EntryIDs)
		if result.Count == 0 {
			return nil
		}
		result.ClaimedAt = &now

		if err := s.statsRepo.ApplyClaim(txCtx, tx, beneficiaryID, result.Minutes, result.CreditCents, now); err != nil {
			return err
		}

		if result.Minutes > 0 || result.CreditCents > 0 {
			result.CreditReference = ulid.Make().String()
			if _, err := s.crediter.Credit(txCtx, tx, balancedomain.CreditRequest{
				AccountID:   beneficiaryID,
				Source:      balancedomain.SourceClaimAll,
				ReferenceID: result.CreditReference,
				Minutes:     result.Minutes,
				CreditCents: result.CreditCents,
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		s.metrics.ObserveClaim(metrics.ClaimModeAll, claimResultLabel(err), 0, 0)
		return domain.Result{}, dbutil.WrapTransient(err)
	}

	if result.Count == 0 {
		s.metrics.ObserveClaim(metrics.ClaimModeAll, "empty", 0, 0)
		return result, nil
	}

	s.stats.Invalidate(ctx, beneficiaryID)
	s.metrics.ObserveClaim(metrics.ClaimModeAll, "claimed", result.Minutes, result.CreditCents)
	s.log.Info("rewards claimed",
		zap.String("beneficiary_id", beneficiaryID.String()),
		zap.Int("count", result.Count),
		zap.Int64("minutes", result.Minutes),
		zap.Int64("credit_cents", result.CreditCents),
	)
	return result, nil
}

func (s *Service) txContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.cfg.TxTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.cfg.TxTimeout)
}

func claimResultLabel(err error) string {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrAlreadyClaimed):
		return "already_claimed"
	case errors.Is(err, domain.ErrExpired):
		return "expired"
	case dbutil.IsTransient(err):
		return "transient"
	default:
		return "error"
	}
}
