package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/bwmarrin/snowflake"
	balancedomain "github.com/smallbiznis/referral/internal/balance/domain"
	"github.com/smallbiznis/referral/internal/clock"
	"github.com/smallbiznis/referral/internal/config"
	notificationdomain "github.com/smallbiznis/referral/internal/notification/domain"
	"github.com/smallbiznis/referral/internal/observability/metrics"
	referraldomain "github.com/smallbiznis/referral/internal/referral/domain"
	"github.com/smallbiznis/referral/internal/reward/domain"
	statsdomain "github.com/smallbiznis/referral/internal/stats/domain"
	tierdomain "github.com/smallbiznis/referral/internal/tier/domain"
	dbutil "github.com/smallbiznis/referral/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// errAwardRace rolls back a transaction that lost the insert race on referral_id.
var errAwardRace = errors.New("award_race")

type Params struct {
	fx.In

	DB           *gorm.DB
	Log          *zap.Logger
	Config       config.Config
	Clock        clock.Clock
	GenID        *snowflake.Node
	Repo         domain.Repository
	ReferralRepo referraldomain.Repository
	StatsRepo    statsdomain.Repository
	Stats        statsdomain.Service
	Tiers        tierdomain.Provider
	Crediter     balancedomain.Crediter
	Dispatcher   notificationdomain.Dispatcher
	Metrics      *metrics.ReferralMetrics `optional:"true"`
}

type Service struct {
	db           *gorm.DB
	log          *zap.Logger
	cfg          config.ReferralConfig
	clock        clock.Clock
	genID        *snowflake.Node
	repo         domain.Repository
	referralRepo referraldomain.Repository
	statsRepo    statsdomain.Repository
	stats        statsdomain.Service
	tiers        tierdomain.Provider
	crediter     balancedomain.Crediter
	dispatcher   notificationdomain.Dispatcher
	metrics      *metrics.ReferralMetrics
}

func New(p Params) domain.Service {
	return &Service{
		db:           p.DB,
		log:          p.Log.Named("reward.service"),
		cfg:          p.Config.Referral,
		clock:        p.Clock,
		genID:        p.GenID,
		repo:         p.Repo,
		referralRepo: p.ReferralRepo,
		statsRepo:    p.StatsRepo,
		stats:        p.Stats,
		tiers:        p.Tiers,
		crediter:     p.Crediter,
		dispatcher:   p.Dispatcher,
		metrics:      p.Metrics,
	}
}

type award struct {
	outcome        domain.Outcome
	notificationID snowflake.ID
}

func (s *Service) Activate(ctx context.Context, referralID snowflake.ID) (domain.Outcome, error) {
	if referralID == 0 {
		return domain.Outcome{}, domain.ErrInvalidID
	}

	result, err := s.activate(ctx, referralID)
	if errors.Is(err, errAwardRace) {
		// another activation won the unique key; report its entry
		return s.existingOutcome(ctx, referralID)
	}
	if err != nil {
		return domain.Outcome{}, dbutil.WrapTransient(err)
	}

	outcome := result.outcome
	if !outcome.Created {
		s.metrics.ObserveAward(outcome.Entry.TierName, metrics.AwardOutcomeExisting, 0)
		return outcome, nil
	}

	s.stats.Invalidate(ctx, outcome.Entry.BeneficiaryID)
	s.metrics.IncFunnelEvent(string(referraldomain.EventActivate))
	s.metrics.ObserveAward(outcome.Entry.TierName, metrics.AwardOutcomeCreated, outcome.Entry.RewardMinutes)
	if result.notificationID != 0 {
		s.dispatcher.Dispatch(ctx, result.notificationID)
	}

	s.log.Info("reward awarded",
		zap.String("referral_id", referralID.String()),
		zap.String("ledger_entry_id", outcome.Entry.ID.String()),
		zap.String("beneficiary_id", outcome.Entry.BeneficiaryID.String()),
		zap.String("tier", outcome.Entry.TierName),
		zap.Int64("reward_minutes", outcome.Entry.RewardMinutes),
	)
	return outcome, nil
}

func (s *Service) activate(ctx context.Context, referralID snowflake.ID) (award, error) {
	txCtx, cancel := s.txContext(ctx)
	defer cancel()

	var result award
	err := s.db.WithContext(txCtx).Transaction(func(tx *gorm.DB) error {
		referral, err := s.referralRepo.FindByID(txCtx, tx, referralID, true)
		if err != nil {
			return err
		}
		if referral == nil {
			return domain.ErrNotFound
		}

		switch referral.Status {
		case referraldomain.StatusActive, referraldomain.StatusRewarded:
			existing, err := s.repo.FindByReferral(txCtx, tx, referral.ID)
			if err != nil {
				return err
			}
			if existing != nil {
				result.outcome = domain.Outcome{
					Entry:          *existing,
					ReferralID:     referral.ID,
					ReferralStatus: string(referral.Status),
				}
				return nil
			}
			if referral.Status == referraldomain.StatusRewarded {
				return fmt.Errorf("%w: referral %s rewarded without entry", domain.ErrLedgerInconsistent, referral.ID)
			}
		case referraldomain.StatusSignedUp:
		case referraldomain.StatusExpired:
			return domain.ErrReferralExpired
		default:
			return domain.ErrNotActivatable
		}

		now := referraldomain.NotBefore(s.clock.Now(), referral.LatestMilestone())

		if referral.Status == referraldomain.StatusSignedUp {
			applied, err := s.referralRepo.Transition(txCtx, tx, referral.ID, referraldomain.StatusSignedUp, referraldomain.StatusActive, now)
			if err != nil {
				return err
			}
			if !applied {
				return errAwardRace
			}
		}

		if err := s.statsRepo.Ensure(txCtx, tx, referral.ReferrerID, now); err != nil {
			return err
		}
		stats, err := s.statsRepo.FindByBeneficiary(txCtx, tx, referral.ReferrerID, true)
		if err != nil {
			return err
		}
		var earned int64
		if stats != nil {
			earned = stats.TotalRewardsEarned
		}

		table := s.tiers.Table()
		tier := table.TierFor(earned)
		entry := domain.LedgerEntry{
			ID:                s.genID.Generate(),
			ReferralID:        referral.ID,
			BeneficiaryID:     referral.ReferrerID,
			RewardMinutes:     tier.RewardMinutes,
			RewardCreditCents: tier.RewardCreditCents,
			TierLevel:         tier.Level,
			TierName:          tier.Name,
			AwardedAt:         now,
		}
		if s.cfg.RewardValidity > 0 {
			expiresAt := now.Add(s.cfg.RewardValidity)
			entry.ExpiresAt = &expiresAt
		}

		inserted, err := s.repo.InsertIgnore(txCtx, tx, &entry)
		if err != nil {
			if dbutil.IsDuplicateKeyErr(err) {
				return errAwardRace
			}
			return err
		}
		if !inserted {
			return errAwardRace
		}

		if err := s.statsRepo.ApplyAward(txCtx, tx, referral.ReferrerID, statsdomain.AwardDelta{
			Minutes:     entry.RewardMinutes,
			CreditCents: entry.RewardCreditCents,
			Tier:        table.TierFor(earned + 1),
		}, now); err != nil {
			return err
		}

		applied, err := s.referralRepo.Transition(txCtx, tx, referral.ID, referraldomain.StatusActive, referraldomain.StatusRewarded, now)
		if err != nil {
			return err
		}
		if !applied {
			return errAwardRace
		}

		if err := s.creditReferredBonus(txCtx, tx, referral); err != nil {
			return err
		}

		notification, err := s.dispatcher.Enqueue(txCtx, tx, notificationdomain.RewardAwarded{
			Event:             notificationdomain.EventRewardAwarded,
			LedgerEntryID:     entry.ID.String(),
			ReferralID:        referral.ID.String(),
			BeneficiaryID:     referral.ReferrerID.String(),
			TierLevel:         entry.TierLevel,
			TierName:          entry.TierName,
			RewardMinutes:     entry.RewardMinutes,
			RewardCreditCents: entry.RewardCreditCents,
			AwardedAt:         entry.AwardedAt,
			ExpiresAt:         entry.ExpiresAt,
		}, entry.ID, referral.ReferrerID)
		if err != nil {
			return err
		}

		result = award{
			outcome: domain.Outcome{
				Entry:          entry,
				Created:        true,
				ReferralID:     referral.ID,
				ReferralStatus: string(referraldomain.StatusRewarded),
			},
			notificationID: notification.ID,
		}
		return nil
	})
	return result, err
}

// creditReferredBonus pays the referred party when a bonus is configured.
// The referral id is the credit reference, so it can only land once.
func (s *Service) creditReferredBonus(ctx context.Context, tx *gorm.DB, referral *referraldomain.Referral) error {
	if s.cfg.ReferredBonusMinutes <= 0 && s.cfg.ReferredBonusCreditCents <= 0 {
		return nil
	}
	if referral.ReferredPartyID == nil || *referral.ReferredPartyID == 0 {
		return nil
	}
	_, err := s.crediter.Credit(ctx, tx, balancedomain.CreditRequest{
		AccountID:   *referral.ReferredPartyID,
		Source:      balancedomain.SourceReferredBonus,
		ReferenceID: referral.ID.String(),
		Minutes:     max(s.cfg.ReferredBonusMinutes, 0),
		CreditCents: max(s.cfg.ReferredBonusCreditCents, 0),
	})
	return err
}

func (s *Service) existingOutcome(ctx context.Context, referralID snowflake.ID) (domain.Outcome, error) {
	entry, err := s.repo.FindByReferral(ctx, s.db, referralID)
	if err != nil {
		return domain.Outcome{}, dbutil.WrapTransient(err)
	}
	if entry == nil {
		// the winner has not committed yet
		return domain.Outcome{}, fmt.Errorf("%w: concurrent activation in flight", dbutil.ErrTransient)
	}
	s.metrics.ObserveAward(entry.TierName, metrics.AwardOutcomeConflict, 0)
	return domain.Outcome{
		Entry:          *entry,
		ReferralID:     referralID,
		ReferralStatus: string(referraldomain.StatusRewarded),
	}, nil
}

func (s *Service) ActivateByIdentity(ctx context.Context, identity string) (domain.Outcome, error) {
	identity = referraldomain.NormalizeIdentity(identity)
	if identity == "" {
		return domain.Outcome{}, domain.ErrInvalidIdentity
	}
	referral, err := s.referralRepo.FindByIdentity(ctx, s.db, s.cfg.ProductContext, identity, false)
	if err != nil {
		return domain.Outcome{}, dbutil.WrapTransient(err)
	}
	return s.activateResolved(ctx, referral)
}

func (s *Service) ActivateByParty(ctx context.Context, partyID snowflake.ID) (domain.Outcome, error) {
	if partyID == 0 {
		return domain.Outcome{}, domain.ErrInvalidID
	}
	referral, err := s.referralRepo.FindByParty(ctx, s.db, partyID, false)
	if err != nil {
		return domain.Outcome{}, dbutil.WrapTransient(err)
	}
	return s.activateResolved(ctx, referral)
}

// activateResolved only activates referrals that reached signup. Anything else
// means the activating party was never referred, or not through a live funnel.
func (s *Service) activateResolved(ctx context.Context, referral *referraldomain.Referral) (domain.Outcome, error) {
	if referral == nil || !referral.Status.Converted() {
		return domain.Outcome{}, domain.ErrNoPendingReferral
	}
	return s.Activate(ctx, referral.ID)
}

func (s *Service) ListRewards(ctx context.Context, beneficiaryID snowflake.ID) (domain.RewardsView, error) {
	if beneficiaryID == 0 {
		return domain.RewardsView{}, domain.ErrInvalidBeneficiary
	}

	entries, err := s.repo.ListUnclaimed(ctx, s.db, beneficiaryID)
	if err != nil {
		return domain.RewardsView{}, err
	}
	summary, err := s.repo.SummarizeClaimed(ctx, s.db, beneficiaryID)
	if err != nil {
		return domain.RewardsView{}, err
	}

	now := s.clock.Now()
	view := domain.RewardsView{
		Active:  make([]domain.LedgerEntry, 0, len(entries)),
		Expired: make([]domain.LedgerEntry, 0),
		Claimed: summary,
	}
	for _, entry := range entries {
		if entry.Expired(now) {
			view.Expired = append(view.Expired, *entry)
			continue
		}
		view.Active = append(view.Active, *entry)
	}
	return view, nil
}

func (s *Service) txContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.cfg.TxTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.cfg.TxTimeout)
}
