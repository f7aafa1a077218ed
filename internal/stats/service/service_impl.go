package service

import (
	"context"
	"fmt"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/referral/internal/cache"
	"github.com/smallbiznis/referral/internal/config"
	"github.com/smallbiznis/referral/internal/stats/domain"
	tierdomain "github.com/smallbiznis/referral/internal/tier/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB     *gorm.DB
	Log    *zap.Logger
	Config config.Config
	Repo   domain.Repository
	Tiers  tierdomain.Provider
	Cache  *cache.Store `optional:"true"`
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	repo  domain.Repository
	tiers tierdomain.Provider
	cache *cache.Store
	cfg   config.Config
}

func New(p Params) domain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("stats.service"),
		repo:  p.Repo,
		tiers: p.Tiers,
		cache: p.Cache,
		cfg:   p.Config,
	}
}

func (s *Service) Get(ctx context.Context, beneficiaryID snowflake.ID) (domain.Summary, error) {
	if beneficiaryID == 0 {
		return domain.Summary{}, domain.ErrInvalidBeneficiary
	}

	stats, err := cache.UseCache(ctx, s.cache, cacheKey(beneficiaryID), s.cfg.StatsCacheTTL,
		func(ctx context.Context) (domain.Statistics, error) {
			return s.load(ctx, beneficiaryID)
		})
	if err != nil {
		return domain.Summary{}, err
	}

	// progress is derived on read so a reloaded tier table shows up immediately
	table := s.tiers.Table()
	progress := table.Progress(stats.TotalRewardsEarned)
	if stats.CurrentTier == "" {
		stats.CurrentTier = progress.Current.Code()
		stats.CurrentTierLevel = progress.Current.Level
	}

	return domain.Summary{
		Statistics: stats,
		Progress:   progress,
	}, nil
}

func (s *Service) load(ctx context.Context, beneficiaryID snowflake.ID) (domain.Statistics, error) {
	row, err := s.repo.FindByBeneficiary(ctx, s.db, beneficiaryID, false)
	if err != nil {
		return domain.Statistics{}, err
	}
	if row == nil {
		return domain.Statistics{BeneficiaryID: beneficiaryID}, nil
	}
	return *row, nil
}

func (s *Service) Invalidate(ctx context.Context, beneficiaryID snowflake.ID) {
	if s.cache == nil || beneficiaryID == 0 {
		return
	}
	if err := s.cache.Delete(ctx, cacheKey(beneficiaryID)); err != nil {
		s.log.Warn("stats cache invalidation failed",
			zap.String("beneficiary_id", beneficiaryID.String()),
			zap.Error(err),
		)
	}
}

func cacheKey(beneficiaryID snowflake.ID) string {
	return fmt.Sprintf("referral:stats:%s", beneficiaryID.String())
}
