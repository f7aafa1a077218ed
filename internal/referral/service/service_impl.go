package service

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/referral/internal/clock"
	"github.com/smallbiznis/referral/internal/config"
	"github.com/smallbiznis/referral/internal/observability/metrics"
	"github.com/smallbiznis/referral/internal/referral/domain"
	statsdomain "github.com/smallbiznis/referral/internal/stats/domain"
	dbutil "github.com/smallbiznis/referral/pkg/db"
	"github.com/smallbiznis/referral/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const maxCodeAttempts = 5

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	Config    config.Config
	Clock     clock.Clock
	GenID     *snowflake.Node
	Repo      domain.Repository
	StatsRepo statsdomain.Repository
	Stats     statsdomain.Service
	Metrics   *metrics.ReferralMetrics `optional:"true"`
}

type Service struct {
	db        *gorm.DB
	log       *zap.Logger
	cfg       config.ReferralConfig
	clock     clock.Clock
	genID     *snowflake.Node
	repo      domain.Repository
	statsRepo statsdomain.Repository
	stats     statsdomain.Service
	metrics   *metrics.ReferralMetrics
}

func New(p Params) domain.Service {
	return &Service{
		db:        p.DB,
		log:       p.Log.Named("referral.service"),
		cfg:       p.Config.Referral,
		clock:     p.Clock,
		genID:     p.GenID,
		repo:      p.Repo,
		statsRepo: p.StatsRepo,
		stats:     p.Stats,
		metrics:   p.Metrics,
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreateRequest) (domain.Referral, error) {
	if req.ReferrerID == 0 {
		return domain.Referral{}, domain.ErrInvalidReferrer
	}
	identity := domain.NormalizeIdentity(req.ReferredIdentity)
	if identity == "" {
		return domain.Referral{}, domain.ErrInvalidIdentity
	}

	existing, err := s.repo.FindByIdentity(ctx, s.db, s.cfg.ProductContext, identity, false)
	if err != nil {
		return domain.Referral{}, err
	}
	if existing != nil {
		return domain.Referral{}, domain.ErrAlreadyReferred
	}

	metadata := datatypes.JSONMap{}
	for k, v := range req.Metadata {
		metadata[k] = v
	}

	now := s.clock.Now()
	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		code, err := generateCode()
		if err != nil {
			return domain.Referral{}, err
		}
		referral := domain.Referral{
			ID:               s.genID.Generate(),
			ReferrerID:       req.ReferrerID,
			ProductContext:   s.cfg.ProductContext,
			ReferredIdentity: identity,
			ReferralCode:     code,
			Status:           domain.StatusPending,
			Metadata:         metadata,
			CreatedAt:        now,
			UpdatedAt:        now,
		}

		err = s.repo.Insert(ctx, s.db, &referral)
		if err == nil {
			s.metrics.IncFunnelEvent("created")
			return referral, nil
		}
		if !dbutil.IsDuplicateKeyErr(err) {
			return domain.Referral{}, dbutil.WrapTransient(err)
		}

		// either the identity was referred concurrently or the code collided
		existing, findErr := s.repo.FindByIdentity(ctx, s.db, s.cfg.ProductContext, identity, false)
		if findErr != nil {
			return domain.Referral{}, findErr
		}
		if existing != nil {
			return domain.Referral{}, domain.ErrAlreadyReferred
		}
		s.log.Debug("referral code collision, retrying", zap.Int("attempt", attempt+1))
	}

	return domain.Referral{}, domain.ErrCodeExhausted
}

func (s *Service) Get(ctx context.Context, id snowflake.ID) (domain.Referral, error) {
	if id == 0 {
		return domain.Referral{}, domain.ErrInvalidID
	}
	referral, err := s.repo.FindByID(ctx, s.db, id, false)
	if err != nil {
		return domain.Referral{}, err
	}
	if referral == nil {
		return domain.Referral{}, domain.ErrNotFound
	}
	return *referral, nil
}

func (s *Service) List(ctx context.Context, req domain.ListRequest) (domain.ListResponse, error) {
	if req.ReferrerID == 0 {
		return domain.ListResponse{}, domain.ErrInvalidReferrer
	}
	if req.Status != "" && !req.Status.Valid() {
		return domain.ListResponse{}, domain.ErrInvalidStatus
	}

	page := pagination.Pagination{PageToken: req.PageToken, PageSize: req.PageSize}.Normalize()
	items, err := s.repo.List(ctx, s.db, req.ReferrerID, domain.ListFilter{Status: req.Status}, page)
	if err != nil {
		return domain.ListResponse{}, err
	}

	items, pageInfo := pagination.BuildCursorPageInfo(items, page.PageSize, func(referral *domain.Referral) string {
		token, err := pagination.EncodeCursor(pagination.Cursor{ID: referral.ID.String()})
		if err != nil {
			return ""
		}
		return token
	})

	referrals := make([]domain.Referral, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		referrals = append(referrals, *item)
	}

	return domain.ListResponse{PageInfo: pageInfo, Referrals: referrals}, nil
}

// RecordClick never reports unknown or closed codes as errors: tracking links
// are public and the caller learns nothing from the response.
func (s *Service) RecordClick(ctx context.Context, code string) (domain.ClickResult, error) {
	code = domain.NormalizeCode(code)
	if code == "" {
		return domain.ClickResult{}, domain.ErrInvalidCode
	}

	txCtx, cancel := s.txContext(ctx)
	defer cancel()

	var result domain.ClickResult
	err := s.db.WithContext(txCtx).Transaction(func(tx *gorm.DB) error {
		referral, err := s.repo.FindByCode(txCtx, tx, code, true)
		if err != nil {
			return err
		}
		if referral == nil {
			return nil
		}
		result.Referral = referral

		next, ok := domain.Next(referral.Status, domain.EventClick)
		if !ok {
			return nil
		}

		now := domain.NotBefore(s.clock.Now(), referral.LatestMilestone())
		applied, err := s.repo.ApplyClick(txCtx, tx, referral.ID, referral.Status, next, now)
		if err != nil {
			return err
		}
		if !applied {
			return nil
		}
		if err := s.statsRepo.IncrementClicks(txCtx, tx, referral.ReferrerID, now); err != nil {
			return err
		}

		referral.ClickedCount++
		if referral.Status.PreSignup() {
			referral.LastClickedAt = &now
		}
		referral.Status = next
		referral.UpdatedAt = now
		result.Recorded = true
		return nil
	})
	if err != nil {
		return domain.ClickResult{}, dbutil.WrapTransient(err)
	}

	if result.Recorded {
		s.stats.Invalidate(ctx, result.Referral.ReferrerID)
		s.metrics.IncFunnelEvent(string(domain.EventClick))
	}
	return result, nil
}

func (s *Service) RecordSignup(ctx context.Context, req domain.SignupRequest) (domain.Referral, error) {
	code := domain.NormalizeCode(req.Code)
	if code == "" {
		return domain.Referral{}, domain.ErrInvalidCode
	}
	identity := domain.NormalizeIdentity(req.ReferredIdentity)
	if identity == "" {
		return domain.Referral{}, domain.ErrInvalidIdentity
	}
	if req.ReferredPartyID != nil && *req.ReferredPartyID == 0 {
		req.ReferredPartyID = nil
	}

	txCtx, cancel := s.txContext(ctx)
	defer cancel()

	var (
		out      domain.Referral
		recorded bool
	)
	err := s.db.WithContext(txCtx).Transaction(func(tx *gorm.DB) error {
		referral, err := s.repo.FindByCode(txCtx, tx, code, true)
		if err != nil {
			return err
		}
		if referral == nil || referral.ReferredIdentity != identity {
			return domain.ErrNotFound
		}
		out = *referral

		if referral.Status.Closed() {
			return domain.ErrReferralClosed
		}
		if referral.Status.Converted() {
			return nil
		}

		now := domain.NotBefore(s.clock.Now(), referral.LatestMilestone())
		applied, err := s.repo.MarkSignedUp(txCtx, tx, referral.ID, referral.Status, req.ReferredPartyID, now)
		if err != nil {
			return err
		}
		if !applied {
			return nil
		}
		if err := s.statsRepo.IncrementSignups(txCtx, tx, referral.ReferrerID, now); err != nil {
			return err
		}

		out.Status = domain.StatusSignedUp
		out.SignupAt = &now
		out.UpdatedAt = now
		if out.ReferredPartyID == nil && req.ReferredPartyID != nil {
			partyID := *req.ReferredPartyID
			out.ReferredPartyID = &partyID
		}
		recorded = true
		return nil
	})
	if err != nil {
		if errors.Is(err, domain.ErrReferralClosed) {
			return out, err
		}
		return domain.Referral{}, dbutil.WrapTransient(err)
	}

	if recorded {
		s.stats.Invalidate(ctx, out.ReferrerID)
		s.metrics.IncFunnelEvent(string(domain.EventSignup))
	}
	return out, nil
}

func (s *Service) Expire(ctx context.Context, id snowflake.ID) (domain.Referral, error) {
	return s.close(ctx, id, domain.EventExpire, domain.StatusExpired, nil)
}

func (s *Service) Cancel(ctx context.Context, id snowflake.ID) (domain.Referral, error) {
	return s.close(ctx, id, domain.EventCancel, domain.StatusCancelled, nil)
}

// close moves a pre-activation referral to a side exit. Repeating the same
// exit is a no-op; anything else past the table is rejected. guard, when set,
// narrows the states the exit may fire from.
func (s *Service) close(ctx context.Context, id snowflake.ID, event domain.Event, target domain.Status, guard func(domain.Status) bool) (domain.Referral, error) {
	if id == 0 {
		return domain.Referral{}, domain.ErrInvalidID
	}

	txCtx, cancel := s.txContext(ctx)
	defer cancel()

	var (
		out     domain.Referral
		changed bool
	)
	err := s.db.WithContext(txCtx).Transaction(func(tx *gorm.DB) error {
		referral, err := s.repo.FindByID(txCtx, tx, id, true)
		if err != nil {
			return err
		}
		if referral == nil {
			return domain.ErrNotFound
		}
		out = *referral
		if referral.Status == target {
			return nil
		}

		if guard != nil && !guard(referral.Status) {
			return domain.ErrInvalidTransition
		}
		next, ok := domain.Next(referral.Status, event)
		if !ok {
			return domain.ErrInvalidTransition
		}

		now := domain.NotBefore(s.clock.Now(), referral.LatestMilestone())
		applied, err := s.repo.Transition(txCtx, tx, referral.ID, referral.Status, next, now)
		if err != nil {
			return err
		}
		if !applied {
			return domain.ErrInvalidTransition
		}

		out.Status = next
		out.UpdatedAt = now
		switch next {
		case domain.StatusExpired:
			out.ExpiredAt = &now
		case domain.StatusCancelled:
			out.CancelledAt = &now
		}
		changed = true
		return nil
	})
	if err != nil {
		return domain.Referral{}, dbutil.WrapTransient(err)
	}

	if changed {
		s.metrics.IncFunnelEvent(string(event))
		s.log.Info("referral closed",
			zap.String("referral_id", out.ID.String()),
			zap.String("status", string(out.Status)),
		)
	}
	return out, nil
}

func (s *Service) ExpireStale(ctx context.Context, limit int) (int, error) {
	if s.cfg.SignupDeadline <= 0 {
		return 0, nil
	}
	if limit <= 0 {
		limit = 100
	}

	cutoff := s.clock.Now().Add(-s.cfg.SignupDeadline)
	stale, err := s.repo.ListStale(ctx, s.db, cutoff, limit)
	if err != nil {
		return 0, dbutil.WrapTransient(err)
	}

	expired := 0
	for _, referral := range stale {
		if err := ctx.Err(); err != nil {
			return expired, err
		}
		_, err := s.close(ctx, referral.ID, domain.EventExpire, domain.StatusExpired, domain.Status.PreSignup)
		switch {
		case err == nil:
			expired++
		case errors.Is(err, domain.ErrInvalidTransition):
			// signed up or otherwise moved on since the scan
		default:
			return expired, err
		}
	}
	return expired, nil
}

func (s *Service) txContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.cfg.TxTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.cfg.TxTimeout)
}
