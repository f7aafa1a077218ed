package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/referral/internal/balance/domain"
	"github.com/smallbiznis/referral/internal/clock"
	dbutil "github.com/smallbiznis/referral/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	Clock clock.Clock
	GenID *snowflake.Node
	Repo  domain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	clock clock.Clock
	genID *snowflake.Node
	repo  domain.Repository
}

func New(p Params) domain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("balance.service"),
		clock: p.Clock,
		genID: p.GenID,
		repo:  p.Repo,
	}
}

func (s *Service) Credit(ctx context.Context, tx *gorm.DB, req domain.CreditRequest) (domain.Credit, error) {
	if req.AccountID == 0 {
		return domain.Credit{}, domain.ErrInvalidAccount
	}
	if req.Minutes < 0 || req.CreditCents < 0 || (req.Minutes == 0 && req.CreditCents == 0) {
		return domain.Credit{}, domain.ErrInvalidAmount
	}
	req.Source = strings.TrimSpace(req.Source)
	req.ReferenceID = strings.TrimSpace(req.ReferenceID)
	if req.Source == "" || req.ReferenceID == "" {
		return domain.Credit{}, domain.ErrInvalidReference
	}
	if tx == nil {
		tx = s.db
	}

	now := s.clock.Now()
	credit := domain.Credit{
		ID:          s.genID.Generate(),
		AccountID:   req.AccountID,
		Source:      req.Source,
		ReferenceID: req.ReferenceID,
		Minutes:     req.Minutes,
		CreditCents: req.CreditCents,
		CreatedAt:   now,
	}
	if err := s.repo.InsertCredit(ctx, tx, &credit); err != nil {
		if dbutil.IsDuplicateKeyErr(err) {
			return domain.Credit{}, domain.ErrDuplicateCredit
		}
		return domain.Credit{}, err
	}
	if err := s.repo.AddToBalance(ctx, tx, req.AccountID, req.Minutes, req.CreditCents, now); err != nil {
		return domain.Credit{}, err
	}

	s.log.Debug("balance credited",
		zap.String("account_id", req.AccountID.String()),
		zap.String("source", req.Source),
		zap.String("reference_id", req.ReferenceID),
		zap.Int64("minutes", req.Minutes),
		zap.Int64("credit_cents", req.CreditCents),
	)
	return credit, nil
}

func (s *Service) Get(ctx context.Context, accountID snowflake.ID) (domain.AccountBalance, error) {
	if accountID == 0 {
		return domain.AccountBalance{}, domain.ErrInvalidAccount
	}
	balance, err := s.repo.FindBalance(ctx, s.db, accountID)
	if err != nil {
		return domain.AccountBalance{}, err
	}
	if balance == nil {
		return domain.AccountBalance{AccountID: accountID}, nil
	}
	return *balance, nil
}

func (s *Service) ListCredits(ctx context.Context, accountID snowflake.ID, limit int) ([]domain.Credit, error) {
	if accountID == 0 {
		return nil, domain.ErrInvalidAccount
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return s.repo.ListCredits(ctx, s.db, accountID, limit)
}
