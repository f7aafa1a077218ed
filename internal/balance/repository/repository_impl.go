package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/referral/internal/balance/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) InsertCredit(ctx context.Context, db *gorm.DB, credit *domain.Credit) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO balance_credits (id, account_id, source, reference_id, minutes, credit_cents, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		credit.ID,
		credit.AccountID,
		credit.Source,
		credit.ReferenceID,
		credit.Minutes,
		credit.CreditCents,
		credit.CreatedAt,
	).Error
}

func (r *repo) AddToBalance(ctx context.Context, db *gorm.DB, accountID snowflake.ID, minutes, creditCents int64, now time.Time) error {
	err := db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "account_id"}}, DoNothing: true}).
		Create(&domain.AccountBalance{AccountID: accountID, UpdatedAt: now}).Error
	if err != nil {
		return err
	}
	return db.WithContext(ctx).Exec(
		`UPDATE account_balances SET minutes = minutes + ?, credit_cents = credit_cents + ?, updated_at = ?
		 WHERE account_id = ?`,
		minutes,
		creditCents,
		now,
		accountID,
	).Error
}

func (r *repo) FindBalance(ctx context.Context, db *gorm.DB, accountID snowflake.ID) (*domain.AccountBalance, error) {
	var balance domain.AccountBalance
	err := db.WithContext(ctx).Raw(
		`SELECT account_id, minutes, credit_cents, updated_at FROM account_balances WHERE account_id = ?`,
		accountID,
	).Scan(&balance).Error
	if err != nil {
		return nil, err
	}
	if balance.AccountID == 0 {
		return nil, nil
	}
	return &balance, nil
}

func (r *repo) ListCredits(ctx context.Context, db *gorm.DB, accountID snowflake.ID, limit int) ([]domain.Credit, error) {
	var credits []domain.Credit
	err := db.WithContext(ctx).Raw(
		`SELECT id, account_id, source, reference_id, minutes, credit_cents, created_at
		 FROM balance_credits WHERE account_id = ? ORDER BY id DESC LIMIT ?`,
		accountID,
		limit,
	).Scan(&credits).Error
	if err != nil {
		return nil, err
	}
	return credits, nil
}
