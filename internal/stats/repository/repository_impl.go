package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/referral/internal/stats/domain"
	dbutil "github.com/smallbiznis/referral/pkg/db"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Ensure(ctx context.Context, db *gorm.DB, beneficiaryID snowflake.ID, now time.Time) error {
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "beneficiary_id"}}, DoNothing: true}).
		Create(&domain.Statistics{BeneficiaryID: beneficiaryID, UpdatedAt: now}).Error
}

func (r *repo) FindByBeneficiary(ctx context.Context, db *gorm.DB, beneficiaryID snowflake.ID, forUpdate bool) (*domain.Statistics, error) {
	query := `SELECT beneficiary_id, total_clicks, total_signups, total_active, total_rewards_earned,
		available_minutes, available_credit_cents, current_tier, current_tier_level, updated_at
		FROM referral_statistics WHERE beneficiary_id = ?`
	if forUpdate {
		query += dbutil.LockSuffix(db)
	}

	var stats domain.Statistics
	if err := db.WithContext(ctx).Raw(query, beneficiaryID).Scan(&stats).Error; err != nil {
		return nil, err
	}
	if stats.BeneficiaryID == 0 {
		return nil, nil
	}
	return &stats, nil
}

func (r *repo) IncrementClicks(ctx context.Context, db *gorm.DB, beneficiaryID snowflake.ID, now time.Time) error {
	return r.increment(ctx, db, beneficiaryID, "total_clicks", now)
}

func (r *repo) IncrementSignups(ctx context.Context, db *gorm.DB, beneficiaryID snowflake.ID, now time.Time) error {
	return r.increment(ctx, db, beneficiaryID, "total_signups", now)
}

// increment bumps one of the fixed funnel counters; column never comes from input.
func (r *repo) increment(ctx context.Context, db *gorm.DB, beneficiaryID snowflake.ID, column string, now time.Time) error {
	if err := r.Ensure(ctx, db, beneficiaryID, now); err != nil {
		return err
	}
	return db.WithContext(ctx).Exec(
		`UPDATE referral_statistics SET `+column+` = `+column+` + 1, updated_at = ? WHERE beneficiary_id = ?`,
		now,
		beneficiaryID,
	).Error
}

func (r *repo) ApplyAward(ctx context.Context, db *gorm.DB, beneficiaryID snowflake.ID, delta domain.AwardDelta, now time.Time) error {
	if err := r.Ensure(ctx, db, beneficiaryID, now); err != nil {
		return err
	}
	return db.WithContext(ctx).Exec(
		`UPDATE referral_statistics SET
			total_active = total_active + 1,
			total_rewards_earned = total_rewards_earned + 1,
			available_minutes = available_minutes + ?,
			available_credit_cents = available_credit_cents + ?,
			current_tier = ?,
			current_tier_level = ?,
			updated_at = ?
		 WHERE beneficiary_id = ?`,
		delta.Minutes,
		delta.CreditCents,
		delta.Tier.Code(),
		delta.Tier.Level,
		now,
		beneficiaryID,
	).Error
}

func (r *repo) ApplyClaim(ctx context.Context, db *gorm.DB, beneficiaryID snowflake.ID, minutes, creditCents int64, now time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE referral_statistics SET
			available_minutes = CASE WHEN available_minutes >= ? THEN available_minutes - ? ELSE 0 END,
			available_credit_cents = CASE WHEN available_credit_cents >= ? THEN available_credit_cents - ? ELSE 0 END,
			updated_at = ?
		 WHERE beneficiary_id = ?`,
		minutes, minutes,
		creditCents, creditCents,
		now,
		beneficiaryID,
	).Error
}
