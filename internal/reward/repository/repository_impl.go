package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/referral/internal/reward/domain"
	dbutil "github.com/smallbiznis/referral/pkg/db"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const selectColumns = `SELECT id, referral_id, beneficiary_id, reward_minutes, reward_credit_cents,
	tier_level, tier_name, awarded_at, expires_at, claimed, claimed_at
	FROM reward_ledger_entries`

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) InsertIgnore(ctx context.Context, db *gorm.DB, entry *domain.LedgerEntry) (bool, error) {
	res := db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "referral_id"}}, DoNothing: true}).
		Create(entry)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID, forUpdate bool) (*domain.LedgerEntry, error) {
	query := selectColumns + ` WHERE id = ?`
	if forUpdate {
		query += dbutil.LockSuffix(db)
	}
	return r.findOne(ctx, db, query, id)
}

func (r *repo) FindByReferral(ctx context.Context, db *gorm.DB, referralID snowflake.ID) (*domain.LedgerEntry, error) {
	return r.findOne(ctx, db, selectColumns+` WHERE referral_id = ?`, referralID)
}

func (r *repo) findOne(ctx context.Context, db *gorm.DB, query string, args ...any) (*domain.LedgerEntry, error) {
	var entry domain.LedgerEntry
	if err := db.WithContext(ctx).Raw(query, args...).Scan(&entry).Error; err != nil {
		return nil, err
	}
	if entry.ID == 0 {
		return nil, nil
	}
	return &entry, nil
}

func (r *repo) ListUnclaimed(ctx context.Context, db *gorm.DB, beneficiaryID snowflake.ID) ([]*domain.LedgerEntry, error) {
	var entries []*domain.LedgerEntry
	err := db.WithContext(ctx).Raw(
		selectColumns+` WHERE beneficiary_id = ? AND claimed = ? ORDER BY id ASC`,
		beneficiaryID,
		false,
	).Scan(&entries).Error
	if err != nil {
		return nil, err
	}
	return entries, nil
}

func (r *repo) ListClaimable(ctx context.Context, db *gorm.DB, beneficiaryID snowflake.ID, now time.Time, forUpdate bool) ([]*domain.LedgerEntry, error) {
	query := selectColumns + ` WHERE beneficiary_id = ? AND claimed = ? AND (expires_at IS NULL OR expires_at >= ?) ORDER BY id ASC`
	if forUpdate {
		query += dbutil.LockSuffix(db)
	}
	var entries []*domain.LedgerEntry
	if err := db.WithContext(ctx).Raw(query, beneficiaryID, false, now).Scan(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

func (r *repo) MarkClaimed(ctx context.Context, db *gorm.DB, id snowflake.ID, now time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE reward_ledger_entries SET claimed = ?, claimed_at = ?
		 WHERE id = ? AND claimed = ? AND (expires_at IS NULL OR expires_at >= ?)`,
		true,
		now,
		id,
		false,
		now,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repo) SummarizeClaimed(ctx context.Context, db *gorm.DB, beneficiaryID snowflake.ID) (domain.ClaimedSummary, error) {
	var row struct {
		Count       int64
		Minutes     int64
		CreditCents int64
	}
	err := db.WithContext(ctx).Raw(
		`SELECT COUNT(*) AS count,
			COALESCE(SUM(reward_minutes), 0) AS minutes,
			COALESCE(SUM(reward_credit_cents), 0) AS credit_cents
		 FROM reward_ledger_entries WHERE beneficiary_id = ? AND claimed = ?`,
		beneficiaryID,
		true,
	).Scan(&row).Error
	if err != nil {
		return domain.ClaimedSummary{}, err
	}

	summary := domain.ClaimedSummary{Count: row.Count, Minutes: row.Minutes, CreditCents: row.CreditCents}
	if row.Count == 0 {
		return summary, nil
	}

	var last domain.LedgerEntry
	err = db.WithContext(ctx).Raw(
		selectColumns+` WHERE beneficiary_id = ? AND claimed = ? ORDER BY claimed_at DESC, id DESC LIMIT 1`,
		beneficiaryID,
		true,
	).Scan(&last).Error
	if err != nil {
		return domain.ClaimedSummary{}, err
	}
	summary.LastClaimedAt = last.ClaimedAt
	return summary, nil
}

func (r *repo) CountByBeneficiary(ctx context.Context, db *gorm.DB, beneficiaryID snowflake.ID) (int64, error) {
	var count int64
	err := db.WithContext(ctx).
		Model(&domain.LedgerEntry{}).
		Where("beneficiary_id = ?", beneficiaryID).
		Count(&count).Error
	return count, err
}
