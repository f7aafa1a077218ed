package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/referral/internal/referral/domain"
	dbutil "github.com/smallbiznis/referral/pkg/db"
	"github.com/smallbiznis/referral/pkg/db/pagination"
	"gorm.io/gorm"
)

const selectColumns = `SELECT id, referrer_id, product_context, referred_identity, referral_code, status,
	clicked_count, referred_party_id, metadata, created_at, updated_at, last_clicked_at,
	signup_at, activated_at, rewarded_at, expired_at, cancelled_at
	FROM referrals`

// milestoneColumns maps a target status to the timestamp it stamps.
var milestoneColumns = map[domain.Status]string{
	domain.StatusSignedUp:  "signup_at",
	domain.StatusActive:    "activated_at",
	domain.StatusRewarded:  "rewarded_at",
	domain.StatusExpired:   "expired_at",
	domain.StatusCancelled: "cancelled_at",
}

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, referral *domain.Referral) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO referrals (id, referrer_id, product_context, referred_identity, referral_code, status,
			clicked_count, metadata, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		referral.ID,
		referral.ReferrerID,
		referral.ProductContext,
		referral.ReferredIdentity,
		referral.ReferralCode,
		referral.Status,
		referral.ClickedCount,
		referral.Metadata,
		referral.CreatedAt,
		referral.UpdatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID, forUpdate bool) (*domain.Referral, error) {
	return r.findOne(ctx, db, selectColumns+` WHERE id = ?`, forUpdate, id)
}

func (r *repo) FindByCode(ctx context.Context, db *gorm.DB, code string, forUpdate bool) (*domain.Referral, error) {
	return r.findOne(ctx, db, selectColumns+` WHERE referral_code = ?`, forUpdate, code)
}

func (r *repo) FindByIdentity(ctx context.Context, db *gorm.DB, productContext, identity string, forUpdate bool) (*domain.Referral, error) {
	return r.findOne(ctx, db, selectColumns+` WHERE product_context = ? AND referred_identity = ?`, forUpdate, productContext, identity)
}

func (r *repo) FindByParty(ctx context.Context, db *gorm.DB, partyID snowflake.ID, forUpdate bool) (*domain.Referral, error) {
	return r.findOne(ctx, db, selectColumns+` WHERE referred_party_id = ? ORDER BY id DESC LIMIT 1`, forUpdate, partyID)
}

func (r *repo) findOne(ctx context.Context, db *gorm.DB, query string, forUpdate bool, args ...any) (*domain.Referral, error) {
	if forUpdate {
		query += dbutil.LockSuffix(db)
	}
	var referral domain.Referral
	if err := db.WithContext(ctx).Raw(query, args...).Scan(&referral).Error; err != nil {
		return nil, err
	}
	if referral.ID == 0 {
		return nil, nil
	}
	return &referral, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, referrerID snowflake.ID, filter domain.ListFilter, page pagination.Pagination) ([]*domain.Referral, error) {
	stmt := db.WithContext(ctx).
		Model(&domain.Referral{}).
		Where("referrer_id = ?", referrerID)
	if filter.Status != "" {
		stmt = stmt.Where("status = ?", filter.Status)
	}
	stmt, err := pagination.Apply(stmt, page)
	if err != nil {
		return nil, err
	}

	var referrals []*domain.Referral
	if err := stmt.Find(&referrals).Error; err != nil {
		return nil, err
	}
	return referrals, nil
}

func (r *repo) ListStale(ctx context.Context, db *gorm.DB, createdBefore time.Time, limit int) ([]*domain.Referral, error) {
	var referrals []*domain.Referral
	err := db.WithContext(ctx).Raw(
		selectColumns+` WHERE status IN (?, ?) AND created_at < ? ORDER BY id ASC LIMIT ?`,
		domain.StatusPending,
		domain.StatusClicked,
		createdBefore,
		limit,
	).Scan(&referrals).Error
	if err != nil {
		return nil, err
	}
	return referrals, nil
}

func (r *repo) ApplyClick(ctx context.Context, db *gorm.DB, id snowflake.ID, from, to domain.Status, now time.Time) (bool, error) {
	query := `UPDATE referrals SET clicked_count = clicked_count + 1, status = ?, updated_at = ?`
	args := []any{to, now}
	if from.PreSignup() {
		query += `, last_clicked_at = ?`
		args = append(args, now)
	}
	query += ` WHERE id = ? AND status = ?`
	args = append(args, id, from)

	res := db.WithContext(ctx).Exec(query, args...)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repo) MarkSignedUp(ctx context.Context, db *gorm.DB, id snowflake.ID, from domain.Status, partyID *snowflake.ID, now time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE referrals SET status = ?, signup_at = ?, updated_at = ?,
			referred_party_id = COALESCE(referred_party_id, ?)
		 WHERE id = ? AND status = ?`,
		domain.StatusSignedUp,
		now,
		now,
		partyID,
		id,
		from,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repo) Transition(ctx context.Context, db *gorm.DB, id snowflake.ID, from, to domain.Status, now time.Time) (bool, error) {
	column, ok := milestoneColumns[to]
	if !ok {
		return false, fmt.Errorf("%w: no milestone for %s", domain.ErrInvalidTransition, to)
	}
	res := db.WithContext(ctx).Exec(
		`UPDATE referrals SET status = ?, `+column+` = ?, updated_at = ? WHERE id = ? AND status = ?`,
		to,
		now,
		now,
		id,
		from,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
