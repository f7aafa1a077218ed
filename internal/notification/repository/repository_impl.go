package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/referral/internal/notification/domain"
	"gorm.io/gorm"
)

const selectColumns = `SELECT id, ledger_entry_id, beneficiary_id, dedupe_key, payload, status, attempts,
	last_error, next_attempt_at, sent_at, created_at, updated_at
	FROM reward_notifications`

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, n *domain.Notification) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO reward_notifications (id, ledger_entry_id, beneficiary_id, dedupe_key, payload, status,
			attempts, last_error, next_attempt_at, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		n.ID,
		n.LedgerEntryID,
		n.BeneficiaryID,
		n.DedupeKey,
		n.Payload,
		n.Status,
		n.Attempts,
		n.LastError,
		n.NextAttemptAt,
		n.CreatedAt,
		n.UpdatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Notification, error) {
	var n domain.Notification
	if err := db.WithContext(ctx).Raw(selectColumns+` WHERE id = ?`, id).Scan(&n).Error; err != nil {
		return nil, err
	}
	if n.ID == 0 {
		return nil, nil
	}
	return &n, nil
}

func (r *repo) ListDue(ctx context.Context, db *gorm.DB, now time.Time, limit int) ([]*domain.Notification, error) {
	var rows []*domain.Notification
	err := db.WithContext(ctx).Raw(
		selectColumns+` WHERE status = ? AND next_attempt_at <= ? ORDER BY next_attempt_at ASC, id ASC LIMIT ?`,
		domain.StatusPending,
		now,
		limit,
	).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repo) MarkSent(ctx context.Context, db *gorm.DB, id snowflake.ID, attempts int, now time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE reward_notifications SET status = ?, attempts = ?, last_error = '', sent_at = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		domain.StatusSent,
		attempts,
		now,
		now,
		id,
		domain.StatusPending,
	).Error
}

func (r *repo) MarkAttemptFailed(ctx context.Context, db *gorm.DB, id snowflake.ID, attempts int, lastErr string, status domain.Status, next, now time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE reward_notifications SET status = ?, attempts = ?, last_error = ?, next_attempt_at = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		status,
		attempts,
		lastErr,
		next,
		now,
		id,
		domain.StatusPending,
	).Error
}
