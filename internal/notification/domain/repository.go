package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, n *Notification) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Notification, error)
	ListDue(ctx context.Context, db *gorm.DB, now time.Time, limit int) ([]*Notification, error)
	MarkSent(ctx context.Context, db *gorm.DB, id snowflake.ID, attempts int, now time.Time) error
	MarkAttemptFailed(ctx context.Context, db *gorm.DB, id snowflake.ID, attempts int, lastErr string, status Status, next, now time.Time) error
}
