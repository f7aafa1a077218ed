package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Notifier delivers a message over one channel. Implementations must tolerate
// redelivery of the same DedupeKey.
type Notifier interface {
	Channel() string
	Send(ctx context.Context, msg RewardAwarded) error
}

// Dispatcher owns the outbox.
type Dispatcher interface {
	// Enqueue records msg inside tx. It performs no I/O beyond the store.
	Enqueue(ctx context.Context, tx *gorm.DB, msg RewardAwarded, ledgerEntryID, beneficiaryID snowflake.ID) (Notification, error)
	// Dispatch delivers one outbox row in the background and returns immediately.
	Dispatch(ctx context.Context, id snowflake.ID)
	// RetryPending redelivers due rows and reports how many were sent.
	RetryPending(ctx context.Context, limit int) (int, error)
}

var (
	ErrNotFound       = errors.New("not_found")
	ErrAlreadyQueued  = errors.New("notification_already_queued")
	ErrDeliveryFailed = errors.New("notification_delivery_failed")
	ErrNoChannels     = errors.New("notification_no_channels")
	ErrInvalidPayload = errors.New("notification_invalid_payload")
)
