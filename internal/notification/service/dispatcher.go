package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/bwmarrin/snowflake"
	"github.com/cenkalti/backoff/v5"
	"github.com/oklog/ulid/v2"
	"github.com/smallbiznis/referral/internal/clock"
	"github.com/smallbiznis/referral/internal/config"
	"github.com/smallbiznis/referral/internal/notification/domain"
	dbutil "github.com/smallbiznis/referral/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	immediateTries   = 3
	dispatchTimeout  = 30 * time.Second
	retryBaseDelay   = time.Minute
	retryMaxDelay    = time.Hour
	maxLastErrLength = 512
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	Config   config.Config
	Clock    clock.Clock
	GenID    *snowflake.Node
	Repo     domain.Repository
	Notifier domain.Notifier
}

type Dispatcher struct {
	db          *gorm.DB
	log         *zap.Logger
	clock       clock.Clock
	genID       *snowflake.Node
	repo        domain.Repository
	notifier    domain.Notifier
	maxAttempts int

	initialBackoff time.Duration
	wg             sync.WaitGroup
}

func New(p Params) *Dispatcher {
	maxAttempts := p.Config.Notification.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 10
	}
	return &Dispatcher{
		db:             p.DB,
		log:            p.Log.Named("notification.dispatcher"),
		clock:          p.Clock,
		genID:          p.GenID,
		repo:           p.Repo,
		notifier:       p.Notifier,
		maxAttempts:    maxAttempts,
		initialBackoff: 200 * time.Millisecond,
	}
}

func (d *Dispatcher) Enqueue(ctx context.Context, tx *gorm.DB, msg domain.RewardAwarded, ledgerEntryID, beneficiaryID snowflake.ID) (domain.Notification, error) {
	now := d.clock.Now()
	if msg.DedupeKey == "" {
		msg.DedupeKey = ulid.Make().String()
	}
	if msg.Event == "" {
		msg.Event = domain.EventRewardAwarded
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return domain.Notification{}, fmt.Errorf("%w: %v", domain.ErrInvalidPayload, err)
	}

	n := domain.Notification{
		ID:            d.genID.Generate(),
		LedgerEntryID: ledgerEntryID,
		BeneficiaryID: beneficiaryID,
		DedupeKey:     msg.DedupeKey,
		Payload:       datatypes.JSON(payload),
		Status:        domain.StatusPending,
		// the immediate dispatch owns the row until this passes
		NextAttemptAt: now.Add(retryBaseDelay),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := d.repo.Insert(ctx, tx, &n); err != nil {
		if dbutil.IsDuplicateKeyErr(err) {
			return domain.Notification{}, domain.ErrAlreadyQueued
		}
		return domain.Notification{}, err
	}
	return n, nil
}

// Dispatch must only be called after the enqueuing transaction committed.
func (d *Dispatcher) Dispatch(ctx context.Context, id snowflake.ID) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), dispatchTimeout)
		defer cancel()

		n, err := d.repo.FindByID(ctx, d.db, id)
		if err != nil || n == nil {
			d.log.Warn("notification not loadable for dispatch", zap.String("notification_id", id.String()), zap.Error(err))
			return
		}
		if _, err := d.deliver(ctx, n, immediateTries); err != nil {
			d.log.Warn("notification dispatch failed, left for retry",
				zap.String("notification_id", id.String()),
				zap.Error(err),
			)
		}
	}()
}

// Wait blocks until in-flight background dispatches finish.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

func (d *Dispatcher) RetryPending(ctx context.Context, limit int) (int, error) {
	if limit <= 0 {
		limit = 100
	}
	due, err := d.repo.ListDue(ctx, d.db, d.clock.Now(), limit)
	if err != nil {
		return 0, dbutil.WrapTransient(err)
	}

	sent := 0
	for _, n := range due {
		if err := ctx.Err(); err != nil {
			return sent, err
		}
		ok, err := d.deliver(ctx, n, 1)
		if err != nil && !errors.Is(err, domain.ErrDeliveryFailed) {
			return sent, err
		}
		if ok {
			sent++
		}
	}
	return sent, nil
}

// deliver sends n and records the attempt. It returns ErrDeliveryFailed when
// every try failed and the outcome was stored.
func (d *Dispatcher) deliver(ctx context.Context, n *domain.Notification, tries int) (bool, error) {
	var msg domain.RewardAwarded
	if err := json.Unmarshal(n.Payload, &msg); err != nil {
		now := d.clock.Now()
		return false, d.repo.MarkAttemptFailed(ctx, d.db, n.ID, n.Attempts+1, err.Error(), domain.StatusFailed, now, now)
	}

	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = d.initialBackoff
	_, sendErr := backoff.Retry(ctx, func() (struct{}, error) {
		return struct{}{}, d.notifier.Send(ctx, msg)
	}, backoff.WithBackOff(expo), backoff.WithMaxTries(uint(tries)))

	now := d.clock.Now()
	attempts := n.Attempts + 1
	if sendErr == nil {
		if err := d.repo.MarkSent(ctx, d.db, n.ID, attempts, now); err != nil {
			return true, err
		}
		return true, nil
	}

	status := domain.StatusPending
	if attempts >= d.maxAttempts {
		status = domain.StatusFailed
		d.log.Error("notification gave up",
			zap.String("notification_id", n.ID.String()),
			zap.Int("attempts", attempts),
			zap.Error(sendErr),
		)
	}
	lastErr := truncateLastErr(sendErr.Error())
	if err := d.repo.MarkAttemptFailed(ctx, d.db, n.ID, attempts, lastErr, status, now.Add(retryDelay(attempts)), now); err != nil {
		return false, err
	}
	return false, fmt.Errorf("%w: %v", domain.ErrDeliveryFailed, sendErr)
}

// truncateLastErr caps msg at maxLastErrLength bytes without splitting a rune.
func truncateLastErr(msg string) string {
	if len(msg) <= maxLastErrLength {
		return msg
	}
	cut := maxLastErrLength
	for cut > 0 && !utf8.RuneStart(msg[cut]) {
		cut--
	}
	return msg[:cut]
}

// retryDelay doubles per attempt, capped at retryMaxDelay.
func retryDelay(attempts int) time.Duration {
	delay := retryBaseDelay
	for i := 1; i < attempts; i++ {
		delay *= 2
		if delay >= retryMaxDelay {
			return retryMaxDelay
		}
	}
	return delay
}
