package notifier

import (
	"context"

	"github.com/smallbiznis/referral/internal/notification/domain"
	"go.uber.org/zap"
)

const ChannelLog = "log"

// Log records the message. It is the fallback when no channel is configured.
type Log struct {
	log *zap.Logger
}

func NewLog(log *zap.Logger) *Log {
	return &Log{log: log.Named("notification.log")}
}

func (l *Log) Channel() string {
	return ChannelLog
}

func (l *Log) Send(ctx context.Context, msg domain.RewardAwarded) error {
	l.log.Info("reward awarded",
		zap.String("dedupe_key", msg.DedupeKey),
		zap.String("ledger_entry_id", msg.LedgerEntryID),
		zap.String("beneficiary_id", msg.BeneficiaryID),
		zap.String("tier", msg.TierName),
		zap.Int64("reward_minutes", msg.RewardMinutes),
		zap.Int64("reward_credit_cents", msg.RewardCreditCents),
	)
	return nil
}
