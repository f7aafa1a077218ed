package notifier

import (
	"context"
	"fmt"
	"time"

	"github.com/smallbiznis/referral/internal/notification/domain"
	"github.com/smallbiznis/referral/internal/providers/email"
)

const (
	ChannelEmail = "email"

	rewardAwardedTemplate = "reward_awarded"
)

type Email struct {
	provider email.Provider
	to       []string
}

func NewEmail(provider email.Provider, to []string) *Email {
	return &Email{provider: provider, to: to}
}

func (e *Email) Channel() string {
	return ChannelEmail
}

func (e *Email) Send(ctx context.Context, msg domain.RewardAwarded) error {
	data := map[string]any{
		"tier_name":      msg.TierName,
		"reward_minutes": msg.RewardMinutes,
	}
	if msg.RewardCreditCents > 0 {
		data["reward_credit"] = fmt.Sprintf("$%d.%02d", msg.RewardCreditCents/100, msg.RewardCreditCents%100)
	}
	if msg.ExpiresAt != nil {
		data["expires_at"] = msg.ExpiresAt.UTC().Format(time.RFC1123)
	}

	if err := e.provider.SendTemplate(ctx, e.to, rewardAwardedTemplate, data); err != nil {
		return fmt.Errorf("%w: email: %v", domain.ErrDeliveryFailed, err)
	}
	return nil
}
