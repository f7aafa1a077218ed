package email

import (
	"context"
	"net/smtp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderRewardAwarded(t *testing.T) {
	subject, body, err := Render("reward_awarded", map[string]any{
		"tier_name":      "Silver",
		"reward_minutes": int64(120),
		"reward_credit":  "$5.00",
	})
	require.NoError(t, err)
	assert.Equal(t, "You earned a referral reward", subject)
	assert.Contains(t, body, "Silver")
	assert.Contains(t, body, "120 minutes")
	assert.Contains(t, body, "$5.00")
}

func TestSMTPSendBuildsMessage(t *testing.T) {
	p := NewSMTP(Config{Host: "mail.local", Port: 25, From: "rewards@example.com"})

	var gotAddr string
	var gotTo []string
	var gotMsg string
	p.send = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotTo, gotMsg = addr, to, string(msg)
		assert.Nil(t, a)
		return nil
	}

	err := p.SendTemplate(context.Background(), []string{"ops@example.com"}, "reward_awarded", map[string]any{
		"subject":        "custom",
		"tier_name":      "Bronze",
		"reward_minutes": int64(60),
	})
	require.NoError(t, err)
	assert.Equal(t, "mail.local:25", gotAddr)
	assert.Equal(t, []string{"ops@example.com"}, gotTo)
	assert.Contains(t, gotMsg, "Subject: custom\r\n")
	assert.Contains(t, gotMsg, "Bronze")
}

func TestSMTPSendWithoutRecipients(t *testing.T) {
	p := NewSMTP(Config{Host: "mail.local", Port: 25})
	assert.ErrorIs(t, p.Send(context.Background(), nil, "s", "b"), ErrNoRecipients)
}
