package notifier

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/smallbiznis/referral/internal/notification/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func sampleMessage() domain.RewardAwarded {
	expires := time.Date(2025, time.April, 1, 0, 0, 0, 0, time.UTC)
	return domain.RewardAwarded{
		Event:             domain.EventRewardAwarded,
		DedupeKey:         "01HZX3D7K6M8Q4R5S6T7V8W9XY",
		LedgerEntryID:     "10",
		ReferralID:        "20",
		BeneficiaryID:     "30",
		TierLevel:         2,
		TierName:          "Silver",
		RewardMinutes:     120,
		RewardCreditCents: 550,
		AwardedAt:         expires.Add(-30 * 24 * time.Hour),
		ExpiresAt:         &expires,
	}
}

func TestWebhookPostsMessage(t *testing.T) {
	var (
		got     domain.RewardAwarded
		headers http.Header
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		headers = r.Header.Clone()
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	hook := NewWebhook(WebhookConfig{URL: srv.URL, Timeout: time.Second})
	msg := sampleMessage()
	require.NoError(t, hook.Send(context.Background(), msg))

	assert.Equal(t, msg.DedupeKey, headers.Get(HeaderIdempotencyKey))
	assert.Equal(t, domain.EventRewardAwarded, headers.Get(HeaderEvent))
	assert.Equal(t, "application/json", headers.Get("Content-Type"))
	assert.Equal(t, msg.LedgerEntryID, got.LedgerEntryID)
	assert.Equal(t, int64(120), got.RewardMinutes)
}

func TestWebhookNon2xxFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	hook := NewWebhook(WebhookConfig{URL: srv.URL, Timeout: time.Second})
	err := hook.Send(context.Background(), sampleMessage())
	assert.ErrorIs(t, err, domain.ErrDeliveryFailed)
}

type fakeProvider struct {
	template string
	to       []string
	data     map[string]any
	err      error
}

func (p *fakeProvider) Send(context.Context, []string, string, string) error { return p.err }

func (p *fakeProvider) SendTemplate(_ context.Context, to []string, name string, data map[string]any) error {
	p.to, p.template, p.data = to, name, data
	return p.err
}

func TestEmailRendersRewardData(t *testing.T) {
	provider := &fakeProvider{}
	n := NewEmail(provider, []string{"ops@example.com"})

	require.NoError(t, n.Send(context.Background(), sampleMessage()))
	assert.Equal(t, rewardAwardedTemplate, provider.template)
	assert.Equal(t, []string{"ops@example.com"}, provider.to)
	assert.Equal(t, "Silver", provider.data["tier_name"])
	assert.Equal(t, "$5.50", provider.data["reward_credit"])
	assert.Equal(t, "Tue, 01 Apr 2025 00:00:00 UTC", provider.data["expires_at"])

	provider.err = errors.New("smtp down")
	assert.ErrorIs(t, n.Send(context.Background(), sampleMessage()), domain.ErrDeliveryFailed)
}

type stubNotifier struct {
	channel string
	err     error
	calls   int
}

func (s *stubNotifier) Channel() string { return s.channel }

func (s *stubNotifier) Send(context.Context, domain.RewardAwarded) error {
	s.calls++
	return s.err
}

func TestFanoutSendsToEveryChannel(t *testing.T) {
	ok := &stubNotifier{channel: "ok"}
	broken := &stubNotifier{channel: "broken", err: domain.ErrDeliveryFailed}
	fanout := NewFanout(zap.NewNop(), nil, broken, ok)

	err := fanout.Send(context.Background(), sampleMessage())
	assert.ErrorIs(t, err, domain.ErrDeliveryFailed)
	assert.Equal(t, 1, ok.calls)
	assert.Equal(t, 1, broken.calls)

	assert.ErrorIs(t, NewFanout(zap.NewNop(), nil).Send(context.Background(), sampleMessage()), domain.ErrNoChannels)
}
