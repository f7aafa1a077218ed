package service_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/referral/internal/config"
	notificationdomain "github.com/smallbiznis/referral/internal/notification/domain"
	referraldomain "github.com/smallbiznis/referral/internal/referral/domain"
	"github.com/smallbiznis/referral/internal/reward/domain"
	statsdomain "github.com/smallbiznis/referral/internal/stats/domain"
	"github.com/smallbiznis/referral/internal/testutil"
	"github.com/smallbiznis/referral/internal/testutil/stack"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const referrerID = snowflake.ID(5001)

func statistics(t *testing.T, s *stack.Stack) statsdomain.Statistics {
	t.Helper()
	summary, err := s.Stats.Get(context.Background(), referrerID)
	require.NoError(t, err)
	return summary.Statistics
}

func TestActivateAwardsOnce(t *testing.T) {
	s := stack.New(t)
	referral := s.SignedUp(t, referrerID, "friend@example.com")

	first, err := s.Rewards.Activate(context.Background(), referral.ID)
	require.NoError(t, err)
	assert.True(t, first.Created)
	assert.Equal(t, "Bronze", first.Entry.TierName)
	assert.Equal(t, int64(60), first.Entry.RewardMinutes)
	assert.Equal(t, referrerID, first.Entry.BeneficiaryID)
	require.NotNil(t, first.Entry.ExpiresAt)
	assert.True(t, first.Entry.ExpiresAt.Equal(testutil.Epoch.Add(30*24*time.Hour)))

	second, err := s.Rewards.Activate(context.Background(), referral.ID)
	require.NoError(t, err)
	assert.False(t, second.Created)
	assert.Equal(t, first.Entry.ID, second.Entry.ID)

	stored, err := s.Referrals.Get(context.Background(), referral.ID)
	require.NoError(t, err)
	assert.Equal(t, referraldomain.StatusRewarded, stored.Status)
	require.NotNil(t, stored.ActivatedAt)
	require.NotNil(t, stored.RewardedAt)

	stats := statistics(t, s)
	assert.Equal(t, int64(1), stats.TotalRewardsEarned)
	assert.Equal(t, int64(1), stats.TotalActive)
	assert.Equal(t, int64(60), stats.AvailableMinutes)
}

func TestConcurrentActivationYieldsOneEntry(t *testing.T) {
	s := stack.New(t)
	referral := s.SignedUp(t, referrerID, "friend@example.com")

	const workers = 8
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		created  int
		entryIDs = map[snowflake.ID]struct{}{}
		errs     []error
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			outcome, err := s.Rewards.Activate(context.Background(), referral.ID)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
				return
			}
			if outcome.Created {
				created++
			}
			entryIDs[outcome.Entry.ID] = struct{}{}
		}()
	}
	wg.Wait()

	require.Empty(t, errs)
	assert.Equal(t, 1, created)
	assert.Len(t, entryIDs, 1)

	count, err := s.LedgerRepo.CountByBeneficiary(context.Background(), s.DB, referrerID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
	assert.Equal(t, int64(1), statistics(t, s).TotalRewardsEarned)
}

func TestActivateLosingUniqueKeyReturnsWinnersEntry(t *testing.T) {
	s := stack.New(t)
	ctx := context.Background()
	referral := s.SignedUp(t, referrerID, "friend@example.com")
	before := statistics(t, s).TotalRewardsEarned

	// a concurrent activation committed its entry after this one read the referral
	winner := domain.LedgerEntry{
		ID:            snowflake.ID(99),
		ReferralID:    referral.ID,
		BeneficiaryID: referrerID,
		RewardMinutes: 60,
		TierLevel:     1,
		TierName:      "Bronze",
		AwardedAt:     testutil.Epoch,
	}
	inserted, err := s.LedgerRepo.InsertIgnore(ctx, s.DB, &winner)
	require.NoError(t, err)
	require.True(t, inserted)

	outcome, err := s.Rewards.Activate(ctx, referral.ID)
	require.NoError(t, err)
	assert.False(t, outcome.Created)
	assert.Equal(t, winner.ID, outcome.Entry.ID)
	assert.Equal(t, referral.ID, outcome.ReferralID)

	count, err := s.LedgerRepo.CountByBeneficiary(ctx, s.DB, referrerID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
	assert.Equal(t, before, statistics(t, s).TotalRewardsEarned)

	// the losing transaction rolled back its signed_up -> active move
	stored, err := s.Referrals.Get(ctx, referral.ID)
	require.NoError(t, err)
	assert.Equal(t, referraldomain.StatusSignedUp, stored.Status)
	assert.Empty(t, s.Notifier.Sent())
}

func TestTierFollowsRewardsEarnedBeforeAward(t *testing.T) {
	s := stack.New(t)
	want := []string{"Bronze", "Bronze", "Silver", "Silver", "Silver", "Gold"}

	lastLevel := 0
	for i, tier := range want {
		referral := s.SignedUp(t, referrerID, fmt.Sprintf("friend%d@example.com", i))
		outcome, err := s.Rewards.Activate(context.Background(), referral.ID)
		require.NoError(t, err)
		assert.Equal(t, tier, outcome.Entry.TierName, "award %d", i)
		assert.GreaterOrEqual(t, outcome.Entry.TierLevel, lastLevel)
		lastLevel = outcome.Entry.TierLevel
	}

	stats := statistics(t, s)
	assert.Equal(t, int64(len(want)), stats.TotalRewardsEarned)
	assert.Equal(t, "gold", stats.CurrentTier)
	assert.Equal(t, int64(60+60+120+120+120+240), stats.AvailableMinutes)
	assert.Equal(t, int64(500*3+1000), stats.AvailableCreditCents)
}

func TestActivateRejectsUnconvertedReferrals(t *testing.T) {
	s := stack.New(t)
	ctx := context.Background()

	pending, err := s.Referrals.Create(ctx, referraldomain.CreateRequest{ReferrerID: referrerID, ReferredIdentity: "pending@example.com"})
	require.NoError(t, err)
	_, err = s.Rewards.Activate(ctx, pending.ID)
	assert.ErrorIs(t, err, domain.ErrNotActivatable)

	expired := s.SignedUp(t, referrerID, "late@example.com")
	_, err = s.Referrals.Expire(ctx, expired.ID)
	require.NoError(t, err)
	_, err = s.Rewards.Activate(ctx, expired.ID)
	assert.ErrorIs(t, err, domain.ErrReferralExpired)

	_, err = s.Rewards.Activate(ctx, snowflake.ID(12345))
	assert.ErrorIs(t, err, domain.ErrNotFound)

	assert.Zero(t, statistics(t, s).TotalRewardsEarned)
}

func TestActivateByIdentity(t *testing.T) {
	s := stack.New(t)
	ctx := context.Background()

	_, err := s.Rewards.ActivateByIdentity(ctx, "nobody@example.com")
	assert.ErrorIs(t, err, domain.ErrNoPendingReferral)

	_, err = s.Referrals.Create(ctx, referraldomain.CreateRequest{ReferrerID: referrerID, ReferredIdentity: "pending@example.com"})
	require.NoError(t, err)
	_, err = s.Rewards.ActivateByIdentity(ctx, "pending@example.com")
	assert.ErrorIs(t, err, domain.ErrNoPendingReferral)

	s.SignedUp(t, referrerID, "friend@example.com")
	outcome, err := s.Rewards.ActivateByIdentity(ctx, " FRIEND@example.com")
	require.NoError(t, err)
	assert.True(t, outcome.Created)
}

func TestActivateByPartyCreditsReferredBonus(t *testing.T) {
	s := stack.New(t, func(cfg *config.Config) {
		cfg.Referral.ReferredBonusMinutes = 15
	})
	ctx := context.Background()
	party := snowflake.ID(9090)

	referral, err := s.Referrals.Create(ctx, referraldomain.CreateRequest{ReferrerID: referrerID, ReferredIdentity: "friend@example.com"})
	require.NoError(t, err)
	_, err = s.Referrals.RecordSignup(ctx, referraldomain.SignupRequest{
		Code:             referral.ReferralCode,
		ReferredIdentity: "friend@example.com",
		ReferredPartyID:  &party,
	})
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		_, err := s.Rewards.ActivateByParty(ctx, party)
		require.NoError(t, err)
	}

	balance, err := s.Balances.Get(ctx, party)
	require.NoError(t, err)
	assert.Equal(t, int64(15), balance.Minutes)

	_, err = s.Rewards.ActivateByParty(ctx, snowflake.ID(1))
	assert.ErrorIs(t, err, domain.ErrNoPendingReferral)
}

func TestActivateNotifiesBeneficiary(t *testing.T) {
	s := stack.New(t)
	referral := s.SignedUp(t, referrerID, "friend@example.com")

	outcome, err := s.Rewards.Activate(context.Background(), referral.ID)
	require.NoError(t, err)
	s.Dispatcher.Wait()

	sent := s.Notifier.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, notificationdomain.EventRewardAwarded, sent[0].Event)
	assert.Equal(t, outcome.Entry.ID.String(), sent[0].LedgerEntryID)
	assert.Equal(t, "Bronze", sent[0].TierName)
	assert.NotEmpty(t, sent[0].DedupeKey)

	// replays do not enqueue again
	_, err = s.Rewards.Activate(context.Background(), referral.ID)
	require.NoError(t, err)
	s.Dispatcher.Wait()
	assert.Len(t, s.Notifier.Sent(), 1)
}

func TestListRewardsSplitsActiveAndExpired(t *testing.T) {
	s := stack.New(t)
	ctx := context.Background()

	old := s.SignedUp(t, referrerID, "old@example.com")
	_, err := s.Rewards.Activate(ctx, old.ID)
	require.NoError(t, err)

	s.Clock.Advance(20 * 24 * time.Hour)
	recent := s.SignedUp(t, referrerID, "recent@example.com")
	recentOutcome, err := s.Rewards.Activate(ctx, recent.ID)
	require.NoError(t, err)

	s.Clock.Advance(15 * 24 * time.Hour)
	view, err := s.Rewards.ListRewards(ctx, referrerID)
	require.NoError(t, err)
	require.Len(t, view.Active, 1)
	require.Len(t, view.Expired, 1)
	assert.Equal(t, recentOutcome.Entry.ID, view.Active[0].ID)
	assert.Zero(t, view.Claimed.Count)

	_, err = s.Rewards.ListRewards(ctx, 0)
	assert.ErrorIs(t, err, domain.ErrInvalidBeneficiary)
}
