package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/referral/internal/clock"
	"github.com/smallbiznis/referral/internal/referral/domain"
	"github.com/smallbiznis/referral/internal/referral/repository"
	statsdomain "github.com/smallbiznis/referral/internal/stats/domain"
	statsrepository "github.com/smallbiznis/referral/internal/stats/repository"
	statsservice "github.com/smallbiznis/referral/internal/stats/service"
	"github.com/smallbiznis/referral/internal/testutil"
	tierdomain "github.com/smallbiznis/referral/internal/tier/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const referrerID = snowflake.ID(1001)

type harness struct {
	db    *gorm.DB
	clock *clock.FakeClock
	repo  domain.Repository
	stats statsdomain.Service
	svc   *Service
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	db := testutil.OpenDB(t)
	clk := testutil.FakeClock()
	cfg := testutil.Config()
	repo := repository.Provide()
	statsRepo := statsrepository.Provide()
	stats := statsservice.New(statsservice.Params{
		DB:     db,
		Log:    zap.NewNop(),
		Config: cfg,
		Repo:   statsRepo,
		Tiers:  tierdomain.NewStaticProvider(tierdomain.DefaultTable()),
	})
	svc := New(Params{
		DB:        db,
		Log:       zap.NewNop(),
		Config:    cfg,
		Clock:     clk,
		GenID:     testutil.Node(t),
		Repo:      repo,
		StatsRepo: statsRepo,
		Stats:     stats,
	}).(*Service)
	return &harness{db: db, clock: clk, repo: repo, stats: stats, svc: svc}
}

func (h *harness) create(t *testing.T, identity string) domain.Referral {
	t.Helper()
	referral, err := h.svc.Create(context.Background(), domain.CreateRequest{
		ReferrerID:       referrerID,
		ReferredIdentity: identity,
	})
	require.NoError(t, err)
	return referral
}

func (h *harness) reload(t *testing.T, id snowflake.ID) domain.Referral {
	t.Helper()
	referral, err := h.svc.Get(context.Background(), id)
	require.NoError(t, err)
	return referral
}

func (h *harness) summary(t *testing.T) statsdomain.Statistics {
	t.Helper()
	summary, err := h.stats.Get(context.Background(), referrerID)
	require.NoError(t, err)
	return summary.Statistics
}

func TestCreateGeneratesCodeAndNormalizesIdentity(t *testing.T) {
	h := newHarness(t)

	referral := h.create(t, "  Friend@Example.com ")
	assert.Regexp(t, `^[A-Z]{3}-[0-9]{3}$`, referral.ReferralCode)
	assert.Equal(t, "friend@example.com", referral.ReferredIdentity)
	assert.Equal(t, domain.StatusPending, referral.Status)
	assert.Equal(t, "default", referral.ProductContext)

	stored := h.reload(t, referral.ID)
	assert.Equal(t, referral.ReferralCode, stored.ReferralCode)
	assert.Zero(t, stored.ClickedCount)
}

func TestCreateRejectsSecondReferralForIdentity(t *testing.T) {
	h := newHarness(t)
	h.create(t, "friend@example.com")

	_, err := h.svc.Create(context.Background(), domain.CreateRequest{
		ReferrerID:       snowflake.ID(2002),
		ReferredIdentity: "FRIEND@example.com",
	})
	assert.ErrorIs(t, err, domain.ErrAlreadyReferred)
}

func TestCreateValidatesInput(t *testing.T) {
	h := newHarness(t)
	_, err := h.svc.Create(context.Background(), domain.CreateRequest{ReferredIdentity: "a@b.c"})
	assert.ErrorIs(t, err, domain.ErrInvalidReferrer)
	_, err = h.svc.Create(context.Background(), domain.CreateRequest{ReferrerID: referrerID, ReferredIdentity: "  "})
	assert.ErrorIs(t, err, domain.ErrInvalidIdentity)
}

func TestRecordClickUnknownCodeIsNoop(t *testing.T) {
	h := newHarness(t)
	result, err := h.svc.RecordClick(context.Background(), "ZZZ-999")
	require.NoError(t, err)
	assert.False(t, result.Recorded)
}

func TestRecordClickMovesPendingToClickedOnce(t *testing.T) {
	h := newHarness(t)
	referral := h.create(t, "friend@example.com")

	first, err := h.svc.RecordClick(context.Background(), referral.ReferralCode)
	require.NoError(t, err)
	assert.True(t, first.Recorded)

	h.clock.Advance(time.Minute)
	_, err = h.svc.RecordClick(context.Background(), " "+referral.ReferralCode+" ")
	require.NoError(t, err)

	stored := h.reload(t, referral.ID)
	assert.Equal(t, domain.StatusClicked, stored.Status)
	assert.Equal(t, int64(2), stored.ClickedCount)
	require.NotNil(t, stored.LastClickedAt)
	assert.True(t, stored.LastClickedAt.Equal(testutil.Epoch.Add(time.Minute)))
	assert.Equal(t, int64(2), h.summary(t).TotalClicks)
}

func TestRecordClickAfterSignupKeepsStatusAndLastClicked(t *testing.T) {
	h := newHarness(t)
	referral := h.create(t, "friend@example.com")
	_, err := h.svc.RecordClick(context.Background(), referral.ReferralCode)
	require.NoError(t, err)

	h.clock.Advance(time.Minute)
	_, err = h.svc.RecordSignup(context.Background(), domain.SignupRequest{
		Code:             referral.ReferralCode,
		ReferredIdentity: "friend@example.com",
	})
	require.NoError(t, err)

	h.clock.Advance(time.Minute)
	result, err := h.svc.RecordClick(context.Background(), referral.ReferralCode)
	require.NoError(t, err)
	assert.True(t, result.Recorded)

	stored := h.reload(t, referral.ID)
	assert.Equal(t, domain.StatusSignedUp, stored.Status)
	assert.Equal(t, int64(2), stored.ClickedCount)
	require.NotNil(t, stored.LastClickedAt)
	assert.True(t, stored.LastClickedAt.Equal(testutil.Epoch), "last click after signup must not move last_clicked_at")
}

func TestRecordClickOnClosedReferralIsIgnored(t *testing.T) {
	h := newHarness(t)
	referral := h.create(t, "friend@example.com")
	_, err := h.svc.Cancel(context.Background(), referral.ID)
	require.NoError(t, err)

	result, err := h.svc.RecordClick(context.Background(), referral.ReferralCode)
	require.NoError(t, err)
	assert.False(t, result.Recorded)
	assert.Zero(t, h.reload(t, referral.ID).ClickedCount)
	assert.Zero(t, h.summary(t).TotalClicks)
}

func TestRecordSignupRequiresMatchingIdentity(t *testing.T) {
	h := newHarness(t)
	referral := h.create(t, "friend@example.com")

	_, err := h.svc.RecordSignup(context.Background(), domain.SignupRequest{
		Code:             referral.ReferralCode,
		ReferredIdentity: "stranger@example.com",
	})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = h.svc.RecordSignup(context.Background(), domain.SignupRequest{
		Code:             "QQQ-000",
		ReferredIdentity: "friend@example.com",
	})
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.Equal(t, domain.StatusPending, h.reload(t, referral.ID).Status)
}

func TestRecordSignupIsIdempotent(t *testing.T) {
	h := newHarness(t)
	referral := h.create(t, "friend@example.com")
	party := snowflake.ID(777)

	for i := 0; i < 3; i++ {
		out, err := h.svc.RecordSignup(context.Background(), domain.SignupRequest{
			Code:             referral.ReferralCode,
			ReferredIdentity: "FRIEND@example.com",
			ReferredPartyID:  &party,
		})
		require.NoError(t, err)
		assert.Equal(t, domain.StatusSignedUp, out.Status)
		h.clock.Advance(time.Second)
	}

	stored := h.reload(t, referral.ID)
	require.NotNil(t, stored.SignupAt)
	assert.True(t, stored.SignupAt.Equal(testutil.Epoch), "signup_at is set once")
	require.NotNil(t, stored.ReferredPartyID)
	assert.Equal(t, party, *stored.ReferredPartyID)
	assert.Equal(t, int64(1), h.summary(t).TotalSignups)
}

func TestRecordSignupOnClosedReferral(t *testing.T) {
	h := newHarness(t)
	referral := h.create(t, "friend@example.com")
	_, err := h.svc.Expire(context.Background(), referral.ID)
	require.NoError(t, err)

	out, err := h.svc.RecordSignup(context.Background(), domain.SignupRequest{
		Code:             referral.ReferralCode,
		ReferredIdentity: "friend@example.com",
	})
	assert.ErrorIs(t, err, domain.ErrReferralClosed)
	assert.Equal(t, domain.StatusExpired, out.Status)
	assert.Zero(t, h.summary(t).TotalSignups)
}

func TestMilestonesStayOrderedWhenClockGoesBack(t *testing.T) {
	h := newHarness(t)
	referral := h.create(t, "friend@example.com")

	h.clock.Advance(time.Hour)
	_, err := h.svc.RecordClick(context.Background(), referral.ReferralCode)
	require.NoError(t, err)

	h.clock.Set(testutil.Epoch.Add(10 * time.Minute))
	_, err = h.svc.RecordSignup(context.Background(), domain.SignupRequest{
		Code:             referral.ReferralCode,
		ReferredIdentity: "friend@example.com",
	})
	require.NoError(t, err)

	stored := h.reload(t, referral.ID)
	require.NotNil(t, stored.LastClickedAt)
	require.NotNil(t, stored.SignupAt)
	assert.False(t, stored.SignupAt.Before(*stored.LastClickedAt))
	assert.False(t, stored.LastClickedAt.Before(stored.CreatedAt))
}

func TestExpireIsIdempotentAndRejectedAfterActivation(t *testing.T) {
	h := newHarness(t)
	referral := h.create(t, "friend@example.com")

	first, err := h.svc.Expire(context.Background(), referral.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusExpired, first.Status)
	require.NotNil(t, first.ExpiredAt)

	h.clock.Advance(time.Hour)
	second, err := h.svc.Expire(context.Background(), referral.ID)
	require.NoError(t, err)
	assert.True(t, second.ExpiredAt.Equal(*first.ExpiredAt))

	_, err = h.svc.Cancel(context.Background(), referral.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	active := h.create(t, "active@example.com")
	_, err = h.svc.RecordSignup(context.Background(), domain.SignupRequest{Code: active.ReferralCode, ReferredIdentity: "active@example.com"})
	require.NoError(t, err)
	applied, err := h.repo.Transition(context.Background(), h.db, active.ID, domain.StatusSignedUp, domain.StatusActive, h.clock.Now())
	require.NoError(t, err)
	require.True(t, applied)

	_, err = h.svc.Expire(context.Background(), active.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
	_, err = h.svc.Cancel(context.Background(), active.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
}

func TestExpireUnknownReferral(t *testing.T) {
	h := newHarness(t)
	_, err := h.svc.Expire(context.Background(), snowflake.ID(42))
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestExpireStaleOnlyTouchesPreSignupReferrals(t *testing.T) {
	h := newHarness(t)
	stale := h.create(t, "stale@example.com")
	clicked := h.create(t, "clicked@example.com")
	_, err := h.svc.RecordClick(context.Background(), clicked.ReferralCode)
	require.NoError(t, err)
	signed := h.create(t, "signed@example.com")
	_, err = h.svc.RecordSignup(context.Background(), domain.SignupRequest{Code: signed.ReferralCode, ReferredIdentity: "signed@example.com"})
	require.NoError(t, err)

	h.clock.Advance(31 * 24 * time.Hour)
	fresh := h.create(t, "fresh@example.com")

	n, err := h.svc.ExpireStale(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	assert.Equal(t, domain.StatusExpired, h.reload(t, stale.ID).Status)
	assert.Equal(t, domain.StatusExpired, h.reload(t, clicked.ID).Status)
	assert.Equal(t, domain.StatusSignedUp, h.reload(t, signed.ID).Status)
	assert.Equal(t, domain.StatusPending, h.reload(t, fresh.ID).Status)

	n, err = h.svc.ExpireStale(context.Background(), 10)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestListPaginatesNewestFirst(t *testing.T) {
	h := newHarness(t)
	var ids []snowflake.ID
	for _, identity := range []string{"a@example.com", "b@example.com", "c@example.com"} {
		ids = append(ids, h.create(t, identity).ID)
		h.clock.Advance(time.Millisecond)
	}

	page1, err := h.svc.List(context.Background(), domain.ListRequest{ReferrerID: referrerID, PageSize: 2})
	require.NoError(t, err)
	require.Len(t, page1.Referrals, 2)
	assert.True(t, page1.HasMore)
	assert.NotEmpty(t, page1.NextPageToken)
	assert.Equal(t, ids[2], page1.Referrals[0].ID)

	page2, err := h.svc.List(context.Background(), domain.ListRequest{ReferrerID: referrerID, PageSize: 2, PageToken: page1.NextPageToken})
	require.NoError(t, err)
	require.Len(t, page2.Referrals, 1)
	assert.False(t, page2.HasMore)
	assert.Equal(t, ids[0], page2.Referrals[0].ID)

	_, err = h.svc.List(context.Background(), domain.ListRequest{ReferrerID: referrerID, Status: "bogus"})
	assert.ErrorIs(t, err, domain.ErrInvalidStatus)
}

func TestGenerateCodeShape(t *testing.T) {
	for i := 0; i < 50; i++ {
		code, err := generateCode()
		require.NoError(t, err)
		if !validCode(code) {
			t.Fatalf("generated %q", code)
		}
	}
}
