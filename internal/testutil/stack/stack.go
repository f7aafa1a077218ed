// Package stack assembles every service over one in-memory store for tests
// that cross package boundaries.
package stack

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/bwmarrin/snowflake"
	balancedomain "github.com/smallbiznis/referral/internal/balance/domain"
	balancerepository "github.com/smallbiznis/referral/internal/balance/repository"
	balanceservice "github.com/smallbiznis/referral/internal/balance/service"
	claimdomain "github.com/smallbiznis/referral/internal/claim/domain"
	claimservice "github.com/smallbiznis/referral/internal/claim/service"
	"github.com/smallbiznis/referral/internal/clock"
	"github.com/smallbiznis/referral/internal/config"
	notificationdomain "github.com/smallbiznis/referral/internal/notification/domain"
	notificationrepository "github.com/smallbiznis/referral/internal/notification/repository"
	notificationservice "github.com/smallbiznis/referral/internal/notification/service"
	referraldomain "github.com/smallbiznis/referral/internal/referral/domain"
	referralrepository "github.com/smallbiznis/referral/internal/referral/repository"
	referralservice "github.com/smallbiznis/referral/internal/referral/service"
	rewarddomain "github.com/smallbiznis/referral/internal/reward/domain"
	rewardrepository "github.com/smallbiznis/referral/internal/reward/repository"
	rewardservice "github.com/smallbiznis/referral/internal/reward/service"
	statsdomain "github.com/smallbiznis/referral/internal/stats/domain"
	statsrepository "github.com/smallbiznis/referral/internal/stats/repository"
	statsservice "github.com/smallbiznis/referral/internal/stats/service"
	"github.com/smallbiznis/referral/internal/testutil"
	tierdomain "github.com/smallbiznis/referral/internal/tier/domain"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// RecordingNotifier captures sent messages and fails while Fail is set.
type RecordingNotifier struct {
	mu   sync.Mutex
	sent []notificationdomain.RewardAwarded
	fail bool
}

func (n *RecordingNotifier) Channel() string { return "recording" }

func (n *RecordingNotifier) Send(_ context.Context, msg notificationdomain.RewardAwarded) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.fail {
		return errors.New("channel down")
	}
	n.sent = append(n.sent, msg)
	return nil
}

func (n *RecordingNotifier) SetFail(fail bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.fail = fail
}

func (n *RecordingNotifier) Sent() []notificationdomain.RewardAwarded {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]notificationdomain.RewardAwarded(nil), n.sent...)
}

type Stack struct {
	DB       *gorm.DB
	Clock    *clock.FakeClock
	Config   config.Config
	Tiers    tierdomain.Provider
	Notifier *RecordingNotifier

	ReferralRepo     referraldomain.Repository
	LedgerRepo       rewarddomain.Repository
	StatsRepo        statsdomain.Repository
	NotificationRepo notificationdomain.Repository

	Referrals  referraldomain.Service
	Rewards    rewarddomain.Service
	Claims     claimdomain.Service
	Stats      statsdomain.Service
	Balances   balancedomain.Service
	Dispatcher *notificationservice.Dispatcher
}

// New builds the stack. mutate, when given, adjusts the config first.
func New(t testing.TB, mutate ...func(*config.Config)) *Stack {
	t.Helper()

	cfg := testutil.Config()
	for _, fn := range mutate {
		fn(&cfg)
	}

	db := testutil.OpenDB(t)
	clk := testutil.FakeClock()
	node := testutil.Node(t)
	log := zap.NewNop()
	tiers := tierdomain.NewStaticProvider(tierdomain.DefaultTable())
	notifier := &RecordingNotifier{}

	s := &Stack{
		DB:               db,
		Clock:            clk,
		Config:           cfg,
		Tiers:            tiers,
		Notifier:         notifier,
		ReferralRepo:     referralrepository.Provide(),
		LedgerRepo:       rewardrepository.Provide(),
		StatsRepo:        statsrepository.Provide(),
		NotificationRepo: notificationrepository.Provide(),
	}

	s.Stats = statsservice.New(statsservice.Params{
		DB: db, Log: log, Config: cfg, Repo: s.StatsRepo, Tiers: tiers,
	})
	s.Balances = balanceservice.New(balanceservice.Params{
		DB: db, Log: log, Clock: clk, GenID: node, Repo: balancerepository.Provide(),
	})
	s.Dispatcher = notificationservice.New(notificationservice.Params{
		DB: db, Log: log, Config: cfg, Clock: clk, GenID: node,
		Repo: s.NotificationRepo, Notifier: notifier,
	})
	// runs before the store closes
	t.Cleanup(s.Dispatcher.Wait)

	s.Referrals = referralservice.New(referralservice.Params{
		DB: db, Log: log, Config: cfg, Clock: clk, GenID: node,
		Repo: s.ReferralRepo, StatsRepo: s.StatsRepo, Stats: s.Stats,
	})
	s.Rewards = rewardservice.New(rewardservice.Params{
		DB: db, Log: log, Config: cfg, Clock: clk, GenID: node,
		Repo: s.LedgerRepo, ReferralRepo: s.ReferralRepo,
		StatsRepo: s.StatsRepo, Stats: s.Stats, Tiers: tiers,
		Crediter: s.Balances, Dispatcher: s.Dispatcher,
	})
	s.Claims = claimservice.New(claimservice.Params{
		DB: db, Log: log, Config: cfg, Clock: clk,
		Ledger: s.LedgerRepo, StatsRepo: s.StatsRepo, Stats: s.Stats,
		Crediter: s.Balances,
	})
	return s
}

// SignedUp creates a referral for identity and walks it through click and signup.
func (s *Stack) SignedUp(t testing.TB, referrerID snowflake.ID, identity string) referraldomain.Referral {
	t.Helper()
	ctx := context.Background()

	referral, err := s.Referrals.Create(ctx, referraldomain.CreateRequest{
		ReferrerID:       referrerID,
		ReferredIdentity: identity,
	})
	if err != nil {
		t.Fatalf("create referral: %v", err)
	}
	if _, err := s.Referrals.RecordClick(ctx, referral.ReferralCode); err != nil {
		t.Fatalf("click: %v", err)
	}
	out, err := s.Referrals.RecordSignup(ctx, referraldomain.SignupRequest{
		Code:             referral.ReferralCode,
		ReferredIdentity: identity,
	})
	if err != nil {
		t.Fatalf("signup: %v", err)
	}
	return out
}
