package service

import (
	"context"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/referral/internal/balance/domain"
	"github.com/smallbiznis/referral/internal/balance/repository"
	"github.com/smallbiznis/referral/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestService(t *testing.T) domain.Service {
	t.Helper()
	return New(Params{
		DB:    testutil.OpenDB(t),
		Log:   zap.NewNop(),
		Clock: testutil.FakeClock(),
		GenID: testutil.Node(t),
		Repo:  repository.Provide(),
	})
}

func TestCreditAccumulates(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	account := snowflake.ID(11)

	_, err := svc.Credit(ctx, nil, domain.CreditRequest{AccountID: account, Source: domain.SourceClaimOne, ReferenceID: "a", Minutes: 60})
	require.NoError(t, err)
	_, err = svc.Credit(ctx, nil, domain.CreditRequest{AccountID: account, Source: domain.SourceClaimAll, ReferenceID: "b", Minutes: 120, CreditCents: 500})
	require.NoError(t, err)

	balance, err := svc.Get(ctx, account)
	require.NoError(t, err)
	assert.Equal(t, int64(180), balance.Minutes)
	assert.Equal(t, int64(500), balance.CreditCents)

	credits, err := svc.ListCredits(ctx, account, 10)
	require.NoError(t, err)
	assert.Len(t, credits, 2)
}

func TestCreditRejectsDuplicateReference(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	req := domain.CreditRequest{AccountID: 11, Source: domain.SourceClaimOne, ReferenceID: "entry-1", Minutes: 60}

	_, err := svc.Credit(ctx, nil, req)
	require.NoError(t, err)
	_, err = svc.Credit(ctx, nil, req)
	assert.ErrorIs(t, err, domain.ErrDuplicateCredit)

	// same reference under another source is a different credit
	req.Source = domain.SourceReferredBonus
	_, err = svc.Credit(ctx, nil, req)
	require.NoError(t, err)

	balance, err := svc.Get(ctx, 11)
	require.NoError(t, err)
	assert.Equal(t, int64(120), balance.Minutes)
}

func TestCreditValidation(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	cases := []struct {
		name string
		req  domain.CreditRequest
		err  error
	}{
		{"no account", domain.CreditRequest{Source: "s", ReferenceID: "r", Minutes: 1}, domain.ErrInvalidAccount},
		{"zero amount", domain.CreditRequest{AccountID: 1, Source: "s", ReferenceID: "r"}, domain.ErrInvalidAmount},
		{"negative", domain.CreditRequest{AccountID: 1, Source: "s", ReferenceID: "r", Minutes: -5}, domain.ErrInvalidAmount},
		{"no reference", domain.CreditRequest{AccountID: 1, Source: "s", ReferenceID: " ", Minutes: 1}, domain.ErrInvalidReference},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Credit(ctx, nil, tc.req)
			assert.ErrorIs(t, err, tc.err)
		})
	}
}

func TestGetUnknownAccountIsZero(t *testing.T) {
	svc := newTestService(t)
	balance, err := svc.Get(context.Background(), 42)
	require.NoError(t, err)
	assert.Equal(t, snowflake.ID(42), balance.AccountID)
	assert.Zero(t, balance.Minutes)
}
