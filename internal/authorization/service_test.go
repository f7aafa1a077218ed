package authorization

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestService(t *testing.T) Service {
	t.Helper()
	enforcer, err := NewMemoryEnforcer()
	require.NoError(t, err)
	return NewService(Params{Log: zap.NewNop(), Enforcer: enforcer})
}

func TestRolePermissions(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	cases := []struct {
		role   string
		object string
		action string
		allow  bool
	}{
		{RoleApp, ObjectFunnel, ActionTrack, true},
		{RoleApp, ObjectReward, ActionClaim, true},
		{RoleApp, ObjectReward, ActionActivate, false},
		{RoleApp, ObjectReferral, ActionExpire, false},
		{RoleBilling, ObjectReward, ActionActivate, true},
		{RoleBilling, ObjectFunnel, ActionTrack, false},
		{RoleBilling, ObjectReward, ActionClaim, false},
		{RoleAdmin, ObjectReferral, ActionCancel, true},
		{RoleAdmin, ObjectReward, ActionForceActivate, true},
		{RoleAdmin, ObjectReward, ActionActivate, true},
		{RoleAdmin, ObjectFunnel, ActionTrack, true},
	}
	for _, tc := range cases {
		err := svc.Authorize(ctx, "api_key:"+tc.role, tc.role, tc.object, tc.action)
		if tc.allow {
			assert.NoError(t, err, "%s %s.%s", tc.role, tc.object, tc.action)
		} else {
			assert.ErrorIs(t, err, ErrForbidden, "%s %s.%s", tc.role, tc.object, tc.action)
		}
	}
}

func TestRoleChangeDropsOldGrant(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.Authorize(ctx, "api_key:abc", RoleAdmin, ObjectReferral, ActionExpire))
	err := svc.Authorize(ctx, "api_key:abc", RoleApp, ObjectReferral, ActionExpire)
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestAuthorizeValidatesInput(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	assert.ErrorIs(t, svc.Authorize(ctx, "", RoleApp, ObjectTier, ActionView), ErrInvalidActor)
	assert.ErrorIs(t, svc.Authorize(ctx, "k", "root", ObjectTier, ActionView), ErrInvalidRole)
	assert.ErrorIs(t, svc.Authorize(ctx, "k", RoleApp, "", ActionView), ErrInvalidObject)
	assert.ErrorIs(t, svc.Authorize(ctx, "k", RoleApp, ObjectTier, " "), ErrInvalidAction)
}
