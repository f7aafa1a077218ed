package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/referral/internal/authorization"
	"github.com/smallbiznis/referral/internal/config"
	"github.com/smallbiznis/referral/internal/observability"
	referraldomain "github.com/smallbiznis/referral/internal/referral/domain"
	"github.com/smallbiznis/referral/internal/testutil/stack"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	appKey     = "app-secret"
	billingKey = "billing-secret"
	adminKey   = "admin-secret"
)

const referrerID = snowflake.ID(1001)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestServer(t *testing.T) (*Server, *stack.Stack) {
	t.Helper()

	st := stack.New(t, func(cfg *config.Config) {
		cfg.APIKeys = map[string]string{
			appKey:     authorization.RoleApp,
			billingKey: authorization.RoleBilling,
			adminKey:   authorization.RoleAdmin,
			"orphan":   "superuser",
		}
	})
	enforcer, err := authorization.NewMemoryEnforcer()
	require.NoError(t, err)

	srv := NewServer(ServerParams{
		Gin:         NewEngine(observability.Config{}, nil),
		Cfg:         st.Config,
		Log:         zap.NewNop(),
		AuthzSvc:    authorization.NewService(authorization.Params{Log: zap.NewNop(), Enforcer: enforcer}),
		ReferralSvc: st.Referrals,
		RewardSvc:   st.Rewards,
		ClaimSvc:    st.Claims,
		StatsSvc:    st.Stats,
		Tiers:       st.Tiers,
	})
	return srv, st
}

type call struct {
	method      string
	path        string
	key         string
	beneficiary snowflake.ID
	body        any
}

func do(t *testing.T, srv *Server, c call) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()

	var body bytes.Buffer
	if c.body != nil {
		require.NoError(t, json.NewEncoder(&body).Encode(c.body))
	}
	req := httptest.NewRequest(c.method, c.path, &body)
	req.Header.Set("Content-Type", "application/json")
	if c.key != "" {
		req.Header.Set("Authorization", "Bearer "+c.key)
	}
	if c.beneficiary != 0 {
		req.Header.Set(HeaderBeneficiary, c.beneficiary.String())
	}

	rec := httptest.NewRecorder()
	srv.Engine().ServeHTTP(rec, req)

	var out map[string]any
	if rec.Body.Len() > 0 {
		_ = json.Unmarshal(rec.Body.Bytes(), &out)
	}
	return rec, out
}

func errorType(out map[string]any) string {
	payload, _ := out["error"].(map[string]any)
	value, _ := payload["type"].(string)
	return value
}

func createReferral(t *testing.T, srv *Server, identity string) referraldomain.Referral {
	t.Helper()
	rec, _ := do(t, srv, call{
		method: http.MethodPost, path: "/api/v1/referrals", key: appKey, beneficiary: referrerID,
		body: gin.H{"referred_identity": identity},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp struct {
		Data referraldomain.Referral `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.Data
}

func TestAuthentication(t *testing.T) {
	srv, _ := newTestServer(t)

	cases := []struct {
		name string
		key  string
		want int
	}{
		{name: "missing", key: "", want: http.StatusUnauthorized},
		{name: "unknown", key: "nope", want: http.StatusUnauthorized},
		{name: "unknown role is not loaded", key: "orphan", want: http.StatusUnauthorized},
		{name: "valid", key: appKey, want: http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec, _ := do(t, srv, call{method: http.MethodGet, path: "/api/v1/tiers", key: tc.key})
			assert.Equal(t, tc.want, rec.Code)
		})
	}
}

func TestRolesAreEnforced(t *testing.T) {
	srv, _ := newTestServer(t)

	rec, out := do(t, srv, call{
		method: http.MethodPost, path: "/api/v1/track", key: billingKey,
		body: gin.H{"code": "ABC-123", "action": "click"},
	})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "forbidden", errorType(out))

	rec, _ = do(t, srv, call{
		method: http.MethodPost, path: "/api/v1/activate", key: appKey,
		body: gin.H{"referred_identity": "someone@example.com"},
	})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec, _ = do(t, srv, call{method: http.MethodPost, path: "/api/v1/admin/referrals/1/expire", key: appKey})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestBeneficiaryHeader(t *testing.T) {
	srv, _ := newTestServer(t)

	rec, out := do(t, srv, call{method: http.MethodGet, path: "/api/v1/statistics", key: appKey})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "validation_error", errorType(out))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/rewards", nil)
	req.Header.Set("Authorization", "Bearer "+appKey)
	req.Header.Set(HeaderBeneficiary, "not-a-number")
	res := httptest.NewRecorder()
	srv.Engine().ServeHTTP(res, req)
	assert.Equal(t, http.StatusBadRequest, res.Code)
}

func TestTrackFunnel(t *testing.T) {
	srv, st := newTestServer(t)
	referral := createReferral(t, srv, "Friend@Example.com")

	rec, out := do(t, srv, call{
		method: http.MethodPost, path: "/api/v1/track", key: appKey,
		body: gin.H{"code": referral.ReferralCode, "action": "click"},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, out["success"])

	// unknown codes look the same to the caller
	rec, out = do(t, srv, call{
		method: http.MethodPost, path: "/api/v1/track", key: appKey,
		body: gin.H{"code": "ZZZ-999", "action": "click"},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, out["success"])

	rec, _ = do(t, srv, call{
		method: http.MethodPost, path: "/api/v1/track", key: appKey,
		body: gin.H{"code": referral.ReferralCode, "action": "signup", "referred_identity": "nobody@example.com"},
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	for i := 0; i < 2; i++ {
		rec, _ = do(t, srv, call{
			method: http.MethodPost, path: "/api/v1/track", key: appKey,
			body: gin.H{"code": referral.ReferralCode, "action": "signup", "referred_identity": "friend@example.com"},
		})
		require.Equal(t, http.StatusOK, rec.Code)
	}

	got, err := st.Referrals.Get(context.Background(), referral.ID)
	require.NoError(t, err)
	assert.Equal(t, referraldomain.StatusSignedUp, got.Status)
	assert.EqualValues(t, 1, got.ClickedCount)
}

func TestTrackValidation(t *testing.T) {
	srv, _ := newTestServer(t)

	cases := []struct {
		name string
		body any
	}{
		{name: "no code", body: gin.H{"action": "click"}},
		{name: "bad action", body: gin.H{"code": "ABC-123", "action": "purchase"}},
		{name: "signup without identity", body: gin.H{"code": "ABC-123", "action": "signup"}},
		{name: "bad party id", body: gin.H{"code": "ABC-123", "action": "signup", "referred_identity": "a@b.c", "referred_party_id": "x"}},
		{name: "not json", body: "just a string"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec, _ := do(t, srv, call{method: http.MethodPost, path: "/api/v1/track", key: appKey, body: tc.body})
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestActivateAndClaim(t *testing.T) {
	srv, st := newTestServer(t)
	referral := st.SignedUp(t, referrerID, "friend@example.com")

	rec, out := do(t, srv, call{
		method: http.MethodPost, path: "/api/v1/activate", key: billingKey,
		body: gin.H{"referred_identity": "friend@example.com"},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	data := out["data"].(map[string]any)
	assert.Equal(t, true, data["created"])
	entry := data["entry"].(map[string]any)
	assert.Equal(t, "Bronze", entry["tier_name"])
	assert.EqualValues(t, 60, entry["reward_minutes"])

	rec, out = do(t, srv, call{
		method: http.MethodPost, path: "/api/v1/activate", key: billingKey,
		body: gin.H{"referral_id": referral.ID.String()},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, out["data"].(map[string]any)["created"])

	rec, out = do(t, srv, call{method: http.MethodGet, path: "/api/v1/rewards", key: appKey, beneficiary: referrerID})
	require.Equal(t, http.StatusOK, rec.Code)
	active := out["data"].(map[string]any)["active"].([]any)
	require.Len(t, active, 1)

	rec, out = do(t, srv, call{
		method: http.MethodPost, path: "/api/v1/claim", key: appKey, beneficiary: referrerID,
		body: gin.H{"mode": "all"},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	result := out["data"].(map[string]any)
	assert.EqualValues(t, 1, result["count"])
	assert.EqualValues(t, 60, result["minutes"])

	rec, out = do(t, srv, call{method: http.MethodGet, path: "/api/v1/statistics", key: appKey, beneficiary: referrerID})
	require.Equal(t, http.StatusOK, rec.Code)
	stats := out["data"].(map[string]any)["statistics"].(map[string]any)
	assert.EqualValues(t, 0, stats["available_minutes"])
	assert.EqualValues(t, 1, stats["total_rewards_earned"])
}

func TestActivateRequestShapes(t *testing.T) {
	srv, _ := newTestServer(t)

	rec, out := do(t, srv, call{
		method: http.MethodPost, path: "/api/v1/activate", key: billingKey,
		body: gin.H{"referred_identity": "ghost@example.com"},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, out["success"])
	assert.Equal(t, "no pending referral", out["message"])

	rec, _ = do(t, srv, call{
		method: http.MethodPost, path: "/api/v1/activate", key: billingKey,
		body: gin.H{"referral_id": "1", "referred_identity": "a@b.c"},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, out = do(t, srv, call{
		method: http.MethodPost, path: "/api/v1/activate", key: billingKey,
		body: gin.H{"referral_id": "424242"},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, out["success"])
	assert.Equal(t, "no pending referral", out["message"])
}

func TestActivateByReferralIDBeforeSignup(t *testing.T) {
	srv, st := newTestServer(t)
	pending, err := st.Referrals.Create(context.Background(), referraldomain.CreateRequest{
		ReferrerID:       referrerID,
		ReferredIdentity: "early@example.com",
	})
	require.NoError(t, err)

	activate := call{
		method: http.MethodPost, path: "/api/v1/activate", key: billingKey,
		body: gin.H{"referral_id": pending.ID.String()},
	}
	rec, out := do(t, srv, activate)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, out["success"])
	assert.Equal(t, "no pending referral", out["message"])

	_, err = st.Referrals.RecordClick(context.Background(), pending.ReferralCode)
	require.NoError(t, err)
	rec, out = do(t, srv, activate)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, out["success"])

	stored, err := st.Referrals.Get(context.Background(), pending.ID)
	require.NoError(t, err)
	assert.Equal(t, referraldomain.StatusClicked, stored.Status)
	count, err := st.LedgerRepo.CountByBeneficiary(context.Background(), st.DB, referrerID)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestClaimErrors(t *testing.T) {
	srv, st := newTestServer(t)
	st.SignedUp(t, referrerID, "friend@example.com")
	outcome, err := st.Rewards.ActivateByIdentity(context.Background(), "friend@example.com")
	require.NoError(t, err)

	claimOne := call{
		method: http.MethodPost, path: "/api/v1/claim", key: appKey, beneficiary: referrerID,
		body: gin.H{"reward_id": outcome.Entry.ID.String()},
	}
	rec, _ := do(t, srv, claimOne)
	require.Equal(t, http.StatusOK, rec.Code)

	rec, out := do(t, srv, claimOne)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "conflict", errorType(out))

	rec, _ = do(t, srv, call{
		method: http.MethodPost, path: "/api/v1/claim", key: appKey, beneficiary: snowflake.ID(77),
		body: gin.H{"mode": "one", "reward_id": outcome.Entry.ID.String()},
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = do(t, srv, call{
		method: http.MethodPost, path: "/api/v1/claim", key: appKey, beneficiary: referrerID,
		body: gin.H{"mode": "some"},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestReferralListing(t *testing.T) {
	srv, _ := newTestServer(t)
	createReferral(t, srv, "one@example.com")
	createReferral(t, srv, "two@example.com")
	createReferral(t, srv, "three@example.com")

	rec, out := do(t, srv, call{
		method: http.MethodGet, path: "/api/v1/referrals?page_size=2", key: appKey, beneficiary: referrerID,
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, out["data"].([]any), 2)
	pageInfo := out["page_info"].(map[string]any)
	assert.Equal(t, true, pageInfo["has_more"])

	rec, _ = do(t, srv, call{
		method: http.MethodPost, path: "/api/v1/referrals", key: appKey, beneficiary: referrerID,
		body: gin.H{"referred_identity": "ONE@example.com"},
	})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec, _ = do(t, srv, call{
		method: http.MethodGet, path: "/api/v1/referrals?status=bogus", key: appKey, beneficiary: referrerID,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAdminTransitions(t *testing.T) {
	srv, st := newTestServer(t)
	pending := createReferral(t, srv, "pending@example.com")
	signed := st.SignedUp(t, referrerID, "signed@example.com")

	rec, out := do(t, srv, call{method: http.MethodPost, path: "/api/v1/admin/referrals/" + pending.ID.String() + "/cancel", key: adminKey})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "cancelled", out["data"].(map[string]any)["status"])

	rec, _ = do(t, srv, call{method: http.MethodPost, path: "/api/v1/admin/referrals/" + pending.ID.String() + "/expire", key: adminKey})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec, out = do(t, srv, call{method: http.MethodPost, path: "/api/v1/admin/referrals/" + signed.ID.String() + "/activate", key: adminKey})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, out["data"].(map[string]any)["created"])

	rec, _ = do(t, srv, call{method: http.MethodPost, path: "/api/v1/admin/referrals/abc/cancel", key: adminKey})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTiersAndOps(t *testing.T) {
	srv, _ := newTestServer(t)

	rec, out := do(t, srv, call{method: http.MethodGet, path: "/api/v1/tiers", key: appKey})
	require.Equal(t, http.StatusOK, rec.Code)
	tiers := out["data"].([]any)
	require.Len(t, tiers, 4)
	assert.Equal(t, "Bronze", tiers[0].(map[string]any)["name"])

	rec, _ = do(t, srv, call{method: http.MethodGet, path: "/health"})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, out = do(t, srv, call{method: http.MethodGet, path: "/nowhere"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", errorType(out))
}
