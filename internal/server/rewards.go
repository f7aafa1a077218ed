package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	claimdomain "github.com/smallbiznis/referral/internal/claim/domain"
	rewarddomain "github.com/smallbiznis/referral/internal/reward/domain"
)

type activateRequest struct {
	ReferralID       string `json:"referral_id"`
	ReferredIdentity string `json:"referred_identity"`
	ReferredPartyID  string `json:"referred_party_id"`
}

// Activate awards the referrer for a converted referral. Replays return the
// existing entry with created=false.
func (s *Server) Activate(c *gin.Context) {
	var req activateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	req.ReferralID = strings.TrimSpace(req.ReferralID)
	req.ReferredIdentity = strings.TrimSpace(req.ReferredIdentity)
	req.ReferredPartyID = strings.TrimSpace(req.ReferredPartyID)

	set := 0
	for _, v := range []string{req.ReferralID, req.ReferredIdentity, req.ReferredPartyID} {
		if v != "" {
			set++
		}
	}
	if set != 1 {
		AbortWithError(c, newValidationError("request", "invalid_request", "exactly one of referral_id, referred_identity or referred_party_id is required"))
		return
	}

	ctx := c.Request.Context()
	var (
		outcome rewarddomain.Outcome
		err     error
	)
	switch {
	case req.ReferralID != "":
		id, perr := parseID(req.ReferralID)
		if perr != nil {
			AbortWithError(c, newValidationError("referral_id", "invalid_referral_id", "invalid referral id"))
			return
		}
		outcome, err = s.rewardSvc.Activate(ctx, id)
	case req.ReferredPartyID != "":
		id, perr := parseID(req.ReferredPartyID)
		if perr != nil {
			AbortWithError(c, newValidationError("referred_party_id", "invalid_referred_party_id", "invalid referred party id"))
			return
		}
		outcome, err = s.rewardSvc.ActivateByParty(ctx, id)
	default:
		outcome, err = s.rewardSvc.ActivateByIdentity(ctx, req.ReferredIdentity)
	}
	if noPendingReferral(err) {
		c.JSON(http.StatusOK, gin.H{"success": false, "message": "no pending referral"})
		return
	}
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "data": outcome})
}

// noPendingReferral reports whether err means there was nothing to activate.
// Callers of /activate get a plain success=false for these, whichever key they sent.
func noPendingReferral(err error) bool {
	return errors.Is(err, rewarddomain.ErrNoPendingReferral) ||
		errors.Is(err, rewarddomain.ErrNotFound) ||
		errors.Is(err, rewarddomain.ErrNotActivatable) ||
		errors.Is(err, rewarddomain.ErrReferralExpired)
}

func (s *Server) ListRewards(c *gin.Context) {
	view, err := s.rewardSvc.ListRewards(c.Request.Context(), beneficiaryFrom(c))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": view})
}

type claimRequest struct {
	Mode     string `json:"mode"`
	RewardID string `json:"reward_id"`
}

func (s *Server) Claim(c *gin.Context) {
	var req claimRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	req.Mode = strings.ToLower(strings.TrimSpace(req.Mode))
	req.RewardID = strings.TrimSpace(req.RewardID)
	if req.Mode == "" {
		req.Mode = claimdomain.ModeAll
		if req.RewardID != "" {
			req.Mode = claimdomain.ModeOne
		}
	}

	ctx := c.Request.Context()
	beneficiaryID := beneficiaryFrom(c)
	var (
		result claimdomain.Result
		err    error
	)
	switch req.Mode {
	case claimdomain.ModeOne:
		id, perr := parseID(req.RewardID)
		if perr != nil {
			AbortWithError(c, newValidationError("reward_id", "invalid_reward_id", "reward_id is required for mode one"))
			return
		}
		result, err = s.claimSvc.ClaimOne(ctx, id, beneficiaryID)
	case claimdomain.ModeAll:
		result, err = s.claimSvc.ClaimAll(ctx, beneficiaryID)
	default:
		AbortWithError(c, newValidationError("mode", "invalid_mode", "mode must be one or all"))
		return
	}
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "data": result})
}

func (s *Server) GetStatistics(c *gin.Context) {
	summary, err := s.statsSvc.Get(c.Request.Context(), beneficiaryFrom(c))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": summary})
}

func (s *Server) ListTiers(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"data": s.tiers.Table().Definitions()})
}

func parseID(raw string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(raw))
	if err != nil {
		return 0, err
	}
	if id <= 0 {
		return 0, ErrInvalidRequest
	}
	return id, nil
}
