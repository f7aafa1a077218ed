package server

import (
	"errors"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/referral/internal/observability/logger"
	referraldomain "github.com/smallbiznis/referral/internal/referral/domain"
	dbutil "github.com/smallbiznis/referral/pkg/db"
	"go.uber.org/zap"
)

const (
	trackActionClick  = "click"
	trackActionSignup = "signup"
)

type trackRequest struct {
	Code             string `json:"code"`
	Action           string `json:"action"`
	ReferredIdentity string `json:"referred_identity"`
	ReferredPartyID  string `json:"referred_party_id"`
}

// Track records a funnel event. Stale or unknown input is a silent success;
// only a signup that matches no referral is reported.
func (s *Server) Track(c *gin.Context) {
	var req trackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	req.Code = strings.TrimSpace(req.Code)
	req.Action = strings.ToLower(strings.TrimSpace(req.Action))
	if req.Code == "" {
		AbortWithError(c, newValidationError("code", "required", "code is required"))
		return
	}
	c.Set("track_action", req.Action)

	ctx := c.Request.Context()
	switch req.Action {
	case trackActionClick:
		if _, err := s.referralSvc.RecordClick(ctx, req.Code); err != nil {
			if s.swallowTrackError(c, err) {
				break
			}
			return
		}
	case trackActionSignup:
		signup := referraldomain.SignupRequest{
			Code:             req.Code,
			ReferredIdentity: req.ReferredIdentity,
		}
		if raw := strings.TrimSpace(req.ReferredPartyID); raw != "" {
			partyID, err := snowflake.ParseString(raw)
			if err != nil || partyID <= 0 {
				AbortWithError(c, newValidationError("referred_party_id", "invalid_referred_party_id", "invalid referred party id"))
				return
			}
			signup.ReferredPartyID = &partyID
		}
		if _, err := s.referralSvc.RecordSignup(ctx, signup); err != nil {
			if errors.Is(err, referraldomain.ErrNotFound) {
				AbortWithError(c, err)
				return
			}
			if s.swallowTrackError(c, err) {
				break
			}
			return
		}
	default:
		AbortWithError(c, newValidationError("action", "invalid_action", "action must be click or signup"))
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}

// swallowTrackError reports whether err can be hidden behind a success
// response. Malformed input and store failures still surface.
func (s *Server) swallowTrackError(c *gin.Context, err error) bool {
	if isValidationError(err) || errors.Is(err, dbutil.ErrTransient) {
		AbortWithError(c, err)
		return false
	}
	if isConflictError(err) || isNotFoundError(err) {
		logger.FromContext(c.Request.Context()).Debug("track event ignored", zap.Error(err))
		return true
	}
	AbortWithError(c, err)
	return false
}

// TrackRateLimit caps tracking calls per client IP. A limiter failure lets the
// request through.
func (s *Server) TrackRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.trackLimiter.Enabled() {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		decision, err := s.trackLimiter.Allow(ctx, c.ClientIP())
		if err != nil {
			logger.FromContext(ctx).Warn("track rate limit check failed", zap.Error(err))
			c.Next()
			return
		}
		if !decision.Allowed {
			s.metrics.IncRateLimited()
			retryAfter := int(math.Ceil(decision.RetryAfter.Seconds()))
			if retryAfter < 1 {
				retryAfter = 1
			}
			c.Header("Retry-After", strconv.Itoa(retryAfter))
			AbortWithError(c, ErrRateLimited)
			return
		}
		c.Header("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))
		c.Next()
	}
}
