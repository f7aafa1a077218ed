package server

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/referral/internal/observability/logger"
	referraldomain "github.com/smallbiznis/referral/internal/referral/domain"
	"go.uber.org/zap"
)

type createReferralRequest struct {
	ReferredIdentity string         `json:"referred_identity"`
	Metadata         map[string]any `json:"metadata"`
}

// CreateReferral issues a code for the beneficiary to share with one referred identity.
func (s *Server) CreateReferral(c *gin.Context) {
	var req createReferralRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	referral, err := s.referralSvc.Create(c.Request.Context(), referraldomain.CreateRequest{
		ReferrerID:       beneficiaryFrom(c),
		ReferredIdentity: req.ReferredIdentity,
		Metadata:         req.Metadata,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": referral})
}

func (s *Server) ListReferrals(c *gin.Context) {
	pageSize, err := parsePageSize(c.Query("page_size"))
	if err != nil {
		AbortWithError(c, newValidationError("page_size", "invalid_page_size", "invalid page_size"))
		return
	}

	resp, err := s.referralSvc.List(c.Request.Context(), referraldomain.ListRequest{
		ReferrerID: beneficiaryFrom(c),
		Status:     referraldomain.Status(strings.ToLower(strings.TrimSpace(c.Query("status")))),
		PageToken:  strings.TrimSpace(c.Query("page_token")),
		PageSize:   pageSize,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp.Referrals, "page_info": resp.PageInfo})
}

func (s *Server) GetReferral(c *gin.Context) {
	id, err := parseID(c.Param("id"))
	if err != nil {
		AbortWithError(c, referraldomain.ErrInvalidID)
		return
	}

	referral, err := s.referralSvc.Get(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": referral})
}

// AdminActivate runs the same idempotent activation as /activate, keyed by path id.
func (s *Server) AdminActivate(c *gin.Context) {
	id, err := parseID(c.Param("id"))
	if err != nil {
		AbortWithError(c, referraldomain.ErrInvalidID)
		return
	}

	outcome, err := s.rewardSvc.Activate(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	s.auditAdmin(c, "activate", id.String())

	c.JSON(http.StatusOK, gin.H{"success": true, "data": outcome})
}

func (s *Server) AdminExpire(c *gin.Context) {
	s.closeReferral(c, "expire", s.referralSvc.Expire)
}

func (s *Server) AdminCancel(c *gin.Context) {
	s.closeReferral(c, "cancel", s.referralSvc.Cancel)
}

func (s *Server) closeReferral(c *gin.Context, action string, fn func(ctx context.Context, id snowflake.ID) (referraldomain.Referral, error)) {
	id, err := parseID(c.Param("id"))
	if err != nil {
		AbortWithError(c, referraldomain.ErrInvalidID)
		return
	}

	referral, err := fn(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	s.auditAdmin(c, action, id.String())

	c.JSON(http.StatusOK, gin.H{"success": true, "data": referral})
}

func (s *Server) auditAdmin(c *gin.Context, action, referralID string) {
	logger.FromContext(c.Request.Context()).Info("admin referral action",
		zap.String("action", action),
		zap.String("referral_id", referralID),
		zap.String("subject", c.GetString(contextSubjectKey)),
	)
}

func parsePageSize(raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	size, err := strconv.Atoi(raw)
	if err != nil || size < 0 {
		return 0, ErrInvalidRequest
	}
	return size, nil
}
