package server

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/referral/internal/authorization"
	obscontext "github.com/smallbiznis/referral/internal/observability/context"
	"github.com/smallbiznis/referral/internal/observability/logger"
	"go.uber.org/zap"
)

const (
	HeaderBeneficiary = "X-Beneficiary-ID"

	contextRoleKey        = "api_key_role"
	contextSubjectKey     = "api_key_subject"
	contextBeneficiaryKey = "beneficiary_id"
)

type apiKey struct {
	hash        []byte
	role        string
	fingerprint string
}

// newAPIKeys hashes the configured keys once. Keys with an unknown role are
// skipped.
func newAPIKeys(raw map[string]string, log *zap.Logger) []apiKey {
	keys := make([]apiKey, 0, len(raw))
	for key, role := range raw {
		key = strings.TrimSpace(key)
		role = strings.ToLower(strings.TrimSpace(role))
		if key == "" {
			continue
		}
		sum := sha256.Sum256([]byte(key))
		fingerprint := hex.EncodeToString(sum[:4])
		if !authorization.ValidRole(role) {
			log.Warn("api key ignored, unknown role", zap.String("fingerprint", fingerprint), zap.String("role", role))
			continue
		}
		keys = append(keys, apiKey{hash: sum[:], role: role, fingerprint: fingerprint})
	}
	return keys
}

// APIKeyRequired authenticates the bearer key against the configured keys.
func (s *Server) APIKeyRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := strings.TrimSpace(c.GetHeader("Authorization"))
		parts := strings.Fields(header)
		if len(parts) != 2 || parts[0] != "Bearer" || strings.TrimSpace(parts[1]) == "" {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		key, ok := s.lookupKey(parts[1])
		if !ok {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		subject := "api_key:" + key.fingerprint
		c.Set(contextRoleKey, key.role)
		c.Set(contextSubjectKey, subject)
		ctx := obscontext.WithActor(c.Request.Context(), key.role, key.fingerprint)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// lookupKey compares against every configured key so timing does not depend
// on which one matched.
func (s *Server) lookupKey(raw string) (apiKey, bool) {
	sum := sha256.Sum256([]byte(raw))
	var (
		found apiKey
		ok    bool
	)
	for _, key := range s.apiKeys {
		if subtle.ConstantTimeCompare(key.hash, sum[:]) == 1 {
			found, ok = key, true
		}
	}
	return found, ok
}

// authorize checks the authenticated key's role against the casbin policy.
func (s *Server) authorize(object, action string) gin.HandlerFunc {
	return func(c *gin.Context) {
		role := c.GetString(contextRoleKey)
		subject := c.GetString(contextSubjectKey)
		if err := s.authzSvc.Authorize(c.Request.Context(), subject, role, object, action); err != nil {
			logger.FromContext(c.Request.Context()).Info("request denied",
				zap.String("role", role),
				zap.String("object", object),
				zap.String("action", action),
			)
			AbortWithError(c, ErrForbidden)
			return
		}
		c.Next()
	}
}

// BeneficiaryRequired reads the beneficiary the request acts for.
func (s *Server) BeneficiaryRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := strings.TrimSpace(c.GetHeader(HeaderBeneficiary))
		if raw == "" {
			AbortWithError(c, ErrBeneficiaryMissing)
			return
		}
		id, err := snowflake.ParseString(raw)
		if err != nil || id <= 0 {
			AbortWithError(c, newValidationError("beneficiary_id", "invalid_beneficiary", "invalid beneficiary id"))
			return
		}
		c.Set(contextBeneficiaryKey, id)
		c.Request = c.Request.WithContext(obscontext.WithBeneficiaryID(c.Request.Context(), id.String()))
		c.Next()
	}
}

func beneficiaryFrom(c *gin.Context) snowflake.ID {
	value, ok := c.Get(contextBeneficiaryKey)
	if !ok {
		return 0
	}
	id, _ := value.(snowflake.ID)
	return id
}
