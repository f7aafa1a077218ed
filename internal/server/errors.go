package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/referral/internal/authorization"
	balancedomain "github.com/smallbiznis/referral/internal/balance/domain"
	claimdomain "github.com/smallbiznis/referral/internal/claim/domain"
	referraldomain "github.com/smallbiznis/referral/internal/referral/domain"
	rewarddomain "github.com/smallbiznis/referral/internal/reward/domain"
	statsdomain "github.com/smallbiznis/referral/internal/stats/domain"
	dbutil "github.com/smallbiznis/referral/pkg/db"
	"github.com/smallbiznis/referral/pkg/db/pagination"
	"gorm.io/gorm"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

type errorPayload struct {
	Type    string            `json:"type"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrUnauthorized       = errors.New("unauthorized")
	ErrForbidden          = errors.New("forbidden")
	ErrNotFound           = errors.New("not_found")
	ErrInvalidRequest     = errors.New("invalid_request")
	ErrRateLimited        = errors.New("rate_limited")
	ErrServiceUnavailable = errors.New("service_unavailable")
	ErrBeneficiaryMissing = errors.New("beneficiary_required")
)

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidRequestError() error {
	return newValidationError("request", "invalid_request", "invalid request")
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{
		Errors: []ValidationError{
			{
				Field:   field,
				Code:    code,
				Message: message,
			},
		},
	}
}

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}

	if vErr := asValidationErrors(err); vErr != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}

	if isValidationError(err) {
		code := validationErrorCode(err)
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors: []ValidationError{
				{
					Field:   validationErrorField(code),
					Code:    code,
					Message: validationErrorMessage(code),
				},
			},
		}
	}

	switch {
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized, errorPayload{Type: "unauthorized", Message: "unauthorized"}
	case errors.Is(err, ErrForbidden),
		errors.Is(err, authorization.ErrForbidden):
		return http.StatusForbidden, errorPayload{Type: "forbidden", Message: "forbidden"}
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{Type: "not_found", Message: "not found"}
	case isConflictError(err):
		return http.StatusConflict, errorPayload{Type: "conflict", Message: domainCode(err)}
	case isGoneError(err):
		return http.StatusGone, errorPayload{Type: "gone", Message: domainCode(err)}
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests, errorPayload{Type: "rate_limited", Message: "too many requests"}
	case errors.Is(err, ErrServiceUnavailable),
		errors.Is(err, dbutil.ErrTransient),
		errors.Is(err, referraldomain.ErrCodeExhausted):
		return http.StatusServiceUnavailable, errorPayload{Type: "service_unavailable", Message: "service unavailable, retry later"}
	default:
		return http.StatusInternalServerError, errorPayload{Type: "internal_error", Message: "internal server error"}
	}
}

// classifyErrorForLog feeds the request logger's error_type and error_code fields.
func classifyErrorForLog(err error) (string, string) {
	status, payload := mapError(err)
	if status >= http.StatusInternalServerError && status != http.StatusServiceUnavailable {
		return payload.Type, "internal"
	}
	if len(payload.Errors) > 0 {
		return payload.Type, payload.Errors[0].Code
	}
	return payload.Type, domainCode(err)
}

// domainCode is the snake_case sentinel text at the root of a wrapped error chain.
func domainCode(err error) string {
	for {
		next := errors.Unwrap(err)
		if next == nil {
			break
		}
		err = next
	}
	code := err.Error()
	if i := strings.IndexByte(code, ':'); i > 0 {
		code = code[:i]
	}
	return code
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

func isValidationError(err error) bool {
	switch {
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, ErrBeneficiaryMissing),
		errors.Is(err, pagination.ErrInvalidPageToken):
		return true
	case isReferralValidationError(err),
		isRewardValidationError(err),
		isClaimValidationError(err),
		errors.Is(err, statsdomain.ErrInvalidBeneficiary),
		errors.Is(err, balancedomain.ErrInvalidAccount):
		return true
	default:
		return false
	}
}

func isReferralValidationError(err error) bool {
	switch {
	case errors.Is(err, referraldomain.ErrInvalidID),
		errors.Is(err, referraldomain.ErrInvalidCode),
		errors.Is(err, referraldomain.ErrInvalidIdentity),
		errors.Is(err, referraldomain.ErrInvalidReferrer),
		errors.Is(err, referraldomain.ErrInvalidStatus):
		return true
	}
	return false
}

func isRewardValidationError(err error) bool {
	switch {
	case errors.Is(err, rewarddomain.ErrInvalidID),
		errors.Is(err, rewarddomain.ErrInvalidIdentity),
		errors.Is(err, rewarddomain.ErrInvalidBeneficiary):
		return true
	}
	return false
}

func isClaimValidationError(err error) bool {
	switch {
	case errors.Is(err, claimdomain.ErrInvalidID),
		errors.Is(err, claimdomain.ErrInvalidBeneficiary):
		return true
	}
	return false
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, referraldomain.ErrNotFound),
		errors.Is(err, rewarddomain.ErrNotFound),
		errors.Is(err, claimdomain.ErrNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return true
	default:
		return false
	}
}

func isConflictError(err error) bool {
	switch {
	case errors.Is(err, referraldomain.ErrAlreadyReferred),
		errors.Is(err, referraldomain.ErrReferralClosed),
		errors.Is(err, referraldomain.ErrInvalidTransition),
		errors.Is(err, rewarddomain.ErrNotActivatable),
		errors.Is(err, claimdomain.ErrAlreadyClaimed):
		return true
	default:
		return false
	}
}

func isGoneError(err error) bool {
	return errors.Is(err, rewarddomain.ErrReferralExpired) ||
		errors.Is(err, claimdomain.ErrExpired)
}

func validationErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrInvalidRequest):
		return "invalid_request"
	case errors.Is(err, pagination.ErrInvalidPageToken):
		return "invalid_page_token"
	default:
		return domainCode(err)
	}
}

func validationErrorField(code string) string {
	switch code {
	case "invalid_request":
		return "request"
	case "beneficiary_required", "invalid_beneficiary", "invalid_account":
		return "beneficiary_id"
	}
	if strings.HasPrefix(code, "invalid_") {
		return strings.TrimPrefix(code, "invalid_")
	}
	return ""
}

func validationErrorMessage(code string) string {
	switch code {
	case "invalid_request":
		return "invalid request"
	case "beneficiary_required":
		return "X-Beneficiary-ID header is required"
	default:
		return "invalid value"
	}
}
