package authorization

import (
	"context"
	"errors"
)

const (
	RoleApp     = "app"
	RoleBilling = "billing"
	RoleAdmin   = "admin"
)

const (
	ObjectFunnel     = "funnel"
	ObjectReferral   = "referral"
	ObjectReward     = "reward"
	ObjectStatistics = "statistics"
	ObjectTier       = "tier"
)

const (
	ActionTrack    = "track"
	ActionCreate   = "create"
	ActionView     = "view"
	ActionActivate = "activate"
	ActionClaim    = "claim"
	ActionExpire   = "expire"
	ActionCancel   = "cancel"
	// ActionForceActivate is the administrative activation route.
	ActionForceActivate = "force_activate"
)

// Service decides whether an authenticated caller may act on an object.
type Service interface {
	Authorize(ctx context.Context, subject, role, object, action string) error
}

var (
	ErrInvalidActor  = errors.New("invalid_actor")
	ErrInvalidRole   = errors.New("invalid_role")
	ErrInvalidObject = errors.New("invalid_object")
	ErrInvalidAction = errors.New("invalid_action")
	ErrForbidden     = errors.New("forbidden")
)

func ValidRole(role string) bool {
	switch role {
	case RoleApp, RoleBilling, RoleAdmin:
		return true
	}
	return false
}
