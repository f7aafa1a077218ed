package context

import (
	"context"
	"strings"
)

type ctxKey string

const (
	requestIDKey   ctxKey = "request_id"
	actorRoleKey   ctxKey = "actor_role"
	actorKeyIDKey  ctxKey = "actor_key_id"
	beneficiaryKey ctxKey = "beneficiary_id"
)

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, strings.TrimSpace(requestID))
}

func RequestIDFromContext(ctx context.Context) string {
	return stringValue(ctx, requestIDKey)
}

// WithActor records which API key role is acting on the request.
func WithActor(ctx context.Context, role, keyID string) context.Context {
	ctx = context.WithValue(ctx, actorRoleKey, strings.TrimSpace(role))
	return context.WithValue(ctx, actorKeyIDKey, strings.TrimSpace(keyID))
}

func ActorFromContext(ctx context.Context) (role string, keyID string) {
	return stringValue(ctx, actorRoleKey), stringValue(ctx, actorKeyIDKey)
}

func WithBeneficiaryID(ctx context.Context, beneficiaryID string) context.Context {
	return context.WithValue(ctx, beneficiaryKey, strings.TrimSpace(beneficiaryID))
}

func BeneficiaryIDFromContext(ctx context.Context) string {
	return stringValue(ctx, beneficiaryKey)
}

func stringValue(ctx context.Context, key ctxKey) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(key).(string); ok {
		return v
	}
	return ""
}
