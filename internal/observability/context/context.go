// Package context holds request-scoped correlation values shared by logging,
// tracing and the audit trail.
package context

import (
	"context"
	"strings"
)

type requestIDKey struct{}
type actorKey struct{}
type clientKey struct{}

type actor struct {
	Type string
	ID   string
}

type client struct {
	IPAddress string
	UserAgent string
}

const (
	ActorTypeUser   = "user"
	ActorTypeSystem = "system"
)

func WithRequestID(ctx context.Context, requestID string) context.Context {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	value, _ := ctx.Value(requestIDKey{}).(string)
	return value
}

// WithActor records who is performing the operation.
func WithActor(ctx context.Context, actorType, actorID string) context.Context {
	return context.WithValue(ctx, actorKey{}, actor{
		Type: strings.TrimSpace(actorType),
		ID:   strings.TrimSpace(actorID),
	})
}

// ActorFromContext returns the actor, defaulting to the system actor.
func ActorFromContext(ctx context.Context) (string, string) {
	if ctx != nil {
		if value, ok := ctx.Value(actorKey{}).(actor); ok && value.Type != "" {
			return value.Type, value.ID
		}
	}
	return ActorTypeSystem, ""
}

func WithClient(ctx context.Context, ipAddress, userAgent string) context.Context {
	return context.WithValue(ctx, clientKey{}, client{
		IPAddress: strings.TrimSpace(ipAddress),
		UserAgent: strings.TrimSpace(userAgent),
	})
}

func ClientFromContext(ctx context.Context) (ipAddress string, userAgent string) {
	if ctx == nil {
		return "", ""
	}
	value, _ := ctx.Value(clientKey{}).(client)
	return value.IPAddress, value.UserAgent
}
