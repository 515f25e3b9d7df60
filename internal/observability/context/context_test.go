package context

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestActorDefaultsToSystem(t *testing.T) {
	actorType, actorID := ActorFromContext(context.Background())
	assert.Equal(t, ActorTypeSystem, actorType)
	assert.Empty(t, actorID)

	ctx := WithActor(context.Background(), " user ", "u-1")
	actorType, actorID = ActorFromContext(ctx)
	assert.Equal(t, ActorTypeUser, actorType)
	assert.Equal(t, "u-1", actorID)
}

func TestRequestAndClient(t *testing.T) {
	ctx := WithRequestID(context.Background(), "  ")
	assert.Empty(t, RequestIDFromContext(ctx))

	ctx = WithRequestID(ctx, "req-1")
	ctx = WithClient(ctx, "10.0.0.1", "curl/8")
	assert.Equal(t, "req-1", RequestIDFromContext(ctx))

	ip, ua := ClientFromContext(ctx)
	assert.Equal(t, "10.0.0.1", ip)
	assert.Equal(t, "curl/8", ua)
}
