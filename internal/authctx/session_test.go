package authctx

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSessionID(t *testing.T) {
	_, ok := SessionIDFromContext(context.Background())
	assert.False(t, ok)

	ctx := WithSessionID(context.Background(), "  ")
	_, ok = SessionIDFromContext(ctx)
	assert.False(t, ok, "blank session id must not be stored")

	ctx = WithSessionID(context.Background(), " sess-1 ")
	sid, ok := SessionIDFromContext(ctx)
	assert.True(t, ok)
	assert.Equal(t, "sess-1", sid)
}
