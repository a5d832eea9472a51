package context

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestActingUser(t *testing.T) {
	ctx := WithUserID(context.Background(), "ctx-user")

	explicit := "explicit-user"
	got := ActingUser(ctx, &explicit)
	require.NotNil(t, got)
	assert.Equal(t, "explicit-user", *got)

	got = ActingUser(ctx, nil)
	require.NotNil(t, got)
	assert.Equal(t, "ctx-user", *got)

	empty := ""
	got = ActingUser(ctx, &empty)
	require.NotNil(t, got)
	assert.Equal(t, "ctx-user", *got)

	assert.Nil(t, ActingUser(context.Background(), nil))
}

func TestTraceContext(t *testing.T) {
	assert.Empty(t, GetTraceID(context.Background()))

	tc := NewTraceContext()
	ctx := WithTrace(context.Background(), tc)
	assert.Equal(t, tc.TraceID, GetTraceID(ctx))
	assert.NotEmpty(t, tc.RequestID)
}
