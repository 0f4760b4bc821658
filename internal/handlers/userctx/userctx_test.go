package userctx

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestUserCtx(t *testing.T) {
	t.Run("round trip", func(t *testing.T) {
		ctx := New(context.Background(), "user-1")

		subject, ok := FromContext(ctx)

		require.True(t, ok)
		require.Equal(t, "user-1", subject)
	})

	t.Run("absent", func(t *testing.T) {
		_, ok := FromContext(context.Background())

		require.False(t, ok)
	})

	t.Run("empty subject is absent", func(t *testing.T) {
		_, ok := FromContext(New(context.Background(), ""))

		require.False(t, ok)
	})
}
