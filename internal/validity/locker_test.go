package validity

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyedLockerSerializesSameScope(t *testing.T) {
	locker := NewKeyedLocker()
	ctx := context.Background()

	release, err := locker.Lock(ctx, GlobalScope(1))
	require.NoError(t, err)

	waitCtx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	_, err = locker.Lock(waitCtx, GlobalScope(1))
	require.ErrorIs(t, err, context.DeadlineExceeded)

	other, err := locker.Lock(ctx, DealerScope(1, 2))
	require.NoError(t, err, "other scopes are independent")
	other()

	release()
	release()

	again, err := locker.Lock(ctx, GlobalScope(1))
	require.NoError(t, err)
	again()

	assert.Equal(t, 0, locker.held())
}
