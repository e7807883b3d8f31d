package roles

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalLockerBlocksSameKey(t *testing.T) {
	l := NewLocalLocker()

	unlock, err := l.Lock(context.Background(), "a")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = l.Lock(ctx, "a")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	other, err := l.Lock(context.Background(), "b")
	require.NoError(t, err)
	other()

	unlock()
	unlock()

	again, err := l.Lock(context.Background(), "a")
	require.NoError(t, err)
	again()

	l.mu.Lock()
	assert.Empty(t, l.locks)
	l.mu.Unlock()
}
