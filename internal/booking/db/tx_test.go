package db

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLockTimeoutMillis(t *testing.T) {
	_, ok := lockTimeoutMillis(context.Background())
	assert.False(t, ok)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	ms, ok := lockTimeoutMillis(ctx)
	assert.True(t, ok)
	assert.InDelta(t, 2000, ms, 100)

	expired, cancel2 := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel2()
	ms, ok = lockTimeoutMillis(expired)
	assert.True(t, ok)
	assert.Equal(t, int64(1), ms)
}
