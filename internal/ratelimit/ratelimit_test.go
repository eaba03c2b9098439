package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLimiter_SlidingWindow(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	l := New(2, time.Minute, func() time.Time { return now })
	defer l.Close()

	ok, _ := l.Allow("a")
	assert.True(t, ok)
	now = now.Add(20 * time.Second)
	ok, _ = l.Allow("a")
	assert.True(t, ok)

	ok, wait := l.Allow("a")
	assert.False(t, ok)
	assert.Equal(t, 40*time.Second, wait)

	// другой ключ не затронут
	ok, _ = l.Allow("b")
	assert.True(t, ok)

	now = now.Add(41 * time.Second)
	ok, _ = l.Allow("a")
	assert.True(t, ok)
}

func TestLimiter_Prune(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	l := New(5, time.Minute, func() time.Time { return now })
	defer l.Close()

	l.Allow("a")
	l.Allow("b")
	assert.Equal(t, 2, l.Len())

	now = now.Add(2 * time.Minute)
	l.Allow("b")
	l.Prune()
	assert.Equal(t, 1, l.Len())
}
