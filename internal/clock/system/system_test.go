package system

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNewReturnsCurrentUTC(t *testing.T) {
	t.Parallel()

	before := time.Now().Add(-time.Second)
	got := New().Now()
	after := time.Now().Add(time.Second)

	require.Equal(t, time.UTC, got.Location())
	require.True(t, got.After(before) && got.Before(after), "got %v", got)
}

func TestFuncConvertsToUTC(t *testing.T) {
	t.Parallel()

	berlin := time.FixedZone("CET", 3600)
	local := time.Date(2025, 1, 1, 0, 30, 0, 0, berlin)
	got := Func(func() time.Time { return local }).Now()

	require.Equal(t, time.UTC, got.Location())
	require.Equal(t, time.Date(2024, 12, 31, 23, 30, 0, 0, time.UTC), got)
}
