package system

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWallClockIsUTC(t *testing.T) {
	t.Parallel()

	clk := New()
	require.NotNil(t, clk)

	before := time.Now().UTC().Add(-time.Second)
	got := clk.Now()
	after := time.Now().UTC().Add(time.Second)

	assert.Equal(t, time.UTC, got.Location())
	assert.WithinRange(t, got, before, after)
	assert.False(t, clk.Now().Before(got), "wall clock went backwards")
}

func TestFixedClockDatesArchivePartition(t *testing.T) {
	t.Parallel()

	tunis := time.FixedZone("CET", 3600)
	// 00:30 in Tunis is still the previous day in UTC.
	clk := Fixed(time.Date(2025, 6, 13, 0, 30, 0, 0, tunis))

	assert.Equal(t, time.UTC, clk.Now().Location())
	assert.Equal(t, "2025-06-12", clk.Now().Format("2006-01-02"))
	assert.Equal(t, clk.Now(), clk.Now())
}
