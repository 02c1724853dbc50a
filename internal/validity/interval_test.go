package validity

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewIntervalTruncatesToDay(t *testing.T) {
	loc := time.FixedZone("ICT", 7*3600)
	from := time.Date(2025, 3, 1, 23, 30, 0, 0, time.UTC)
	to := time.Date(2025, 3, 10, 5, 0, 0, 0, loc)

	iv, err := NewInterval(from, &to)
	require.NoError(t, err)
	assert.Equal(t, day(t, "2025-03-01"), iv.ValidFrom)
	assert.Equal(t, day(t, "2025-03-09"), *iv.ValidTo)
}

func TestNewIntervalRejectsInvertedBounds(t *testing.T) {
	_, err := NewInterval(day(t, "2025-06-01"), dayPtr(t, "2025-01-01"))

	var invalid *IntervalInvalidError
	require.True(t, errors.As(err, &invalid))
	assert.Contains(t, err.Error(), "valid_to must be after valid_from")
}

func TestNewIntervalRejectsEmptyInterval(t *testing.T) {
	_, err := NewInterval(day(t, "2025-06-01"), dayPtr(t, "2025-06-01"))
	var invalid *IntervalInvalidError
	require.ErrorAs(t, err, &invalid)

	// Same calendar day after truncation.
	_, err = NewInterval(day(t, "2025-06-01").Add(time.Hour), ptrTime(day(t, "2025-06-01").Add(20*time.Hour)))
	require.ErrorAs(t, err, &invalid)
}

func TestNewIntervalRequiresStart(t *testing.T) {
	_, err := NewInterval(time.Time{}, nil)
	var invalid *IntervalInvalidError
	require.ErrorAs(t, err, &invalid)
}

func TestOverlapsIsSymmetric(t *testing.T) {
	intervals := []Interval{
		interval(t, "2025-01-01", ""),
		interval(t, "2025-01-01", "2025-06-01"),
		interval(t, "2025-06-01", ""),
		interval(t, "2025-06-01", "2025-07-01"),
		interval(t, "2025-03-01", "2025-04-01"),
		interval(t, "2024-01-01", "2025-01-01"),
		interval(t, "2025-05-31", "2025-06-02"),
		interval(t, "2026-01-01", ""),
	}
	for _, a := range intervals {
		for _, b := range intervals {
			assert.Equal(t, a.Overlaps(b), b.Overlaps(a), "%s vs %s", a, b)
		}
	}
}

func TestOverlaps(t *testing.T) {
	tests := []struct {
		name string
		a, b Interval
		want bool
	}{
		{"touching bounds are adjacent", interval(t, "2025-01-01", "2025-06-01"), interval(t, "2025-06-01", ""), false},
		{"one day overlap", interval(t, "2025-01-01", "2025-06-02"), interval(t, "2025-06-01", ""), true},
		{"disjoint", interval(t, "2025-01-01", "2025-02-01"), interval(t, "2025-03-01", "2025-04-01"), false},
		{"nested", interval(t, "2025-01-01", "2025-12-01"), interval(t, "2025-03-01", "2025-04-01"), true},
		{"open-ended vs later open-ended", interval(t, "2025-01-01", ""), interval(t, "2025-06-01", ""), true},
		{"open-ended vs later closed", interval(t, "2025-01-01", ""), interval(t, "2030-06-01", "2030-07-01"), true},
		{"open-ended vs earlier closed", interval(t, "2025-01-01", ""), interval(t, "2024-01-01", "2025-01-01"), false},
		{"identical", interval(t, "2025-01-01", "2025-02-01"), interval(t, "2025-01-01", "2025-02-01"), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.a.Overlaps(tt.b))
		})
	}
}

func TestContainsIsHalfOpen(t *testing.T) {
	iv := interval(t, "2025-01-01", "2025-06-01")

	assert.True(t, iv.Contains(day(t, "2025-01-01")))
	assert.True(t, iv.Contains(day(t, "2025-05-31").Add(23*time.Hour)))
	assert.False(t, iv.Contains(day(t, "2025-06-01")))
	assert.False(t, iv.Contains(day(t, "2024-12-31")))

	open := interval(t, "2025-01-01", "")
	assert.True(t, open.Contains(day(t, "2999-01-01")))
}

func TestClosedAt(t *testing.T) {
	open := interval(t, "2025-01-01", "")

	closed, err := open.ClosedAt(day(t, "2025-06-01"))
	require.NoError(t, err)
	assert.Equal(t, "[2025-01-01, 2025-06-01)", closed.String())
	assert.True(t, open.IsOpenEnded(), "receiver must not change")

	_, err = open.ClosedAt(day(t, "2025-01-01"))
	var invalid *IntervalInvalidError
	require.ErrorAs(t, err, &invalid)
}

func TestIntervalEqual(t *testing.T) {
	assert.True(t, interval(t, "2025-01-01", "").Equal(interval(t, "2025-01-01", "")))
	assert.False(t, interval(t, "2025-01-01", "").Equal(interval(t, "2025-01-01", "2025-02-01")))
	assert.True(t, interval(t, "2025-01-01", "2025-02-01").Equal(interval(t, "2025-01-01", "2025-02-01")))
}

func ptrTime(t time.Time) *time.Time {
	return &t
}
