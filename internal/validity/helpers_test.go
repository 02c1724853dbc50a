package validity

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
)

type testPrice struct {
	Value int64
}

func (p testPrice) Validate() error {
	if p.Value <= 0 {
		return errors.New("value must be positive")
	}
	return nil
}

func day(t *testing.T, value string) time.Time {
	t.Helper()
	parsed, err := time.Parse(DateLayout, value)
	if err != nil {
		t.Fatalf("parse %q: %v", value, err)
	}
	return parsed
}

func dayPtr(t *testing.T, value string) *time.Time {
	t.Helper()
	d := day(t, value)
	return &d
}

func interval(t *testing.T, from, to string) Interval {
	t.Helper()
	var end *time.Time
	if to != "" {
		end = dayPtr(t, to)
	}
	return MustInterval(day(t, from), end)
}

func rule(t *testing.T, scope ScopeKey, value int64, from, to string) Rule[testPrice] {
	t.Helper()
	return Rule[testPrice]{
		ID:       uuid.New(),
		Scope:    scope,
		Interval: interval(t, from, to),
		Payload:  testPrice{Value: value},
	}
}

func fixedClock(t *testing.T, value string) func() time.Time {
	now := day(t, value).Add(15 * time.Hour)
	return func() time.Time { return now }
}

func newTestStore(t *testing.T, opts Options) (*Store[testPrice], *MemoryRepository[testPrice]) {
	t.Helper()
	repo := NewMemoryRepository[testPrice]()
	if opts.Clock == nil {
		opts.Clock = fixedClock(t, "2025-01-01")
	}
	return NewStore[testPrice](repo, opts), repo
}
