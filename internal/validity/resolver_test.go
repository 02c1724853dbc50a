package validity

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"
)

func TestResolveReturnsAtMostOneOnValidStore(t *testing.T) {
	scope := GlobalScope(5)
	rules := []Rule[testPrice]{
		rule(t, scope, 1000, "2025-01-01", "2025-06-01"),
		rule(t, scope, 1100, "2025-06-01", "2025-09-01"),
		rule(t, scope, 1200, "2025-10-01", ""),
		rule(t, DealerScope(5, 3), 800, "2025-01-01", ""),
	}

	start := day(t, "2024-12-01")
	for i := 0; i < 400; i++ {
		at := start.AddDate(0, 0, i)
		got, err := Resolve(rules, scope, at)
		require.NoError(t, err, at)

		var want *Rule[testPrice]
		for _, r := range rules {
			if r.Scope.Equal(scope) && r.Interval.Contains(at) {
				want = &r
				break
			}
		}
		if want == nil {
			assert.Nil(t, got, at)
			continue
		}
		require.NotNil(t, got, at)
		assert.Equal(t, want.ID, got.ID, at)
	}
}

func TestResolveGap(t *testing.T) {
	scope := GlobalScope(5)
	rules := []Rule[testPrice]{
		rule(t, scope, 1000, "2025-01-01", "2025-02-01"),
		rule(t, scope, 1100, "2025-03-01", ""),
	}

	got, err := Resolve(rules, scope, day(t, "2025-02-10"))
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestResolveReportsConsistencyViolation(t *testing.T) {
	scope := GlobalScope(5)
	a := rule(t, scope, 1000, "2025-01-01", "")
	b := rule(t, scope, 1100, "2025-06-01", "")

	got, err := Resolve([]Rule[testPrice]{b, a}, scope, day(t, "2025-07-01"))
	assert.Nil(t, got)

	var violation *ConsistencyViolation
	require.ErrorAs(t, err, &violation)
	assert.ElementsMatch(t, []uuid.UUID{a.ID, b.ID}, violation.RuleIDs)
	require.NotNil(t, violation.At)
	assert.Equal(t, day(t, "2025-07-01"), *violation.At)

	// Before the second rule starts only one matches.
	got, err = Resolve([]Rule[testPrice]{b, a}, scope, day(t, "2025-03-01"))
	require.NoError(t, err)
	assert.Equal(t, a.ID, got.ID)
}

func TestAuditOverlaps(t *testing.T) {
	scope := GlobalScope(5)
	a := rule(t, scope, 1, "2025-01-01", "")
	b := rule(t, scope, 2, "2025-03-01", "2025-04-01")
	c := rule(t, scope, 3, "2025-05-01", "")
	healthy := rule(t, DealerScope(5, 1), 4, "2025-01-01", "")

	require.NoError(t, AuditOverlaps([]Rule[testPrice]{healthy}, healthy.Scope))

	err := AuditOverlaps([]Rule[testPrice]{a, b, c, healthy}, scope)
	errs := multierr.Errors(err)
	// a-b, a-c
	require.Len(t, errs, 2)
	for _, e := range errs {
		var v *ConsistencyViolation
		require.ErrorAs(t, e, &v)
		assert.Contains(t, v.RuleIDs, a.ID)
		assert.Nil(t, v.At)
	}
}

func TestParsePolicy(t *testing.T) {
	p, err := ParsePolicy("")
	require.NoError(t, err)
	assert.Equal(t, PolicyExact, p)

	p, err = ParsePolicy(" DEALER_OVERRIDE")
	require.NoError(t, err)
	assert.Equal(t, PolicyDealerOverride, p)

	_, err = ParsePolicy("latest")
	require.Error(t, err)
}
