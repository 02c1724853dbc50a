package validity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckConflictOpenEndedBlocksLaterRules(t *testing.T) {
	scope := GlobalScope(5)
	a := rule(t, scope, 1000, "2025-01-01", "")
	rules := []Rule[testPrice]{a}

	for _, from := range []string{"2025-01-01", "2025-06-01", "2031-01-01"} {
		hit := CheckConflict(Candidate{Scope: scope, Interval: interval(t, from, "")}, rules, nil)
		require.NotNil(t, hit, "from %s", from)
		assert.Equal(t, a.ID, hit.ID)
	}

	earlier := Candidate{Scope: scope, Interval: interval(t, "2024-01-01", "2025-01-01")}
	assert.Nil(t, CheckConflict(earlier, rules, nil))
}

func TestCheckConflictExcludesOwnID(t *testing.T) {
	scope := GlobalScope(5)
	a := rule(t, scope, 1000, "2025-01-01", "")
	rules := []Rule[testPrice]{a}

	candidate := Candidate{Scope: scope, Interval: a.Interval}
	require.NotNil(t, CheckConflict(candidate, rules, nil))
	assert.Nil(t, CheckConflict(candidate, rules, &a.ID))
}

func TestCheckConflictScopeIsolation(t *testing.T) {
	global := rule(t, GlobalScope(5), 1000, "2025-01-01", "")
	dealer := rule(t, DealerScope(5, 12), 900, "2025-01-01", "")
	otherProduct := rule(t, GlobalScope(6), 900, "2025-01-01", "")
	rules := []Rule[testPrice]{global, otherProduct}

	assert.Nil(t, CheckConflict(Candidate{Scope: dealer.Scope, Interval: dealer.Interval}, rules, nil))

	hit := CheckConflict(Candidate{Scope: GlobalScope(5), Interval: interval(t, "2025-02-01", "2025-03-01")}, append(rules, dealer), nil)
	require.NotNil(t, hit)
	assert.Equal(t, global.ID, hit.ID)
}

func TestFindConflictsOrderedByStart(t *testing.T) {
	scope := DealerScope(5, 1)
	late := rule(t, scope, 3, "2025-09-01", "2025-10-01")
	early := rule(t, scope, 1, "2025-01-01", "2025-03-01")
	mid := rule(t, scope, 2, "2025-05-01", "2025-06-01")

	candidate := Candidate{Scope: scope, Interval: interval(t, "2025-02-01", "")}
	found := FindConflicts(candidate, []Rule[testPrice]{late, early, mid}, nil)

	require.Len(t, found, 3)
	assert.Equal(t, early.ID, found[0].ID)
	assert.Equal(t, mid.ID, found[1].ID)
	assert.Equal(t, late.ID, found[2].ID)

	first := CheckConflict(candidate, []Rule[testPrice]{late, early, mid}, nil)
	assert.Equal(t, early.ID, first.ID)
}

func TestCheckConflictIsDeterministic(t *testing.T) {
	scope := GlobalScope(5)
	rules := []Rule[testPrice]{
		rule(t, scope, 1, "2025-01-01", "2025-02-01"),
		rule(t, scope, 2, "2025-02-01", "2025-03-01"),
	}
	candidate := Candidate{Scope: scope, Interval: interval(t, "2025-01-15", "2025-02-15")}

	first := CheckConflict(candidate, rules, nil)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first.ID, CheckConflict(candidate, rules, nil).ID)
	}
}
