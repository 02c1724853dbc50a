package pricing

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/dealerhub/dealer-pricing/internal/rules"
	"github.com/dealerhub/dealer-pricing/internal/validity"
	"github.com/dealerhub/dealer-pricing/pkg/config"
	"github.com/dealerhub/dealer-pricing/pkg/db"
	"github.com/dealerhub/dealer-pricing/pkg/db/models"
	pkgerrors "github.com/dealerhub/dealer-pricing/pkg/errors"
	"github.com/dealerhub/dealer-pricing/pkg/migrate"
	"github.com/dealerhub/dealer-pricing/pkg/pagination"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T, policy validity.ResolutionPolicy) *Service {
	t.Helper()
	svc, _ := newTestServiceWithDB(t, policy)
	return svc
}

func newTestServiceWithDB(t *testing.T, policy validity.ResolutionPolicy) (*Service, *db.Client) {
	t.Helper()
	ctx := context.Background()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	client, err := db.New(ctx, config.DBConfig{Driver: config.DriverSQLite, DSN: dsn, MaxOpenConns: 1}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	require.NoError(t, migrate.AutoMigrate(client))

	svc, err := NewService(ServiceParams{
		DB:     client,
		Locker: validity.NewKeyedLocker(),
		Policy: policy,
		Clock:  func() time.Time { return time.Date(2025, 1, 20, 9, 0, 0, 0, time.UTC) },
	})
	require.NoError(t, err)
	return svc, client
}

func date(t *testing.T, v string) time.Time {
	t.Helper()
	d, err := time.Parse(validity.DateLayout, v)
	require.NoError(t, err)
	return d
}

func amount(v string) Price {
	return Price{Value: decimal.RequireFromString(v)}
}

func TestPriceValidate(t *testing.T) {
	require.NoError(t, amount("1000").Validate())
	require.NoError(t, amount("0.01").Validate())
	require.NoError(t, amount("12.50").Validate())

	for _, bad := range []string{"0", "-5", "1.005", "1000000000000"} {
		err := amount(bad).Validate()
		assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation), bad)
	}
}

func TestPricingTimelineScenarios(t *testing.T) {
	svc := newTestService(t, validity.PolicyExact)
	ctx := validity.WithActor(context.Background(), validity.Actor{ID: "staff-1", Role: "staff"})
	scope := validity.GlobalScope(5)

	// 1. open-ended base price
	a, err := svc.Create(ctx, rules.CreateInput[Price]{Scope: scope, Payload: amount("1000"), ValidFrom: date(t, "2025-01-01")})
	require.NoError(t, err)

	// 2. overlapping insert names rule A
	_, err = svc.Create(ctx, rules.CreateInput[Price]{Scope: scope, Payload: amount("1100"), ValidFrom: date(t, "2025-06-01")})
	require.True(t, pkgerrors.HasCode(err, pkgerrors.CodeConflict))
	details := pkgerrors.As(err).Details().(map[string]any)
	assert.Equal(t, a.Rule.ID.String(), details["conflicting_rule_id"])
	assert.Equal(t, "1000", details["value"])

	// 3. adjustment closes A and starts B
	june := date(t, "2025-06-01")
	b, err := svc.Adjust(ctx, rules.AdjustInput[Price]{RuleID: a.Rule.ID, Payload: ptr(amount("1100")), ValidFrom: &june})
	require.NoError(t, err)
	require.NotNil(t, b.Closed)

	got, err := svc.Effective(ctx, scope, date(t, "2025-03-01"))
	require.NoError(t, err)
	assert.Equal(t, a.Rule.ID, got.ID)
	got, err = svc.Effective(ctx, scope, date(t, "2025-07-01"))
	require.NoError(t, err)
	assert.Equal(t, b.Rule.ID, got.ID)
	got, err = svc.Effective(ctx, scope, june)
	require.NoError(t, err)
	assert.Equal(t, b.Rule.ID, got.ID)

	// 4. correction keeps its own interval
	c, err := svc.Correct(ctx, rules.CorrectInput[Price]{RuleID: a.Rule.ID, Unlock: true, Payload: ptr(amount("950"))})
	require.NoError(t, err)
	assert.True(t, c.Rule.Payload.Value.Equal(decimal.NewFromInt(950)))
	assert.Equal(t, june, *c.Rule.Interval.ValidTo)

	// 5. inverted interval
	_, err = svc.Create(ctx, rules.CreateInput[Price]{Scope: validity.GlobalScope(6), Payload: amount("1"), ValidFrom: june, ValidTo: ptr(date(t, "2025-01-01"))})
	require.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))

	list, err := svc.List(ctx, scope)
	require.NoError(t, err)
	require.Len(t, list, 2)

	page, err := svc.Events(ctx, a.Rule.ID, pagination.Params{})
	require.NoError(t, err)
	modes := make([]string, 0, len(page.Events))
	for _, e := range page.Events {
		modes = append(modes, e.Mode)
	}
	assert.Equal(t, []string{"create", "adjust", "correct"}, modes)
}

func TestPricingDealerPolicies(t *testing.T) {
	ctx := context.Background()
	global := validity.GlobalScope(5)
	dealer := validity.DealerScope(5, 12)

	for _, tc := range []struct {
		policy   validity.ResolutionPolicy
		fallback bool
	}{
		{policy: validity.PolicyExact, fallback: false},
		{policy: validity.PolicyDealerOverride, fallback: true},
	} {
		t.Run(string(tc.policy), func(t *testing.T) {
			svc := newTestService(t, tc.policy)
			g, err := svc.Create(ctx, rules.CreateInput[Price]{Scope: global, Payload: amount("1000"), ValidFrom: date(t, "2025-01-01")})
			require.NoError(t, err)
			// same window as the global price: scopes never conflict with each other
			d, err := svc.Create(ctx, rules.CreateInput[Price]{Scope: dealer, Payload: amount("900"), ValidFrom: date(t, "2025-03-01"), ValidTo: ptr(date(t, "2025-04-01"))})
			require.NoError(t, err)

			got, err := svc.Effective(ctx, dealer, date(t, "2025-03-15"))
			require.NoError(t, err)
			assert.Equal(t, d.Rule.ID, got.ID)

			got, err = svc.Effective(ctx, dealer, date(t, "2025-05-01"))
			require.NoError(t, err)
			if tc.fallback {
				require.NotNil(t, got)
				assert.Equal(t, g.Rule.ID, got.ID)
			} else {
				assert.Nil(t, got)
			}
		})
	}
}

func TestPricingDeactivate(t *testing.T) {
	svc := newTestService(t, validity.PolicyExact)
	ctx := context.Background()
	scope := validity.DealerScope(7, 3)

	a, err := svc.Create(ctx, rules.CreateInput[Price]{Scope: scope, Payload: amount("10"), ValidFrom: date(t, "2025-01-01")})
	require.NoError(t, err)

	// as_of defaults to the service clock (2025-01-20)
	res, err := svc.Deactivate(ctx, rules.DeactivateInput{RuleID: a.Rule.ID})
	require.NoError(t, err)
	assert.Equal(t, date(t, "2025-01-20"), *res.Rule.Interval.ValidTo)

	got, err := svc.Effective(ctx, scope, date(t, "2025-01-20"))
	require.NoError(t, err)
	assert.Nil(t, got)
	got, err = svc.Effective(ctx, scope, date(t, "2025-01-19"))
	require.NoError(t, err)
	require.NotNil(t, got)
}

// SQLite tables built by AutoMigrate carry no interval CHECK, so a row written
// around the engine can be stored with valid_to before valid_from.
func TestPricingCorruptRowIsServerSide(t *testing.T) {
	svc, client := newTestServiceWithDB(t, validity.PolicyExact)
	ctx := context.Background()
	scope := validity.GlobalScope(5)

	good, err := svc.Create(ctx, rules.CreateInput[Price]{
		Scope: scope, Payload: amount("1000"), ValidFrom: date(t, "2025-01-01"), ValidTo: ptr(date(t, "2025-03-01")),
	})
	require.NoError(t, err)

	now := time.Date(2025, 1, 20, 9, 0, 0, 0, time.UTC)
	bad := models.PricingRule{
		ID:        uuid.New(),
		ProductID: 5,
		Value:     decimal.RequireFromString("1100"),
		ValidFrom: date(t, "2025-06-01"),
		ValidTo:   ptr(date(t, "2025-01-01")),
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, client.DB().Create(&bad).Error)

	_, err = svc.Effective(ctx, scope, date(t, "2025-06-01"))
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	require.Equal(t, pkgerrors.CodeConsistency, typed.Code())
	details := typed.Details().(map[string]any)
	assert.Equal(t, []string{bad.ID.String()}, details["rule_ids"])
	assert.Contains(t, details["reason"], "cannot be decoded")

	_, err = svc.Get(ctx, bad.ID)
	require.True(t, pkgerrors.HasCode(err, pkgerrors.CodeConsistency))

	report, err := svc.Audit(ctx, scope)
	require.NoError(t, err)
	assert.False(t, report.Healthy())
	require.Len(t, report.Violations, 1)
	assert.Equal(t, []uuid.UUID{bad.ID}, report.Violations[0].RuleIDs)
	require.Len(t, report.Rules, 1)
	assert.Equal(t, good.Rule.ID, report.Rules[0].ID)

	// Writes to the scope are refused while the corrupt row is present.
	_, err = svc.Create(ctx, rules.CreateInput[Price]{Scope: scope, Payload: amount("900"), ValidFrom: date(t, "2026-01-01")})
	require.True(t, pkgerrors.HasCode(err, pkgerrors.CodeConsistency))
}

func ptr[T any](v T) *T { return &v }
