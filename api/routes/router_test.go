package routes

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/dealerhub/dealer-pricing/internal/pricing"
	"github.com/dealerhub/dealer-pricing/internal/promotions"
	"github.com/dealerhub/dealer-pricing/internal/rules"
	"github.com/dealerhub/dealer-pricing/internal/validity"
	"github.com/dealerhub/dealer-pricing/pkg/auth"
	"github.com/dealerhub/dealer-pricing/pkg/config"
	"github.com/dealerhub/dealer-pricing/pkg/metrics"
)

type stubPinger struct{}

func (stubPinger) Ping(context.Context) error { return nil }

type memoryIdempotency struct {
	data map[string]string
}

func (m *memoryIdempotency) Get(_ context.Context, key string) (string, error) {
	if v, ok := m.data[key]; ok {
		return v, nil
	}
	return "", goredis.Nil
}

func (m *memoryIdempotency) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	if _, ok := m.data[key]; ok {
		return false, nil
	}
	m.data[key] = fmt.Sprint(value)
	return true, nil
}

func (m *memoryIdempotency) Del(_ context.Context, keys ...string) error {
	for _, k := range keys {
		delete(m.data, k)
	}
	return nil
}

func (m *memoryIdempotency) IdempotencyKey(scope, id string) string {
	return "test:" + scope + ":" + id
}

var testCfg = &config.Config{
	App: config.AppConfig{Env: "test", CORSOrigins: []string{"http://localhost:3000"}},
	JWT: config.JWTConfig{Secret: "router-secret", Issuer: "dealer-backoffice"},
}

func clock() time.Time { return time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC) }

func newTestRouter(t *testing.T) (http.Handler, *memoryIdempotency) {
	t.Helper()
	reg := prometheus.NewRegistry()
	m := metrics.NewRuleMetrics(reg)

	priceSvc, err := rules.NewService(rules.Params[pricing.Price]{
		Kind: pricing.Kind, Repo: validity.NewMemoryRepository[pricing.Price](), Metrics: m, Clock: clock,
	})
	require.NoError(t, err)
	promoSvc, err := rules.NewService(rules.Params[promotions.Discount]{
		Kind: promotions.Kind, Repo: validity.NewMemoryRepository[promotions.Discount](), RequireDealer: true, Metrics: m, Clock: clock,
	})
	require.NoError(t, err)

	idem := &memoryIdempotency{data: map[string]string{}}
	return NewRouter(testCfg, nil, Dependencies{
		DB:          stubPinger{},
		Idempotency: idem,
		Gatherer:    reg,
		Pricing:     priceSvc,
		Promotions:  promoSvc,
		Clock:       clock,
	}), idem
}

func token(t *testing.T, role auth.Role) string {
	t.Helper()
	tok, err := auth.MintAccessToken(testCfg.JWT, time.Now(), time.Hour, auth.AccessTokenPayload{ActorID: "user-" + string(role), Role: role})
	require.NoError(t, err)
	return tok
}

func do(t *testing.T, h http.Handler, method, path, tok, body string, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func ruleID(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var out struct {
		Data struct {
			Rule struct {
				ID string `json:"id"`
			} `json:"rule"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.NotEmpty(t, out.Data.Rule.ID)
	return out.Data.Rule.ID
}

func TestHealthRoutes(t *testing.T) {
	h, _ := newTestRouter(t)
	require.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/health/live", "", "").Code)
	rec := do(t, h, http.MethodGet, "/health/ready", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"redis":"disabled"`)
}

func TestAdminRoutesRequireToken(t *testing.T) {
	h, _ := newTestRouter(t)
	rec := do(t, h, http.MethodGet, "/api/admin/v1/pricing-rules?product_id=5", "", "")
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestStaffCannotCorrect(t *testing.T) {
	h, _ := newTestRouter(t)
	staff := token(t, auth.RoleStaff)
	admin := token(t, auth.RoleAdmin)

	rec := do(t, h, http.MethodPost, "/api/admin/v1/pricing-rules", staff, `{"product_id":5,"value":"1000","valid_from":"2025-01-01"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	id := ruleID(t, rec)

	rec = do(t, h, http.MethodPut, "/api/admin/v1/pricing-rules/"+id, staff, `{"unlock":true,"value":"1100"}`)
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = do(t, h, http.MethodPut, "/api/admin/v1/pricing-rules/"+id, admin, `{"unlock":true,"value":"1100"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = do(t, h, http.MethodGet, "/api/v1/pricing/effective?product_id=5&as_of=2025-02-01", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"value":"1100"`)
}

func TestCreateReplaysWithIdempotencyKey(t *testing.T) {
	h, idem := newTestRouter(t)
	staff := token(t, auth.RoleStaff)
	body := `{"product_id":5,"dealer_id":2,"description":"Spring","discount_percent":"5","valid_from":"2025-04-01"}`

	first := do(t, h, http.MethodPost, "/api/admin/v1/promotions", staff, body, "Idempotency-Key", "promo-1")
	require.Equal(t, http.StatusCreated, first.Code, first.Body.String())
	require.Len(t, idem.data, 1)

	again := do(t, h, http.MethodPost, "/api/admin/v1/promotions", staff, body, "Idempotency-Key", "promo-1")
	require.Equal(t, http.StatusCreated, again.Code)
	require.Equal(t, ruleID(t, first), ruleID(t, again))

	// without the key the same body is a real second write and conflicts
	conflict := do(t, h, http.MethodPost, "/api/admin/v1/promotions", staff, body)
	require.Equal(t, http.StatusConflict, conflict.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	h, _ := newTestRouter(t)
	staff := token(t, auth.RoleStaff)
	rec := do(t, h, http.MethodPost, "/api/admin/v1/pricing-rules", staff, `{"product_id":7,"value":"10","valid_from":"2025-01-01"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = do(t, h, http.MethodGet, "/metrics", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `rule_mutations_total{kind="pricing",mode="create"} 1`)
}
