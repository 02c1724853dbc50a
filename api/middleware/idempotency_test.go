package middleware

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

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/dealerhub/dealer-pricing/pkg/errors"
)

type fakeStore struct {
	data map[string]string
}

func newFakeStore() *fakeStore {
	return &fakeStore{data: make(map[string]string)}
}

func (f *fakeStore) Get(_ context.Context, key string) (string, error) {
	if v, ok := f.data[key]; ok {
		return v, nil
	}
	return "", redis.Nil
}

func (f *fakeStore) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	if _, ok := f.data[key]; ok {
		return false, nil
	}
	str, _ := value.(string)
	f.data[key] = str
	return true, nil
}

func (f *fakeStore) Del(_ context.Context, keys ...string) error {
	for _, k := range keys {
		delete(f.data, k)
	}
	return nil
}

func (f *fakeStore) IdempotencyKey(scope, id string) string {
	return fmt.Sprintf("fake:%s:%s", scope, id)
}

const createPath = "/api/admin/v1/pricing-rules"

func mutation(method, url string, body io.Reader) *http.Request {
	req := httptest.NewRequest(method, url, body)
	return req.WithContext(WithActor(req.Context(), "staff-1", "staff"))
}

func TestRouteTTLSelection(t *testing.T) {
	tests := []struct {
		name   string
		method string
		path   string
		want   time.Duration
		ok     bool
	}{
		{"create price", http.MethodPost, "/api/admin/v1/pricing-rules", defaultIdempotencyTTL, true},
		{"adjust price", http.MethodPost, "/api/admin/v1/pricing-rules/0b6f3c1e-54d1-4c55-9a38-2f0c2d7e9a11/adjust", defaultIdempotencyTTL, true},
		{"deactivate promotion", http.MethodPost, "/api/admin/v1/promotions/0b6f3c1e-54d1-4c55-9a38-2f0c2d7e9a11/deactivate", defaultIdempotencyTTL, true},
		{"correct price", http.MethodPut, "/api/admin/v1/pricing-rules/0b6f3c1e-54d1-4c55-9a38-2f0c2d7e9a11", correctionIdempotencyTTL, true},
		{"correct promotion", http.MethodPut, "/api/admin/v1/promotions/abc", correctionIdempotencyTTL, true},
		{"trailing slash on create", http.MethodPost, "/api/admin/v1/pricing-rules/", defaultIdempotencyTTL, true},
		{"put on adjust", http.MethodPut, "/api/admin/v1/pricing-rules/abc/adjust", 0, false},
		{"unknown resource", http.MethodPost, "/api/admin/v1/dealers", 0, false},
		{"list is not idempotent-tracked", http.MethodGet, "/api/admin/v1/pricing-rules", 0, false},
		{"effective lookup", http.MethodGet, "/api/v1/pricing/effective", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ttl, ok := routeTTL(tt.method, tt.path)
			require.Equal(t, tt.ok, ok)
			if ok {
				require.Equal(t, tt.want, ttl)
			}
		})
	}
}

func TestIdempotencyWithoutHeaderPassesThrough(t *testing.T) {
	store := newFakeStore()
	calls := 0
	handler := Idempotency(store, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusCreated)
	}))

	for i := 0; i < 2; i++ {
		req := mutation(http.MethodPost, createPath, strings.NewReader(`{"value":"1"}`))
		handler.ServeHTTP(httptest.NewRecorder(), req)
	}
	require.Equal(t, 2, calls)
	require.Empty(t, store.data)
}

func TestIdempotencyReplaysStoredResponse(t *testing.T) {
	store := newFakeStore()
	calls := 0
	handler := Idempotency(store, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"data":{"id":"abc"}}`))
	}))

	req := mutation(http.MethodPost, createPath, strings.NewReader(`{"value":"1"}`))
	req.Header.Set("Idempotency-Key", "k1")
	first := httptest.NewRecorder()
	handler.ServeHTTP(first, req)
	require.Equal(t, http.StatusCreated, first.Code)

	replay := mutation(http.MethodPost, createPath, strings.NewReader(`{"value":"1"}`))
	replay.Header.Set("Idempotency-Key", "k1")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, replay)

	require.Equal(t, http.StatusCreated, rec.Code)
	require.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	require.Equal(t, "true", rec.Header().Get(ReplayedHeader))
	require.Empty(t, first.Header().Get(ReplayedHeader))
	require.Equal(t, `{"data":{"id":"abc"}}`, strings.TrimSpace(rec.Body.String()))
	require.Equal(t, 1, calls)
}

func TestIdempotencyDetectsBodyChange(t *testing.T) {
	store := newFakeStore()
	handler := Idempotency(store, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))

	req := mutation(http.MethodPost, createPath, strings.NewReader(`{"value":"1"}`))
	req.Header.Set("Idempotency-Key", "k2")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	replay := mutation(http.MethodPost, createPath, strings.NewReader(`{"value":"2"}`))
	replay.Header.Set("Idempotency-Key", "k2")
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, replay)

	require.Equal(t, http.StatusConflict, resp.Code)
	var payload struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &payload))
	require.Equal(t, string(pkgerrors.CodeIdempotency), payload.Error.Code)
}

func TestIdempotencySkipsFailedResponses(t *testing.T) {
	store := newFakeStore()
	calls := 0
	handler := Idempotency(store, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusConflict)
	}))

	for i := 0; i < 2; i++ {
		req := mutation(http.MethodPost, createPath, strings.NewReader(`{"value":"1"}`))
		req.Header.Set("Idempotency-Key", "k3")
		handler.ServeHTTP(httptest.NewRecorder(), req)
	}
	require.Equal(t, 2, calls)
	require.Empty(t, store.data)
}
