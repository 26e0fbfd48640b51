package httpx

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/ariefcatur/go-guesthouse-orders/internal/orders"
	"github.com/ariefcatur/go-guesthouse-orders/internal/redisx"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu     sync.Mutex
	events []orders.Event
}

func (r *recorder) handle(ev orders.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) all() []orders.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]orders.Event(nil), r.events...)
}

type fixture struct {
	router http.Handler
	store  *orders.MemoryStore
	events *recorder
	now    time.Time
}

func newFixture(t *testing.T, strict bool) *fixture {
	t.Helper()
	f := &fixture{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC), events: &recorder{}}
	f.store = orders.NewMemoryStore(orders.WithClock(func() time.Time { return f.now }))
	bus := orders.NewBus()
	bus.Subscribe(f.events.handle)

	r := NewRouter()
	(&OrdersHandler{
		Store:        orders.NewNotifyingStore(f.store, bus),
		StrictStatus: strict,
		Now:          func() time.Time { return f.now },
	}).Register(r)
	f.router = r
	return f
}

func (f *fixture) do(t *testing.T, method, path, caller string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if caller != "" {
		req.Header.Set(HeaderCallerID, caller)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

const validDraft = `{"roomNumber":"12","mobileNumber":"0811","items":[
	{"menuItemId":1,"name":"Nasi Goreng","price":50,"category":"food","quantity":2},
	{"menuItemId":2,"name":"Es Teh","price":100,"category":"drink","quantity":1}]}`

func (f *fixture) create(t *testing.T) orders.Order {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/orders", bytes.NewBufferString(validDraft))
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var o orders.Order
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &o))
	return o
}

func TestCreateOrder_ComputesTotalAndPublishes(t *testing.T) {
	f := newFixture(t, false)
	o := f.create(t)

	assert.Equal(t, int64(200), o.Total)
	assert.Equal(t, orders.StatusPending, o.Status)
	assert.False(t, o.Settled)
	assert.False(t, o.RestaurantPaid)

	evs := f.events.all()
	require.Len(t, evs, 1)
	assert.Equal(t, orders.TypeNewOrder, evs[0].Kind())
	assert.Equal(t, o.ID, evs[0].Snapshot().ID)
}

func TestCreateOrder_Validation(t *testing.T) {
	f := newFixture(t, false)
	rec := f.do(t, http.MethodPost, "/orders", "", map[string]any{"roomNumber": "", "items": []any{}})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var body errorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Contains(t, body.Fields, "roomNumber")
	assert.Contains(t, body.Fields, "items")
	assert.Empty(t, f.events.all())

	req := httptest.NewRequest(http.MethodPost, "/orders", bytes.NewBufferString("{"))
	rr := httptest.NewRecorder()
	f.router.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestUpdateStatus_PartialPatch(t *testing.T) {
	f := newFixture(t, false)
	o := f.create(t)

	rec := f.do(t, http.MethodPatch, "/orders/1/status", "admin-1", map[string]any{"settled": true})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var got orders.Order
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.True(t, got.Settled)
	assert.False(t, got.RestaurantPaid)
	assert.Equal(t, orders.StatusPending, got.Status)
	assert.Equal(t, o.Total, got.Total)

	evs := f.events.all()
	require.Len(t, evs, 2)
	assert.Equal(t, orders.TypeOrderStatusUpdate, evs[1].Kind())
	assert.True(t, evs[1].Snapshot().Settled)
}

func TestUpdateStatus_Errors(t *testing.T) {
	f := newFixture(t, false)
	f.create(t)

	cases := []struct {
		name   string
		path   string
		caller string
		body   any
		code   int
	}{
		{"no caller", "/orders/1/status", "", map[string]any{"settled": true}, http.StatusUnauthorized},
		{"empty patch", "/orders/1/status", "admin", map[string]any{}, http.StatusBadRequest},
		{"unknown status", "/orders/1/status", "admin", map[string]any{"status": "Lost"}, http.StatusBadRequest},
		{"missing order", "/orders/99/status", "admin", map[string]any{"settled": true}, http.StatusNotFound},
		{"bad id", "/orders/abc/status", "admin", map[string]any{"settled": true}, http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := f.do(t, http.MethodPatch, tc.path, tc.caller, tc.body)
			assert.Equal(t, tc.code, rec.Code, rec.Body.String())
		})
	}
	// only the creation event
	assert.Len(t, f.events.all(), 1)
}

func TestUpdateStatus_RegressionPolicy(t *testing.T) {
	back := map[string]any{"status": "Pending"}

	t.Run("permissive", func(t *testing.T) {
		f := newFixture(t, false)
		f.create(t)
		require.Equal(t, http.StatusOK, f.do(t, http.MethodPatch, "/orders/1/status", "a", map[string]any{"status": "Delivered"}).Code)
		assert.Equal(t, http.StatusOK, f.do(t, http.MethodPatch, "/orders/1/status", "a", back).Code)
	})
	t.Run("strict", func(t *testing.T) {
		f := newFixture(t, true)
		f.create(t)
		require.Equal(t, http.StatusOK, f.do(t, http.MethodPatch, "/orders/1/status", "a", map[string]any{"status": "Delivered"}).Code)
		assert.Equal(t, http.StatusConflict, f.do(t, http.MethodPatch, "/orders/1/status", "a", back).Code)
		assert.Len(t, f.events.all(), 2)
	})
}

func TestListAndFind(t *testing.T) {
	f := newFixture(t, false)
	f.create(t)
	f.create(t)

	rec := f.do(t, http.MethodGet, "/orders", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list []orders.Order
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Len(t, list, 2)

	rec = f.do(t, http.MethodGet, "/orders?contact=nobody", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())

	rec = f.do(t, http.MethodGet, "/orders?contact=12", "", nil)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Len(t, list, 2)

	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, "/orders/42", "", nil).Code)
}

func TestListNewOrders(t *testing.T) {
	f := newFixture(t, false)
	f.create(t)

	assert.Equal(t, http.StatusUnauthorized, f.do(t, http.MethodGet, "/orders/new", "", nil).Code)
	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodGet, "/orders/new?since=yesterday", "a", nil).Code)

	rec := f.do(t, http.MethodGet, "/orders/new", "a", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp orders.Batch
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp.Orders, 1)
	assert.True(t, resp.CheckedAt.Equal(f.now))

	f.now = f.now.Add(time.Minute)
	f.create(t)
	rec = f.do(t, http.MethodGet, "/orders/new?since="+resp.CheckedAt.Format(time.RFC3339Nano), "a", nil)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Orders, 1)
	assert.Equal(t, int64(2), resp.Orders[0].ID)
}

func TestGetOrder_ReadsThroughSnapshotCache(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	f := newFixture(t, false)
	cache := redisx.NewSnapshotCache(rdb, time.Minute, 8)
	r := NewRouter()
	(&OrdersHandler{Store: f.store, Cache: cache}).Register(r)
	f.router = r

	o := f.create(t)
	rec := f.do(t, http.MethodGet, "/orders/1", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, mr.Exists(fmt.Sprintf(redisx.KeyOrderSnapshot, o.ID)))

	cached, err := cache.Get(t.Context(), o.ID)
	require.NoError(t, err)
	assert.Equal(t, o.Total, cached.Total)
}

func TestGetOrder_SeesPatchImmediately(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	f := newFixture(t, false)
	cache := redisx.NewSnapshotCache(rdb, time.Minute, 256)
	bus := orders.NewBus()
	bus.Subscribe(cache.Observe)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = cache.Run(ctx) }()

	r := NewRouter()
	(&OrdersHandler{Store: orders.NewNotifyingStore(f.store, bus), Cache: cache}).Register(r)
	f.router = r

	f.create(t)
	for i := 0; i < 100; i++ {
		require.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/orders/1", "", nil).Code)

		settled := i%2 == 0
		rec := f.do(t, http.MethodPatch, "/orders/1/status", "admin-1", map[string]any{"settled": settled})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		rec = f.do(t, http.MethodGet, "/orders/1", "", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		var got orders.Order
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
		require.Equal(t, settled, got.Settled, "read %d after patch", i)
	}
}

func TestHealthz(t *testing.T) {
	rec := httptest.NewRecorder()
	NewRouter().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
