package cli

import (
	"bytes"
	"context"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ariefcatur/go-guesthouse-orders/internal/httpx"
	"github.com/ariefcatur/go-guesthouse-orders/internal/localstore"
	"github.com/ariefcatur/go-guesthouse-orders/internal/orders"
	"github.com/ariefcatur/go-guesthouse-orders/internal/realtime"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// syncBuffer is written by the watch goroutines and read by the test.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestWatch_StopsBackgroundWorkBeforeClosingStore(t *testing.T) {
	ctx := context.Background()
	bus := orders.NewBus()
	store := orders.NewNotifyingStore(orders.NewMemoryStore(), bus)
	_, err := store.Create(ctx, orders.Draft{
		RoomNumber:   "12",
		MobileNumber: "0811",
		Items:        []orders.LineItem{{MenuItemID: 1, Name: "Nasi Goreng", Price: 100, Quantity: 2}},
	})
	require.NoError(t, err)

	rt := realtime.NewServer(bus, 8)
	r := httpx.NewRouter()
	r.Handle("/ws", rt)
	(&httpx.OrdersHandler{Store: store}).Register(r)
	srv := httptest.NewServer(r)
	t.Cleanup(func() {
		rt.Shutdown()
		srv.Close()
	})

	cfg := testConfig(t, srv.URL)
	ls, err := localstore.Open(cfg.LocalDB)
	require.NoError(t, err)
	settled := true
	_, err = ls.Enqueue(ctx, 1, orders.Patch{Settled: &settled})
	require.NoError(t, err)
	require.NoError(t, ls.Close())

	out := &syncBuffer{}
	cmd := NewRootCommand(cfg)
	cmd.SetOut(out)
	cmd.SetErr(out)
	cmd.SetArgs([]string{"watch", "--no-bell"})

	wctx, cancel := context.WithCancel(ctx)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- cmd.ExecuteContext(wctx) }()

	require.Eventually(t, func() bool {
		s := out.String()
		return strings.Contains(s, "new order #1") &&
			strings.Contains(s, "replayed 1 queued change(s), 0 failed")
	}, 5*time.Second, 20*time.Millisecond, "output so far: %s", out)
	require.Eventually(t, func() bool { return bus.Len() == 1 }, 5*time.Second, 10*time.Millisecond)

	paid := true
	_, err = store.UpdateFields(ctx, 1, orders.Patch{RestaurantPaid: &paid})
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return strings.Contains(out.String(), "paid=true")
	}, 5*time.Second, 20*time.Millisecond, "output so far: %s", out)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watch did not return after cancel")
	}

	ls, err = localstore.Open(cfg.LocalDB)
	require.NoError(t, err)
	defer ls.Close()

	wm, err := ls.Watermark(ctx)
	require.NoError(t, err)
	assert.True(t, wm.After(orders.Epoch))

	pending, err := ls.Pending(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)

	cached, err := ls.CachedOrders(ctx)
	require.NoError(t, err)
	require.Len(t, cached, 1)
	assert.True(t, cached[0].Settled)
	assert.True(t, cached[0].RestaurantPaid)
}
