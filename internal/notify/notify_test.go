package notify

import (
	"bytes"
	"context"
	"testing"

	"github.com/ariefcatur/go-guesthouse-orders/internal/orders"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTerminal(t *testing.T) {
	var buf bytes.Buffer
	n := &Terminal{W: &buf, Bell: true}
	require.NoError(t, n.Notify(context.Background(), orders.Order{ID: 4, RoomNumber: "12", Total: 200, Items: make([]orders.LineItem, 2)}))
	assert.Equal(t, "\anew order #4  room 12  2 item(s)  total 200\n", buf.String())
}

func TestGate(t *testing.T) {
	var buf bytes.Buffer
	on := true
	g := &Gate{
		Next:    &Terminal{W: &buf},
		Enabled: func(context.Context) (bool, error) { return on, nil },
	}
	ctx := context.Background()
	require.NoError(t, g.Notify(ctx, orders.Order{ID: 1}))
	on = false
	require.NoError(t, g.Notify(ctx, orders.Order{ID: 2}))
	assert.Contains(t, buf.String(), "#1")
	assert.NotContains(t, buf.String(), "#2")
}
