package realtime

import (
	"encoding/json"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ariefcatur/go-guesthouse-orders/internal/orders"
	"github.com/gorilla/websocket"
)

type State int32

const (
	StateConnecting State = iota
	StateOpen
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

const writeWait = 10 * time.Second

// Conn is one live client connection. Only the writer goroutine writes data
// frames; Close may be called from anywhere.
type Conn struct {
	ID string

	ws    *websocket.Conn
	bus   *orders.Bus
	send  chan []byte
	state atomic.Int32
	done  chan struct{}

	// mu serializes state transitions with the bus subscription.
	mu         sync.Mutex
	sub        orders.Subscription
	subscribed bool
}

func newConn(id string, ws *websocket.Conn, bus *orders.Bus, buf int) *Conn {
	return &Conn{
		ID:   id,
		ws:   ws,
		bus:  bus,
		send: make(chan []byte, buf),
		done: make(chan struct{}),
	}
}

func (c *Conn) State() State { return State(c.state.Load()) }

// open queues the greeting, then subscribes, so the greeting is always the
// first frame the client sees. It reports false if the connection was closed
// first, in which case nothing is subscribed.
func (c *Conn) open(greeting string) bool {
	c.mu.Lock()
	if c.State() == StateClosed {
		c.mu.Unlock()
		return false
	}
	if b, err := orders.EncodeGreeting(greeting); err == nil {
		c.enqueue(b)
	}
	c.state.Store(int32(StateOpen))
	c.sub = c.bus.Subscribe(c.deliver)
	c.subscribed = true
	c.mu.Unlock()

	go c.writeLoop()
	return true
}

// deliver is the bus handler. It never blocks the publisher.
func (c *Conn) deliver(ev orders.Event) {
	if c.State() != StateOpen {
		return
	}
	b, err := orders.EncodeEvent(ev)
	if err != nil {
		log.Printf("realtime %s: encode %s: %v", c.ID, ev.Kind(), err)
		return
	}
	if !c.enqueue(b) {
		log.Printf("realtime %s: send buffer full, dropped %s for order %d", c.ID, ev.Kind(), ev.Snapshot().ID)
	}
}

func (c *Conn) enqueue(b []byte) bool {
	select {
	case c.send <- b:
		return true
	default:
		return false
	}
}

func (c *Conn) writeLoop() {
	for {
		select {
		case <-c.done:
			return
		case b := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, b); err != nil {
				log.Printf("realtime %s: write: %v", c.ID, err)
				c.Close()
				return
			}
		}
	}
}

// readLoop handles inbound frames until the peer goes away.
func (c *Conn) readLoop() {
	defer c.Close()
	for {
		_, payload, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Printf("realtime %s: read: %v", c.ID, err)
			}
			return
		}
		if !json.Valid(payload) {
			log.Printf("realtime %s: ignoring malformed message (%d bytes)", c.ID, len(payload))
			continue
		}
		b, err := orders.EncodeEcho(payload)
		if err != nil {
			continue
		}
		if !c.enqueue(b) {
			log.Printf("realtime %s: send buffer full, dropped echo", c.ID)
		}
	}
}

// Close moves the connection to Closed, unsubscribes and releases the socket.
func (c *Conn) Close() {
	c.closeWith(0)
}

func (c *Conn) closeWith(code int) {
	c.mu.Lock()
	if c.State() == StateClosed {
		c.mu.Unlock()
		return
	}
	c.state.Store(int32(StateClosed))
	sub, subscribed := c.sub, c.subscribed
	c.subscribed = false
	c.mu.Unlock()

	if subscribed {
		c.bus.Unsubscribe(sub)
	}
	close(c.done)
	if code != 0 {
		msg := websocket.FormatCloseMessage(code, "server shutting down")
		_ = c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	}
	_ = c.ws.Close()
}
