package client

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/ariefcatur/go-guesthouse-orders/internal/notify"
	"github.com/ariefcatur/go-guesthouse-orders/internal/orders"
)

type ConnState int

const (
	Idle ConnState = iota
	Connecting
	Connected
	Disconnected
)

func (s ConnState) String() string {
	switch s {
	case Idle:
		return "idle"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Disconnected:
		return "disconnected"
	}
	return "unknown"
}

const DefaultRetryDelay = 5 * time.Second

// Manager keeps one realtime connection to the order service alive and
// dispatches inbound events. At most one retry timer is pending at a time.
type Manager struct {
	URL           string
	Dialer        Dialer
	Clock         Clock
	RetryDelay    time.Duration
	AutoReconnect bool

	// Notifier is told about new orders. Wrap it in notify.Gate to honor the
	// alerts setting.
	Notifier notify.Notifier
	Seen     *Seen

	OnConnect           func()
	OnDisconnect        func(err error)
	OnNewOrder          func(o orders.Order)
	OnOrderStatusUpdate func(o orders.Order)
	OnStateChange       func(s ConnState)

	mu     sync.Mutex
	ctx    context.Context
	state  ConnState
	conn   Conn
	timer  Timer
	gen    uint64
	closed bool
}

func NewManager(url string, d Dialer) *Manager {
	return &Manager{
		URL:           url,
		Dialer:        d,
		Clock:         RealClock,
		RetryDelay:    DefaultRetryDelay,
		AutoReconnect: true,
	}
}

func (m *Manager) State() ConnState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Start dials the first connection. ctx bounds every dial and notification.
func (m *Manager) Start(ctx context.Context) {
	m.mu.Lock()
	m.ctx = ctx
	m.mu.Unlock()
	m.connect()
}

// Reconnect drops the current connection and any pending retry, then dials
// immediately.
func (m *Manager) Reconnect() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.stopTimer()
	old := m.conn
	m.conn = nil
	m.gen++
	m.mu.Unlock()

	if old != nil {
		_ = old.Close()
	}
	m.connect()
}

// Close clears the pending retry first, then closes the live connection.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	m.stopTimer()
	old := m.conn
	m.conn = nil
	m.gen++
	changed := m.setState(Disconnected)
	m.mu.Unlock()

	if old != nil {
		_ = old.Close()
	}
	if changed {
		m.stateChanged(Disconnected)
	}
}

func (m *Manager) context() context.Context {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ctx == nil {
		return context.Background()
	}
	return m.ctx
}

func (m *Manager) connect() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.gen++
	gen := m.gen
	changed := m.setState(Connecting)
	m.mu.Unlock()
	if changed {
		m.stateChanged(Connecting)
	}

	c, err := m.Dialer.Dial(m.context(), m.URL)
	if err != nil {
		m.lost(gen, err)
		return
	}

	m.mu.Lock()
	if m.closed || gen != m.gen {
		m.mu.Unlock()
		_ = c.Close()
		return
	}
	m.conn = c
	m.setState(Connected)
	m.mu.Unlock()

	log.Printf("realtime: connected to %s", m.URL)
	if m.OnConnect != nil {
		m.OnConnect()
	}
	m.stateChanged(Connected)
	go m.readLoop(gen, c)
}

func (m *Manager) readLoop(gen uint64, c Conn) {
	for {
		_, b, err := c.ReadMessage()
		if err != nil {
			m.lost(gen, err)
			return
		}
		ev, err := orders.DecodeEvent(b)
		if errors.Is(err, orders.ErrUnknownMessage) {
			continue
		}
		if err != nil {
			log.Printf("realtime: %v", err)
			continue
		}
		m.dispatch(ev)
	}
}

func (m *Manager) dispatch(ev orders.Event) {
	if m.Seen != nil && !m.Seen.First(ev) {
		return
	}
	switch e := ev.(type) {
	case orders.NewOrder:
		if m.OnNewOrder != nil {
			m.OnNewOrder(e.Order)
		}
		if m.Notifier != nil {
			if err := m.Notifier.Notify(m.context(), e.Order); err != nil {
				log.Printf("realtime: notify order %d: %v", e.Order.ID, err)
			}
		}
	case orders.OrderStatusUpdate:
		if m.OnOrderStatusUpdate != nil {
			m.OnOrderStatusUpdate(e.Order)
		}
	}
}

// lost handles the end of connection generation gen. Stale generations are
// ignored so one failure schedules at most one retry.
func (m *Manager) lost(gen uint64, err error) {
	m.mu.Lock()
	if m.closed || gen != m.gen {
		m.mu.Unlock()
		return
	}
	m.conn = nil
	m.gen++
	changed := m.setState(Disconnected)
	if m.AutoReconnect && m.timer == nil {
		delay := m.RetryDelay
		if delay <= 0 {
			delay = DefaultRetryDelay
		}
		var t Timer
		t = m.clock().AfterFunc(delay, func() {
			m.mu.Lock()
			if m.timer != t {
				m.mu.Unlock()
				return
			}
			m.timer = nil
			m.mu.Unlock()
			m.connect()
		})
		m.timer = t
	}
	m.mu.Unlock()

	log.Printf("realtime: disconnected: %v", err)
	if m.OnDisconnect != nil {
		m.OnDisconnect(err)
	}
	if changed {
		m.stateChanged(Disconnected)
	}
}

func (m *Manager) clock() Clock {
	if m.Clock == nil {
		return RealClock
	}
	return m.Clock
}

func (m *Manager) stopTimer() {
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
}

// setState must be called with mu held.
func (m *Manager) setState(s ConnState) bool {
	if m.state == s {
		return false
	}
	m.state = s
	return true
}

func (m *Manager) stateChanged(s ConnState) {
	if m.OnStateChange != nil {
		m.OnStateChange(s)
	}
}
