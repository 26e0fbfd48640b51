package realtime

import (
	"log"
	"net/http"
	"sync"

	"github.com/ariefcatur/go-guesthouse-orders/internal/orders"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const DefaultGreeting = "connected to order updates"

// Server upgrades HTTP requests to realtime connections and relays bus events
// to them. It never touches the order store.
type Server struct {
	Bus        *orders.Bus
	SendBuffer int
	Greeting   string
	Upgrader   websocket.Upgrader

	mu    sync.Mutex
	conns map[*Conn]struct{}
}

func NewServer(bus *orders.Bus, sendBuffer int) *Server {
	if sendBuffer <= 0 {
		sendBuffer = 64
	}
	return &Server{
		Bus:        bus,
		SendBuffer: sendBuffer,
		Greeting:   DefaultGreeting,
		Upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// admin consoles are served from other origins (PWA, native shell)
			CheckOrigin: func(*http.Request) bool { return true },
		},
		conns: map[*Conn]struct{}{},
	}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := s.Upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("realtime: upgrade: %v", err)
		return
	}
	c := newConn(uuid.NewString(), ws, s.Bus, s.SendBuffer)
	if !s.track(c) {
		c.closeWith(websocket.CloseGoingAway)
		return
	}
	defer s.untrack(c)

	if !c.open(s.Greeting) {
		return
	}
	log.Printf("realtime %s: open from %s", c.ID, r.RemoteAddr)
	c.readLoop()
	log.Printf("realtime %s: closed", c.ID)
}

// Count reports live connections.
func (s *Server) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

// Shutdown closes every live connection and refuses new ones.
func (s *Server) Shutdown() {
	s.mu.Lock()
	conns := make([]*Conn, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	s.conns = nil
	s.mu.Unlock()

	for _, c := range conns {
		c.closeWith(websocket.CloseGoingAway)
	}
}

func (s *Server) track(c *Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conns == nil {
		return false
	}
	s.conns[c] = struct{}{}
	return true
}

func (s *Server) untrack(c *Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conns, c)
}
