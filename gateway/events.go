package gateway

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/c360/mtscore/component"
	"github.com/c360/mtscore/manager"
	"github.com/c360/mtscore/pkg/buffer"
)

// Event types on /ws/events.
const (
	EventState      = "state"
	EventConnection = "connection"
)

const (
	clientBuffer = 256
	writeWait    = 5 * time.Second
	pingPeriod   = 30 * time.Second
	pongWait     = 2 * pingPeriod
)

// Event is one message of the event stream.
type Event struct {
	Type       string              `json:"type"`
	Time       time.Time           `json:"time"`
	Component  string              `json:"component,omitempty"`
	From       string              `json:"from,omitempty"`
	To         string              `json:"to,omitempty"`
	Connection *manager.Connection `json:"connection,omitempty"`
}

// client is one event stream subscriber. Slow clients lose their oldest
// pending events.
type client struct {
	conn      *websocket.Conn
	pending   buffer.Buffer[[]byte]
	wake      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

func (c *client) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.pending.Close()
	})
}

func (s *Server) publishState(name string, from, to component.State) {
	s.broadcast(Event{Type: EventState, Time: time.Now(), Component: name, From: from.String(), To: to.String()})
}

func (s *Server) publishConnection(conn manager.Connection) {
	s.broadcast(Event{Type: EventConnection, Time: time.Now(), Component: conn.Spec.ClientComponent,
		To: conn.State.String(), Connection: &conn})
}

func (s *Server) broadcast(ev Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		s.logger.Warn("Event not encodable", "type", ev.Type, "error", err)
		return
	}
	s.clientsMu.Lock()
	defer s.clientsMu.Unlock()
	for c := range s.clients {
		if err := c.pending.Write(data); err != nil {
			continue
		}
		select {
		case c.wake <- struct{}{}:
		default:
		}
	}
	if len(s.clients) > 0 {
		s.eventsTotal.WithLabelValues(ev.Type).Inc()
	}
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("Event stream upgrade failed", "error", err)
		return
	}
	pending, err := buffer.NewCircularBuffer[[]byte](clientBuffer,
		buffer.WithOverflowPolicy[[]byte](buffer.DropOldest))
	if err != nil {
		_ = conn.Close()
		return
	}
	c := &client{conn: conn, pending: pending, wake: make(chan struct{}, 1), done: make(chan struct{})}

	s.clientsMu.Lock()
	s.clients[c] = struct{}{}
	s.clientsGauge.Set(float64(len(s.clients)))
	s.clientsMu.Unlock()
	s.logger.Debug("Event stream client connected", "remote", r.RemoteAddr)

	s.wg.Add(2)
	go s.readPump(c)
	go s.writePump(c)
}

// readPump discards client messages and notices when the peer goes away.
func (s *Server) readPump(c *client) {
	defer s.wg.Done()
	defer s.removeClient(c)

	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (s *Server) writePump(c *client) {
	defer s.wg.Done()
	defer s.removeClient(c)

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
			return
		case <-c.wake:
			for _, msg := range c.pending.ReadBatch(clientBuffer) {
				_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
					return
				}
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

func (s *Server) removeClient(c *client) {
	c.close()
	s.clientsMu.Lock()
	if _, ok := s.clients[c]; ok {
		delete(s.clients, c)
		s.clientsGauge.Set(float64(len(s.clients)))
	}
	s.clientsMu.Unlock()
	_ = c.conn.Close()
}

func (s *Server) closeClients() {
	s.clientsMu.Lock()
	clients := make([]*client, 0, len(s.clients))
	for c := range s.clients {
		clients = append(clients, c)
	}
	s.clientsMu.Unlock()
	for _, c := range clients {
		c.close()
	}
}
