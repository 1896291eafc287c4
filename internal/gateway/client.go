package gateway

import (
	"encoding/json"
	"log"
	"time"

	"cryptoengine/internal/model"

	"github.com/gorilla/websocket"
)

// Endpoint identifies which of the three logical endpoints (§4.6) a Client
// connected to. Each endpoint receives a different envelope mix.
type Endpoint string

const (
	EndpointOrderFlow  Endpoint = "orderFlow"
	EndpointTrading    Endpoint = "trading"
	EndpointIndicator  Endpoint = "indicator"
)

var supportedTypes = []string{"TRADE", "AGGREGATE_TRADE", "ORDER_BOOK", "BOOK_TICKER"}

func isSupportedType(t string) bool {
	for _, s := range supportedTypes {
		if s == t {
			return true
		}
	}
	return false
}

// Client is a single WebSocket session: a transport (conn + send queue)
// wrapped around a model.Session (filter state). One writer goroutine per
// client; a slow or broken client is removed without blocking any other
// client or the ingress path.
type Client struct {
	conn     *websocket.Conn
	send     chan []byte
	hub      *Hub
	endpoint Endpoint
	session  *model.Session
}

func newClient(hub *Hub, conn *websocket.Conn, endpoint Endpoint, id string) *Client {
	return &Client{
		conn:     conn,
		send:     make(chan []byte, 256),
		hub:      hub,
		endpoint: endpoint,
		session:  model.NewSession(id),
	}
}

func (c *Client) sendWelcome() {
	env := WelcomeEnvelope{
		Type:           "connected",
		Message:        "connected to " + string(c.endpoint) + " endpoint",
		SupportedTypes: supportedTypes,
	}
	c.enqueue(env)
}

func (c *Client) enqueue(v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	select {
	case c.send <- data:
	default:
		// Slow session: drop rather than block the sender. Persistent
		// backpressure is detected by writePump's write-deadline timeout,
		// which removes the client.
	}
}

// writePump drains c.send to the socket, coalescing any messages queued
// while a write was in flight into one frame (newline-separated), and
// sends a ping every 30s to detect dead peers.
func (c *Client) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(msg)

			n := len(c.send)
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-c.send)
			}

			if err := w.Close(); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump handles inbound control messages until the connection closes.
func (c *Client) readPump() {
	defer func() {
		c.hub.removeClient(c)
		c.conn.Close()
		log.Printf("[gateway] client %s disconnected", c.session.ID)
	}()

	c.conn.SetReadLimit(4096)
	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			break
		}

		var ctrl ControlMessage
		if err := json.Unmarshal(msg, &ctrl); err != nil {
			c.enqueue(ErrorEnvelope{Type: "error", Message: "invalid control message: " + err.Error()})
			continue
		}
		c.handleControl(ctrl)
	}
}

func (c *Client) handleControl(msg ControlMessage) {
	switch msg.Action {
	case "subscribe":
		for _, t := range msg.Types {
			if !isSupportedType(t) {
				c.enqueue(ErrorEnvelope{Type: "error", Message: "unknown data type: " + t})
				return
			}
		}
		var symbols []string
		if msg.Symbol != "" {
			symbols = []string{msg.Symbol}
		}
		c.session.SetSymbolFilter(symbols)
		c.session.SetDataTypeFilter(msg.Types)

	case "unsubscribe":
		c.session.SetSymbolFilter(nil)
		c.session.SetDataTypeFilter(nil)

	case "getStats":
		if msg.Symbol == "" {
			c.enqueue(map[string]interface{}{"type": "stats", "stats": c.hub.stats.All()})
			return
		}
		c.enqueue(map[string]interface{}{
			"type": "stats", "symbol": msg.Symbol, "stats": c.hub.stats.Snapshot(msg.Symbol),
		})

	case "getProviders":
		c.enqueue(map[string]interface{}{"type": "providers", "providers": c.hub.providers})

	case "getIntervals":
		c.enqueue(map[string]interface{}{"type": "intervals", "intervals": c.hub.intervals})

	default:
		c.enqueue(ErrorEnvelope{Type: "error", Message: "Unknown action: " + msg.Action})
	}
}
