package ws

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofiber/websocket/v2"
	"golang.org/x/time/rate"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 30 * time.Second
	maxMessageSize = 64 * 1024
)

// Client is a single live websocket connection. It satisfies
// registry.Conn through Send.
type Client struct {
	ws      *websocket.Conn
	send    chan []byte
	uid     string
	connID  string
	srv     *Server
	limiter *rate.Limiter
	mu      sync.Mutex
	rooms   map[string]bool
	closed  int32
}

func newClient(conn *websocket.Conn, uid, connID string, srv *Server, rps int) *Client {
	if rps <= 0 {
		rps = 20
	}
	return &Client{
		ws:      conn,
		send:    make(chan []byte, 256),
		uid:     uid,
		connID:  connID,
		srv:     srv,
		limiter: rate.NewLimiter(rate.Limit(rps), rps),
		rooms:   make(map[string]bool),
	}
}

// Send queues an outbound event frame. Dropping on a saturated or
// closed connection is acceptable: emission is fire-and-forget and the
// client resyncs over the cursor API on reconnect.
func (c *Client) Send(event string, payload interface{}) error {
	b, err := json.Marshal(outbound{Event: event, Data: payload})
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if atomic.LoadInt32(&c.closed) == 1 {
		return websocket.ErrCloseSent
	}
	select {
	case c.send <- b:
		return nil
	default:
		return websocket.ErrCloseSent
	}
}

func (c *Client) joinRoom(scope string) {
	c.mu.Lock()
	c.rooms[scope] = true
	c.mu.Unlock()
}

// roomList snapshots the scopes this connection subscribed to; the
// server uses it to drop the connection from its rooms on teardown.
func (c *Client) roomList() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.rooms))
	for scope := range c.rooms {
		out = append(out, scope)
	}
	return out
}

func (c *Client) readPump() {
	defer func() {
		c.srv.disconnect(c)
		c.close()
	}()

	c.ws.SetReadLimit(maxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			return
		}
		if !c.limiter.Allow() {
			_ = c.Send(EventError, ErrorPayload{
				Message:    "rate limit exceeded",
				HTTPStatus: 429,
				IsError:    true,
			})
			continue
		}
		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			// malformed payloads never crash the connection
			_ = c.Send(EventError, ErrorPayload{
				Message:    "malformed event payload",
				HTTPStatus: 400,
				IsError:    true,
			})
			continue
		}
		c.srv.dispatch(c, env)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, []byte{}); err != nil {
				return
			}
		}
	}
}

func (c *Client) close() {
	if atomic.CompareAndSwapInt32(&c.closed, 0, 1) {
		c.mu.Lock()
		close(c.send)
		c.mu.Unlock()
		_ = c.ws.Close()
	}
}
