package hub

import (
	"time"

	"github.com/gofiber/websocket/v2"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
)

// Client is one websocket connection attached to a hub.
type Client struct {
	hub     *Hub
	conn    *websocket.Conn
	send    chan Message
	initial []Message
	onRecv  func([]byte)
}

// NewClient creates a client. initial messages are written before any
// broadcast, so a new dashboard starts from a snapshot.
func NewClient(h *Hub, conn *websocket.Conn, initial ...Message) *Client {
	return &Client{
		hub:     h,
		conn:    conn,
		send:    make(chan Message, 256),
		initial: initial,
	}
}

// OnReceive sets a handler for frames sent by the browser.
func (c *Client) OnReceive(fn func(data []byte)) {
	c.onRecv = fn
}

// Run registers the client and pumps messages until the connection closes.
// Call it from the websocket handler; it blocks.
func (c *Client) Run() {
	for _, m := range c.initial {
		c.send <- m
	}
	select {
	case c.hub.register <- c:
	case <-c.hub.done:
		c.conn.Close()
		return
	}
	go c.writePump()
	c.readPump()
}

func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		if c.onRecv != nil {
			c.onRecv(data)
		}
	}
}

// writePump is the only writer on the connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			mt := websocket.TextMessage
			if msg.Type == BinaryMessage {
				mt = websocket.BinaryMessage
			}
			if err := c.conn.WriteMessage(mt, msg.Data); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
