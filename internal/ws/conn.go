package ws

import (
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 8192
	sendBuffer     = 256
)

var ErrSendBufferFull = errors.New("send buffer full")

// Conn adapts a gorilla websocket to Client. Outbound frames go through a
// buffered channel drained by writePump; inbound frames are handed to the
// dispatcher from readPump.
type Conn struct {
	id         string
	ws         *websocket.Conn
	send       chan []byte
	hub        *Hub
	dispatcher *Dispatcher

	closeOnce sync.Once
	done      chan struct{}
}

func NewConn(id string, ws *websocket.Conn, hub *Hub, dispatcher *Dispatcher) *Conn {
	return &Conn{
		id:         id,
		ws:         ws,
		send:       make(chan []byte, sendBuffer),
		hub:        hub,
		dispatcher: dispatcher,
		done:       make(chan struct{}),
	}
}

func (c *Conn) ID() string { return c.id }

func (c *Conn) Send(data []byte) error {
	select {
	case <-c.done:
		return websocket.ErrCloseSent
	default:
	}

	select {
	case c.send <- data:
		return nil
	default:
		return ErrSendBufferFull
	}
}

func (c *Conn) Close() error {
	c.closeOnce.Do(func() { close(c.done) })
	return c.ws.Close()
}

// Start registers the connection and runs its pumps. It returns immediately.
func (c *Conn) Start() {
	c.hub.Register(c)
	if msg, err := encode(EventConnected, ConnectedMessage{ConnectionID: c.id}); err == nil {
		c.Send(msg)
	}

	go c.writePump()
	go c.readPump()
}

func (c *Conn) readPump() {
	defer func() {
		c.hub.Unregister(c)
		c.dispatcher.Closed(c)
		c.Close()
		logrus.WithField("connection_id", c.id).Info("Connection closed")
	}()

	c.ws.SetReadLimit(maxMessageSize)
	c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logrus.WithError(err).WithField("connection_id", c.id).Warn("WebSocket read error")
			}
			return
		}

		c.dispatcher.Handle(c, data)
	}
}

func (c *Conn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()

	for {
		select {
		case <-c.done:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			c.ws.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case message := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
