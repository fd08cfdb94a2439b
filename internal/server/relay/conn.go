// Package relay hosts the per-room realtime endpoints: the messaging channel
// fanout and the media answerer/forwarder.
package relay

import (
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

var errBackpressure = errors.New("backpressure")

const (
	sendQueueSize = 32
	writeWait     = 5 * time.Second

	defaultPingPeriod = 50 * time.Second
)

// envelope is the wire format shared by both websocket endpoints.
type envelope struct {
	Type  string `json:"type"`
	From  string `json:"from,omitempty"`
	Text  string `json:"text,omitempty"`
	SDP   string `json:"sdp,omitempty"`
	Error string `json:"error,omitempty"`
}

// wsConn wraps a websocket with a bounded send queue so one slow reader
// cannot stall the relay. It pings on pingPeriod and expects a pong within
// twice that, so a silently dead peer frees its room slot instead of holding
// it until TCP gives up.
type wsConn struct {
	ws         *websocket.Conn
	send       chan []byte
	pingPeriod time.Duration

	mu     sync.RWMutex
	closed bool
}

func newWSConn(ws *websocket.Conn, pingPeriod time.Duration) *wsConn {
	if pingPeriod <= 0 {
		pingPeriod = defaultPingPeriod
	}
	c := &wsConn{
		ws:         ws,
		send:       make(chan []byte, sendQueueSize),
		pingPeriod: pingPeriod,
	}
	armReadDeadline(ws, pingPeriod)
	go c.writePump()
	return c
}

// armReadDeadline sets the pong-refreshed read deadline allowing one missed
// ping before the connection is declared dead.
func armReadDeadline(ws *websocket.Conn, pingPeriod time.Duration) {
	pongWait := 2 * pingPeriod
	_ = ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})
}

func (c *wsConn) trySend(data []byte) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return errors.New("connection closed")
	}
	select {
	case c.send <- data:
		return nil
	default:
		return errBackpressure
	}
}

func (c *wsConn) close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.ws.Close()
	c.mu.Unlock()
}

func (c *wsConn) writePump() {
	ticker := time.NewTicker(c.pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case data, ok := <-c.send:
			if !ok {
				return
			}
			if err := c.ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				log.Error().Err(err).Str("module", "server.relay").Msg("writePump set deadline")
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "server.relay").Msg("writePump write error")
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Debug().Err(err).Str("module", "server.relay").Msg("writePump ping error")
				return
			}
		}
	}
}

// pingLoop drives the keepalive for sockets that are not wrapped in a wsConn
// (the media signaling socket, where the relay is the only writer after the
// answer).
func pingLoop(ws *websocket.Conn, period time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
