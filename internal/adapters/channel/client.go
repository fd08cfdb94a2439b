// Package channel is the websocket client for the per-room messaging channel.
package channel

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/randomio/pair/internal/core"
	"github.com/randomio/pair/internal/domain"
)

const (
	handshakeTimeout = 10 * time.Second
	writeTimeout     = 5 * time.Second
)

var errChannelClosed = errors.New("channel closed")

// envelope mirrors the relay's wire format.
type envelope struct {
	Type  string `json:"type"`
	From  string `json:"from,omitempty"`
	Text  string `json:"text,omitempty"`
	Error string `json:"error,omitempty"`
}

// Transport dials channel sessions against one relay endpoint.
type Transport struct {
	base   string // ws(s) scheme
	dialer *websocket.Dialer
}

func NewTransport(base string) *Transport {
	return &Transport{
		base:   base,
		dialer: &websocket.Dialer{HandshakeTimeout: handshakeTimeout},
	}
}

// JoinChannel dials the relay, waits for its accept, then starts the read
// loop dispatching inbound messages to onMessage in arrival order.
func (t *Transport) JoinChannel(ctx context.Context, room domain.RoomID, pid domain.ParticipantID, token string, onMessage core.MessageHandler) (core.Channel, error) {
	q := url.Values{}
	q.Set("roomId", string(room))
	q.Set("userId", string(pid))
	q.Set("token", token)
	u := fmt.Sprintf("%s/api/ws/channel?%s", t.base, q.Encode())

	ws, _, err := t.dialer.DialContext(ctx, u, nil)
	if err != nil {
		return nil, &core.JoinError{Stage: core.StageChannel, Err: err}
	}

	// The relay answers every join attempt before any traffic flows.
	var hello envelope
	_ = ws.SetReadDeadline(time.Now().Add(handshakeTimeout))
	if err := ws.ReadJSON(&hello); err != nil {
		ws.Close()
		return nil, &core.JoinError{Stage: core.StageChannel, Err: err}
	}
	if hello.Type != "joined" {
		ws.Close()
		return nil, &core.JoinError{Stage: core.StageChannel, Err: fmt.Errorf("relay refused join: %s", hello.Error)}
	}
	_ = ws.SetReadDeadline(time.Time{})

	conn := &conn{
		ws:     ws,
		room:   room,
		closed: make(chan struct{}),
	}
	go conn.readLoop(onMessage)
	return conn, nil
}

type conn struct {
	ws   *websocket.Conn
	room domain.RoomID

	writeMu sync.Mutex
	once    sync.Once
	closed  chan struct{}
}

// Send writes the message to the relay. A successful write is the ack; the
// relay never reflects it back to us.
func (c *conn) Send(ctx context.Context, text string) error {
	select {
	case <-c.closed:
		return errChannelClosed
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := c.ws.WriteJSON(envelope{Type: "message", Text: text}); err != nil {
		return fmt.Errorf("channel write: %w", err)
	}
	return nil
}

// Leave closes the channel. Safe to call any number of times.
func (c *conn) Leave() {
	c.once.Do(func() {
		close(c.closed)
		c.writeMu.Lock()
		_ = c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(writeTimeout))
		c.writeMu.Unlock()
		if err := c.ws.Close(); err != nil {
			log.Debug().Err(err).Str("module", "adapters.channel").
				Str("room", string(c.room)).Msg("close after leave")
		}
	})
}

func (c *conn) readLoop(onMessage core.MessageHandler) {
	defer c.Leave()
	for {
		var env envelope
		if err := c.ws.ReadJSON(&env); err != nil {
			select {
			case <-c.closed:
			default:
				log.Warn().Err(err).Str("module", "adapters.channel").
					Str("room", string(c.room)).Msg("channel read error")
			}
			return
		}
		if env.Type != "message" || onMessage == nil {
			continue
		}
		onMessage(domain.ParticipantID(env.From), env.Text)
	}
}
