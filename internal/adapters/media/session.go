// Package media is the client side of the media transport: a signaling
// websocket plus a pion PeerConnection publishing local capture and
// subscribing to the remote participant's tracks.
package media

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/randomio/pair/internal/core"
	"github.com/randomio/pair/internal/domain"
)

const (
	handshakeTimeout = 10 * time.Second
	answerTimeout    = 15 * time.Second
	writeTimeout     = 5 * time.Second
)

type envelope struct {
	Type  string `json:"type"`
	SDP   string `json:"sdp,omitempty"`
	Error string `json:"error,omitempty"`
}

// Transport dials media sessions against one relay endpoint.
type Transport struct {
	base   string // ws(s) scheme
	stun   []string
	dialer *websocket.Dialer
}

func NewTransport(base string, stunServers []string) *Transport {
	return &Transport{
		base:   base,
		stun:   stunServers,
		dialer: &websocket.Dialer{HandshakeTimeout: handshakeTimeout},
	}
}

// JoinMedia dials the relay's media endpoint, starts local capture, and runs
// the offer/answer exchange. Remote tracks are dispatched to h per kind as
// they arrive, at most once per kind in a two-party room.
func (t *Transport) JoinMedia(ctx context.Context, room domain.RoomID, pid domain.ParticipantID, token string, h core.MediaHandlers) (core.MediaSession, error) {
	q := url.Values{}
	q.Set("roomId", string(room))
	q.Set("userId", string(pid))
	q.Set("token", token)
	u := fmt.Sprintf("%s/api/ws/media?%s", t.base, q.Encode())

	ws, _, err := t.dialer.DialContext(ctx, u, nil)
	if err != nil {
		return nil, &core.JoinError{Stage: core.StageMedia, Err: err}
	}

	var hello envelope
	_ = ws.SetReadDeadline(time.Now().Add(handshakeTimeout))
	if err := ws.ReadJSON(&hello); err != nil {
		ws.Close()
		return nil, &core.JoinError{Stage: core.StageMedia, Err: err}
	}
	if hello.Type != "joined" {
		ws.Close()
		return nil, &core.JoinError{Stage: core.StageMedia, Err: fmt.Errorf("relay refused join: %s", hello.Error)}
	}

	pc, local, stopCapture, err := buildPeer(t.stun)
	if err != nil {
		ws.Close()
		return nil, &core.JoinError{Stage: core.StageMedia, Err: err}
	}

	sess := &session{
		ws:          ws,
		pc:          pc,
		room:        room,
		local:       local,
		stopCapture: stopCapture,
	}

	pc.OnTrack(func(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
		log.Info().Str("module", "adapters.media").
			Str("room", string(room)).Str("kind", track.Kind().String()).
			Str("track_id", track.ID()).Msg("remote track")
		rt := remoteTrack{t: track}
		switch track.Kind() {
		case webrtc.RTPCodecTypeVideo:
			if h.OnRemoteVideo != nil {
				h.OnRemoteVideo(rt)
			}
		case webrtc.RTPCodecTypeAudio:
			if h.OnRemoteAudio != nil {
				h.OnRemoteAudio(rt)
			}
		}
		go sess.drain(track)
	})

	if err := sess.negotiate(); err != nil {
		sess.Leave()
		return nil, &core.JoinError{Stage: core.StageMedia, Err: err}
	}

	go sess.watch()
	return sess, nil
}

type session struct {
	ws          *websocket.Conn
	pc          *webrtc.PeerConnection
	room        domain.RoomID
	local       core.MediaTrack
	stopCapture func()

	once sync.Once
}

func (s *session) LocalTrack() core.MediaTrack { return s.local }

// Leave stops capture and tears the session down. Idempotent; close errors
// are logged and swallowed since the client is moving on regardless.
func (s *session) Leave() {
	s.once.Do(func() {
		if s.stopCapture != nil {
			s.stopCapture()
		}
		if err := s.pc.Close(); err != nil {
			log.Debug().Err(err).Str("module", "adapters.media").
				Str("room", string(s.room)).Msg("peer close after leave")
		}
		_ = s.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(writeTimeout))
		if err := s.ws.Close(); err != nil {
			log.Debug().Err(err).Str("module", "adapters.media").
				Str("room", string(s.room)).Msg("signaling close after leave")
		}
	})
}

// negotiate runs vanilla (non-trickle) offer/answer over the signaling socket:
// gather completely, ship the offer, apply the relay's answer.
func (s *session) negotiate() error {
	offer, err := s.pc.CreateOffer(nil)
	if err != nil {
		return fmt.Errorf("create offer: %w", err)
	}
	gathered := webrtc.GatheringCompletePromise(s.pc)
	if err := s.pc.SetLocalDescription(offer); err != nil {
		return fmt.Errorf("set local description: %w", err)
	}
	<-gathered

	_ = s.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := s.ws.WriteJSON(envelope{Type: "offer", SDP: s.pc.LocalDescription().SDP}); err != nil {
		return fmt.Errorf("send offer: %w", err)
	}

	var answer envelope
	_ = s.ws.SetReadDeadline(time.Now().Add(answerTimeout))
	if err := s.ws.ReadJSON(&answer); err != nil {
		return fmt.Errorf("read answer: %w", err)
	}
	if answer.Type != "answer" {
		return fmt.Errorf("unexpected signaling message %q: %s", answer.Type, answer.Error)
	}
	_ = s.ws.SetReadDeadline(time.Time{})

	if err := s.pc.SetRemoteDescription(webrtc.SessionDescription{
		Type: webrtc.SDPTypeAnswer,
		SDP:  answer.SDP,
	}); err != nil {
		return fmt.Errorf("apply answer: %w", err)
	}
	return nil
}

// watch keeps reading the signaling socket so control frames are processed;
// the relay sends nothing after the answer.
func (s *session) watch() {
	for {
		if _, _, err := s.ws.ReadMessage(); err != nil {
			return
		}
	}
}

// drain consumes remote RTP so receiver-side interceptors keep functioning
// even when no renderer is attached to the track handle.
func (s *session) drain(track *webrtc.TrackRemote) {
	for {
		if _, _, err := track.ReadRTP(); err != nil {
			return
		}
	}
}

type remoteTrack struct {
	t *webrtc.TrackRemote
}

func (r remoteTrack) ID() string   { return r.t.ID() }
func (r remoteTrack) Kind() string { return r.t.Kind().String() }
