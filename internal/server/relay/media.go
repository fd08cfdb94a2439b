package relay

import (
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/pion/interceptor"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/randomio/pair/internal/domain"
	"github.com/randomio/pair/internal/server/store"
)

const offerTimeout = 15 * time.Second

var errRoomFull = errors.New("room full")

// memberMedia is one member's answering PeerConnection plus the outbound
// tracks its partner's RTP is forwarded into. The out tracks are attached
// before the answer is created, so no renegotiation is ever needed.
type memberMedia struct {
	pc       *webrtc.PeerConnection
	outVideo *webrtc.TrackLocalStaticRTP
	outAudio *webrtc.TrackLocalStaticRTP
}

// MediaRelay answers each member's offer and forwards published RTP to the
// other member of the room.
type MediaRelay struct {
	store      *store.Store
	pingPeriod time.Duration

	mu    sync.RWMutex
	rooms map[domain.RoomID]map[domain.ParticipantID]*memberMedia
}

func NewMediaRelay(st *store.Store, pingPeriod time.Duration) *MediaRelay {
	if pingPeriod <= 0 {
		pingPeriod = defaultPingPeriod
	}
	return &MediaRelay{
		store:      st,
		pingPeriod: pingPeriod,
		rooms:      make(map[domain.RoomID]map[domain.ParticipantID]*memberMedia),
	}
}

// HandleMedia runs one member's media session: accept, answer its offer, then
// hold the signaling socket open until the member leaves. Closing the socket
// is the leave signal.
func (m *MediaRelay) HandleMedia(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	roomID := domain.RoomID(q.Get("roomId"))
	pid := domain.ParticipantID(q.Get("userId"))
	token := q.Get("token")

	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "server.relay").Msg("media upgrade")
		return
	}
	defer ws.Close()

	if reason := m.admissible(roomID, pid, token); reason != "" {
		log.Warn().Str("module", "server.relay").
			Str("room", string(roomID)).Str("participant", string(pid)).
			Str("reason", reason).Msg("media join refused")
		_ = ws.WriteJSON(envelope{Type: "error", Error: reason})
		return
	}
	if err := ws.WriteJSON(envelope{Type: "joined"}); err != nil {
		return
	}

	var offer envelope
	_ = ws.SetReadDeadline(time.Now().Add(offerTimeout))
	if err := ws.ReadJSON(&offer); err != nil || offer.Type != "offer" {
		log.Warn().Err(err).Str("module", "server.relay").
			Str("room", string(roomID)).Msg("expected offer")
		return
	}
	_ = ws.SetReadDeadline(time.Time{})

	member, answer, err := m.answer(roomID, pid, offer.SDP)
	if err != nil {
		log.Error().Err(err).Str("module", "server.relay").
			Str("room", string(roomID)).Str("participant", string(pid)).Msg("answer offer")
		reason := "negotiation failed"
		if errors.Is(err, errRoomFull) {
			reason = "room full"
		}
		_ = ws.WriteJSON(envelope{Type: "error", Error: reason})
		return
	}
	defer m.removeMember(roomID, pid, member)

	if err := ws.WriteJSON(envelope{Type: "answer", SDP: answer}); err != nil {
		return
	}
	log.Info().Str("module", "server.relay").
		Str("room", string(roomID)).Str("participant", string(pid)).Msg("media joined")

	// Block until the member hangs up. The keepalive frees the room slot of a
	// silently dead peer; the relay is the socket's only writer here.
	armReadDeadline(ws, m.pingPeriod)
	stop := make(chan struct{})
	defer close(stop)
	go pingLoop(ws, m.pingPeriod, stop)
	for {
		if _, _, err := ws.ReadMessage(); err != nil {
			return
		}
	}
}

func (m *MediaRelay) admissible(roomID domain.RoomID, pid domain.ParticipantID, token string) string {
	if roomID == "" || pid == "" {
		return "missing roomId or userId"
	}
	if _, ok := m.store.Get(roomID); !ok {
		return "room not found"
	}
	if !m.store.ValidToken(token, pid) {
		return "invalid token"
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	members := m.rooms[roomID]
	if _, rejoining := members[pid]; !rejoining && len(members) >= roomCapacity {
		return "room full"
	}
	return ""
}

// answer builds the answering PeerConnection for one member and registers it
// in the room.
func (m *MediaRelay) answer(roomID domain.RoomID, pid domain.ParticipantID, offerSDP string) (*memberMedia, string, error) {
	mediaEngine := &webrtc.MediaEngine{}
	if err := mediaEngine.RegisterDefaultCodecs(); err != nil {
		return nil, "", err
	}
	interceptorRegistry := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(mediaEngine, interceptorRegistry); err != nil {
		return nil, "", err
	}
	api := webrtc.NewAPI(
		webrtc.WithMediaEngine(mediaEngine),
		webrtc.WithInterceptorRegistry(interceptorRegistry),
	)

	pc, err := api.NewPeerConnection(webrtc.Configuration{})
	if err != nil {
		return nil, "", err
	}

	if err := pc.SetRemoteDescription(webrtc.SessionDescription{
		Type: webrtc.SDPTypeOffer,
		SDP:  offerSDP,
	}); err != nil {
		pc.Close()
		return nil, "", err
	}

	outVideo, err := webrtc.NewTrackLocalStaticRTP(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8, ClockRate: 90000},
		"video", "pair-"+string(pid))
	if err != nil {
		pc.Close()
		return nil, "", err
	}
	outAudio, err := webrtc.NewTrackLocalStaticRTP(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 2},
		"audio", "pair-"+string(pid))
	if err != nil {
		pc.Close()
		return nil, "", err
	}
	for _, track := range []*webrtc.TrackLocalStaticRTP{outVideo, outAudio} {
		sender, err := pc.AddTrack(track)
		if err != nil {
			pc.Close()
			return nil, "", err
		}
		go drainRTCP(sender)
	}

	member := &memberMedia{pc: pc, outVideo: outVideo, outAudio: outAudio}

	pc.OnTrack(func(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
		log.Info().Str("module", "server.relay").
			Str("room", string(roomID)).Str("participant", string(pid)).
			Str("kind", track.Kind().String()).Msg("forwarding track")
		m.forward(roomID, pid, track)
	})

	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		pc.Close()
		return nil, "", err
	}
	gathered := webrtc.GatheringCompletePromise(pc)
	if err := pc.SetLocalDescription(answer); err != nil {
		pc.Close()
		return nil, "", err
	}
	<-gathered

	if err := m.register(roomID, pid, member); err != nil {
		pc.Close()
		return nil, "", err
	}

	return member, pc.LocalDescription().SDP, nil
}

// register installs the member in the room. Capacity is re-checked here under
// the write lock: admissible runs before the offer is read, so two joiners
// racing for the last slot both pass it, and only registration decides.
func (m *MediaRelay) register(roomID domain.RoomID, pid domain.ParticipantID, member *memberMedia) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	members, ok := m.rooms[roomID]
	if !ok {
		members = make(map[domain.ParticipantID]*memberMedia)
		m.rooms[roomID] = members
	}
	if old, rejoining := members[pid]; rejoining {
		old.pc.Close()
	} else if len(members) >= roomCapacity {
		return errRoomFull
	}
	members[pid] = member
	return nil
}

func (m *MediaRelay) removeMember(roomID domain.RoomID, pid domain.ParticipantID, member *memberMedia) {
	m.mu.Lock()
	if members, ok := m.rooms[roomID]; ok && members[pid] == member {
		delete(members, pid)
		if len(members) == 0 {
			delete(m.rooms, roomID)
		}
	}
	m.mu.Unlock()
	member.pc.Close()
	log.Info().Str("module", "server.relay").
		Str("room", string(roomID)).Str("participant", string(pid)).Msg("media left")
}

func drainRTCP(sender *webrtc.RTPSender) {
	buf := make([]byte, 1500)
	for {
		if _, _, err := sender.Read(buf); err != nil {
			return
		}
	}
}
