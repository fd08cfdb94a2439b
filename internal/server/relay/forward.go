package relay

import (
	"errors"
	"io"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/randomio/pair/internal/domain"
)

// forward reads RTP from one member's published track and writes it into the
// partner's matching out track. The partner is resolved per packet: it may
// join after the publisher, or be replaced by a rejoin, without the publisher
// noticing.
func (m *MediaRelay) forward(roomID domain.RoomID, from domain.ParticipantID, track *webrtc.TrackRemote) {
	kind := track.Kind()
	for {
		pkt, _, err := track.ReadRTP()
		if err != nil {
			log.Debug().Err(err).Str("module", "server.relay").
				Str("room", string(roomID)).Str("participant", string(from)).
				Str("kind", kind.String()).Msg("forward loop stopped")
			return
		}
		m.writeToPartner(roomID, from, kind, pkt)
	}
}

func (m *MediaRelay) writeToPartner(roomID domain.RoomID, from domain.ParticipantID, kind webrtc.RTPCodecType, pkt *rtp.Packet) {
	out := m.partnerOut(roomID, from, kind)
	if out == nil {
		return
	}
	if err := out.WriteRTP(pkt); err != nil {
		// ErrClosedPipe just means the partner's track is not bound yet or
		// already gone; either way the packet is droppable.
		if !errors.Is(err, io.ErrClosedPipe) {
			log.Warn().Err(err).Str("module", "server.relay").
				Str("room", string(roomID)).Msg("forward write error")
		}
	}
}

func (m *MediaRelay) partnerOut(roomID domain.RoomID, from domain.ParticipantID, kind webrtc.RTPCodecType) *webrtc.TrackLocalStaticRTP {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for pid, member := range m.rooms[roomID] {
		if pid == from {
			continue
		}
		if kind == webrtc.RTPCodecTypeVideo {
			return member.outVideo
		}
		return member.outAudio
	}
	return nil
}
