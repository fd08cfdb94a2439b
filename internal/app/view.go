package app

import (
	"github.com/randomio/pair/internal/core"
	"github.com/randomio/pair/internal/domain"
)

// View is a point-in-time projection of controller state for a rendering
// layer. Purely reactive: the bridge reads, it never mutates.
type View struct {
	State       State
	Self        domain.ParticipantID
	Room        *domain.Room
	DisplayName string
	Transcript  []domain.Message
	LocalTrack  core.MediaTrack
	RemoteVideo core.MediaTrack
	RemoteAudio core.MediaTrack
}

// Mine attributes a transcript entry. Attribution is a pure function of
// participant identity, not of how the message arrived.
func (v View) Mine(m domain.Message) bool {
	return m.From == v.Self
}

// Paired reports whether the view shows a live pairing.
func (v View) Paired() bool { return v.State == StatePaired }

// Snapshot copies the observable session state. The returned transcript and
// room are the caller's to keep; later transitions do not mutate them.
func (c *Controller) Snapshot() View {
	c.mu.Lock()
	defer c.mu.Unlock()

	v := View{
		State:       c.state,
		Self:        c.self,
		DisplayName: c.displayName,
		LocalTrack:  c.localTrack,
		RemoteVideo: c.remoteVideo,
		RemoteAudio: c.remoteAudio,
	}
	if c.room != nil {
		room := *c.room
		v.Room = &room
	}
	if len(c.transcript) > 0 {
		v.Transcript = make([]domain.Message, len(c.transcript))
		copy(v.Transcript, c.transcript)
	}
	return v
}
