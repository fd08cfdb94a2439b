// Package app holds the session controller: the state machine that matches a
// client with a stranger, tears a previous session down before setting a new
// one up, and merges remote events into observable session state.
package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/randomio/pair/internal/core"
	"github.com/randomio/pair/internal/domain"
)

// State of the controller. TearingDown is a sub-phase of Matching, not a
// distinct observable state: every transition starts by vacating the previous
// session.
type State int

const (
	StateIdle State = iota
	StateMatching
	StatePaired
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateMatching:
		return "matching"
	case StatePaired:
		return "paired"
	default:
		return "unknown"
	}
}

const releaseTimeout = 5 * time.Second

// Controller owns the one live session of a client. At most one session is
// active at any time; a new Next call supersedes any in-flight one via the
// generation counter, so a late completion can never resurrect stale handles.
type Controller struct {
	self      domain.ParticipantID
	directory core.Directory
	channels  core.ChannelTransport
	media     core.MediaTransport

	mu          sync.Mutex
	gen         uint64
	state       State
	room        *domain.Room
	displayName string
	channel     core.Channel
	mediaSess   core.MediaSession
	localTrack  core.MediaTrack
	remoteVideo core.MediaTrack
	remoteAudio core.MediaTrack
	transcript  []domain.Message
}

func NewController(self domain.ParticipantID, d core.Directory, ch core.ChannelTransport, m core.MediaTransport) *Controller {
	return &Controller{
		self:      self,
		directory: d,
		channels:  ch,
		media:     m,
	}
}

// Self returns the local participant identity.
func (c *Controller) Self() domain.ParticipantID { return c.self }

// Next runs one full teardown-then-setup transition: vacate the previous
// session, ask the directory for a waiting room (creating one when nobody is
// waiting), then join the messaging channel and the media session of the
// chosen room. It is the single entry point for both "start chatting" and
// "next".
//
// On any directory or join failure the controller reverts to idle and the
// error surfaces to the caller; the vacated or orphaned room is still
// released best-effort. A Next that was overtaken by a newer call returns
// ErrSuperseded after discarding its own handles.
func (c *Controller) Next(ctx context.Context) error {
	gen, prevRoom, prevChannel, prevMedia := c.beginTransition()

	// Teardown before setup. Leave failures never block the new match;
	// the client is moving to a different room regardless.
	if prevChannel != nil {
		prevChannel.Leave()
	}
	if prevMedia != nil {
		prevMedia.Leave()
	}
	if prevRoom != nil {
		go c.release(prevRoom.ID)
	}

	match, err := c.directory.FindMatch(ctx, c.self)
	if err != nil {
		c.abort(gen)
		return fmt.Errorf("find match: %w", err)
	}

	var (
		room  domain.Room
		creds domain.Credentials
	)
	if len(match.Rooms) > 0 {
		// The directory orders candidates; no client-side tie-break.
		room = match.Rooms[0]
		creds = match.Creds
	} else {
		created, err := c.directory.CreateRoom(ctx, c.self)
		if err != nil {
			c.abort(gen)
			return fmt.Errorf("create room: %w", err)
		}
		room = created.Room
		creds = created.Creds
	}

	channel, err := c.channels.JoinChannel(ctx, room.ID, c.self, creds.ChannelToken, c.onMessage(gen))
	if err != nil {
		c.abort(gen)
		go c.release(room.ID)
		return fmt.Errorf("join channel: %w", err)
	}

	mediaSess, err := c.media.JoinMedia(ctx, room.ID, c.self, creds.MediaToken, c.remoteHandlers(gen))
	if err != nil {
		channel.Leave()
		c.abort(gen)
		go c.release(room.ID)
		return fmt.Errorf("join media: %w", err)
	}

	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		log.Debug().Str("module", "app.controller").
			Uint64("gen", gen).Str("room", string(room.ID)).
			Msg("superseded pairing attempt discarded")
		channel.Leave()
		mediaSess.Leave()
		go c.release(room.ID)
		return fmt.Errorf("room %s: %w", room.ID, core.ErrSuperseded)
	}
	c.room = &room
	c.channel = channel
	c.mediaSess = mediaSess
	c.localTrack = mediaSess.LocalTrack()
	c.state = StatePaired
	c.mu.Unlock()

	log.Info().Str("module", "app.controller").
		Str("room", string(room.ID)).Str("participant", string(c.self)).
		Msg("paired")
	return nil
}

// Send transmits text over the live channel and appends the local echo to the
// transcript once the transport acknowledged the write. The transport never
// reflects a sender's own message back, so the echo is not deduplicated.
func (c *Controller) Send(ctx context.Context, text string) error {
	c.mu.Lock()
	if c.state != StatePaired || c.channel == nil {
		c.mu.Unlock()
		return core.ErrNotPaired
	}
	gen := c.gen
	channel := c.channel
	c.mu.Unlock()

	if err := channel.Send(ctx, text); err != nil {
		return fmt.Errorf("send message: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen != gen {
		// A rematch raced the send; the message belongs to a dead session.
		return nil
	}
	c.transcript = append(c.transcript, domain.Message{From: c.self, Text: text})
	return nil
}

// Close vacates the current session. Used on client shutdown.
func (c *Controller) Close() {
	_, prevRoom, prevChannel, prevMedia := c.beginTransition()
	if prevChannel != nil {
		prevChannel.Leave()
	}
	if prevMedia != nil {
		prevMedia.Leave()
	}
	if prevRoom != nil {
		c.release(prevRoom.ID)
	}
	c.mu.Lock()
	c.state = StateIdle
	c.mu.Unlock()
}

// beginTransition bumps the generation, strips the session of its room and
// handles, and resets all observable state, so the UI never shows stale
// media or messages while the next pairing is established. The stripped
// handles are returned for best-effort teardown outside the lock.
func (c *Controller) beginTransition() (gen uint64, room *domain.Room, channel core.Channel, media core.MediaSession) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	gen = c.gen
	room, channel, media = c.room, c.channel, c.mediaSess
	c.room = nil
	c.channel = nil
	c.mediaSess = nil
	c.localTrack = nil
	c.remoteVideo = nil
	c.remoteAudio = nil
	c.transcript = nil
	c.state = StateMatching
	c.displayName = domain.RandomDisplayName()
	return gen, room, channel, media
}

// abort reverts to idle unless a newer transition already took over.
func (c *Controller) abort(gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen == gen {
		c.state = StateIdle
	}
}

// release marks a vacated room as matchable again. Exactly one release is
// issued per vacated room: the room slot is cleared under lock before the
// releasing goroutine is spawned. Failures are logged and swallowed.
func (c *Controller) release(id domain.RoomID) {
	ctx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
	defer cancel()
	if err := c.directory.ReleaseRoom(ctx, id); err != nil {
		log.Warn().Err(err).Str("module", "app.controller").
			Str("room", string(id)).Msg("release room failed")
	}
}

// onMessage returns the inbound handler for one generation. Messages from a
// superseded generation's channel are dropped instead of leaking into the
// current transcript.
func (c *Controller) onMessage(gen uint64) core.MessageHandler {
	return func(from domain.ParticipantID, text string) {
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.gen != gen {
			log.Debug().Str("module", "app.controller").
				Uint64("gen", gen).Msg("stale message dropped")
			return
		}
		c.transcript = append(c.transcript, domain.Message{From: from, Text: text})
	}
}

func (c *Controller) remoteHandlers(gen uint64) core.MediaHandlers {
	return core.MediaHandlers{
		OnRemoteVideo: func(t core.MediaTrack) { c.setRemote(gen, t, true) },
		OnRemoteAudio: func(t core.MediaTrack) { c.setRemote(gen, t, false) },
	}
}

func (c *Controller) setRemote(gen uint64, t core.MediaTrack, video bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen != gen {
		log.Debug().Str("module", "app.controller").
			Uint64("gen", gen).Str("kind", t.Kind()).Msg("stale remote track dropped")
		return
	}
	if video {
		c.remoteVideo = t
	} else {
		c.remoteAudio = t
	}
}
