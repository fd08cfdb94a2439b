// Package core defines the ports between the session controller and its
// collaborators. The controller never imports transport packages; adapters
// implement these interfaces and own the underlying resources.
package core

import (
	"context"

	"github.com/randomio/pair/internal/domain"
)

// Match is a directory answer to "find me a partner": zero or more rooms
// already waiting plus the credentials to join one of them.
type Match struct {
	Rooms []domain.Room
	Creds domain.Credentials
}

// Created is a freshly created room in a matchable state.
type Created struct {
	Room  domain.Room
	Creds domain.Credentials
}

// Directory is the room-persistence service. It holds no client-side state
// between calls.
type Directory interface {
	CreateRoom(ctx context.Context, pid domain.ParticipantID) (*Created, error)
	FindMatch(ctx context.Context, pid domain.ParticipantID) (*Match, error)
	// ReleaseRoom marks a vacated room as matchable again. Best-effort:
	// callers must not let a failure block local teardown.
	ReleaseRoom(ctx context.Context, id domain.RoomID) error
}

// MessageHandler receives inbound channel messages in arrival order. The
// transport never reflects a sender's own messages back through it.
type MessageHandler func(from domain.ParticipantID, text string)

// Channel is a live messaging channel for one room.
type Channel interface {
	Send(ctx context.Context, text string) error
	// Leave is safe to call more than once and on a dead channel.
	Leave()
}

type ChannelTransport interface {
	JoinChannel(ctx context.Context, room domain.RoomID, pid domain.ParticipantID, token string, onMessage MessageHandler) (Channel, error)
}

// MediaTrack is an opaque handle to a media track, local or remote. Kind is
// "audio" or "video".
type MediaTrack interface {
	ID() string
	Kind() string
}

// MediaHandlers receive remote media as it becomes available. Either handler
// may fire any time after a successful join, at most once per kind in a
// two-party room. Nil handlers are ignored.
type MediaHandlers struct {
	OnRemoteVideo func(MediaTrack)
	OnRemoteAudio func(MediaTrack)
}

// MediaSession is a live media session for one room: local capture published,
// remote tracks subscribed.
type MediaSession interface {
	// LocalTrack returns the published local video track, or nil when no
	// capture device was available.
	LocalTrack() MediaTrack
	// Leave stops local capture and releases the session. Idempotent.
	Leave()
}

type MediaTransport interface {
	JoinMedia(ctx context.Context, room domain.RoomID, pid domain.ParticipantID, token string, h MediaHandlers) (MediaSession, error)
}
