// Package store is the in-memory room directory: room lifecycle, random
// matching, and short-lived join tokens.
package store

import (
	"math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/randomio/pair/internal/domain"
)

type roomEntry struct {
	room  domain.Room
	owner domain.ParticipantID
}

type tokenEntry struct {
	pid     domain.ParticipantID
	expires time.Time
}

// Store owns all directory state. Rooms and tokens live only in memory for
// the process lifetime.
type Store struct {
	mu     sync.RWMutex
	rooms  map[domain.RoomID]*roomEntry
	tokens map[string]tokenEntry
	ttl    time.Duration
	now    func() time.Time
}

func New(tokenTTL time.Duration) *Store {
	return &Store{
		rooms:  make(map[domain.RoomID]*roomEntry),
		tokens: make(map[string]tokenEntry),
		ttl:    tokenTTL,
		now:    time.Now,
	}
}

// CreateRoom registers a fresh room in waiting state, owned by the creator so
// it is never handed back to them as a match.
func (s *Store) CreateRoom(owner domain.ParticipantID) domain.Room {
	room := domain.Room{
		ID:     domain.RoomID(uuid.NewString()),
		Status: domain.RoomWaiting,
	}
	s.mu.Lock()
	s.rooms[room.ID] = &roomEntry{room: room, owner: owner}
	s.mu.Unlock()
	log.Info().Str("module", "server.store").
		Str("room", string(room.ID)).Str("owner", string(owner)).Msg("room created")
	return room
}

// RandomWaiting picks a random waiting room not owned by the requester and
// flips it to active. The second return is false when nobody is waiting.
func (s *Store) RandomWaiting(requester domain.ParticipantID) (domain.Room, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	candidates := make([]*roomEntry, 0, len(s.rooms))
	for _, e := range s.rooms {
		if e.room.Status == domain.RoomWaiting && e.owner != requester {
			candidates = append(candidates, e)
		}
	}
	if len(candidates) == 0 {
		return domain.Room{}, false
	}

	e := candidates[rand.IntN(len(candidates))]
	e.room.Status = domain.RoomActive
	log.Info().Str("module", "server.store").
		Str("room", string(e.room.ID)).Str("requester", string(requester)).Msg("room matched")
	return e.room, true
}

// SetWaiting marks a vacated room as matchable again.
func (s *Store) SetWaiting(id domain.RoomID) (domain.Room, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.rooms[id]
	if !ok {
		return domain.Room{}, false
	}
	e.room.Status = domain.RoomWaiting
	log.Info().Str("module", "server.store").Str("room", string(id)).Msg("room back to waiting")
	return e.room, true
}

// Get returns a room by ID.
func (s *Store) Get(id domain.RoomID) (domain.Room, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.rooms[id]
	if !ok {
		return domain.Room{}, false
	}
	return e.room, true
}

// IssueCredentials mints a media and a channel token bound to pid, valid for
// the store's TTL. Expired tokens are purged opportunistically.
func (s *Store) IssueCredentials(pid domain.ParticipantID) domain.Credentials {
	creds := domain.Credentials{
		MediaToken:   uuid.NewString(),
		ChannelToken: uuid.NewString(),
	}
	now := s.now()
	s.mu.Lock()
	for t, e := range s.tokens {
		if now.After(e.expires) {
			delete(s.tokens, t)
		}
	}
	expiry := now.Add(s.ttl)
	s.tokens[creds.MediaToken] = tokenEntry{pid: pid, expires: expiry}
	s.tokens[creds.ChannelToken] = tokenEntry{pid: pid, expires: expiry}
	s.mu.Unlock()
	return creds
}

// ValidToken reports whether token was issued to pid and has not expired.
func (s *Store) ValidToken(token string, pid domain.ParticipantID) bool {
	s.mu.RLock()
	e, ok := s.tokens[token]
	s.mu.RUnlock()
	return ok && e.pid == pid && s.now().Before(e.expires)
}
