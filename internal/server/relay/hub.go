package relay

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/randomio/pair/internal/domain"
	"github.com/randomio/pair/internal/server/store"
)

const roomCapacity = 2

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Hub relays channel messages between the two members of a room. A sender's
// own message is never reflected back to it; clients rely on that for their
// optimistic local echo.
type Hub struct {
	store      *store.Store
	readLimit  int64
	pingPeriod time.Duration

	mu    sync.RWMutex
	rooms map[domain.RoomID]map[domain.ParticipantID]*wsConn
}

func NewHub(st *store.Store, readLimit int64, pingPeriod time.Duration) *Hub {
	return &Hub{
		store:      st,
		readLimit:  readLimit,
		pingPeriod: pingPeriod,
		rooms:      make(map[domain.RoomID]map[domain.ParticipantID]*wsConn),
	}
}

// HandleChannel upgrades a channel join. Every attempt is answered before any
// traffic flows: "joined" on success, an error envelope otherwise.
func (h *Hub) HandleChannel(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	roomID := domain.RoomID(q.Get("roomId"))
	pid := domain.ParticipantID(q.Get("userId"))
	token := q.Get("token")

	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "server.relay").Msg("channel upgrade")
		return
	}
	if h.readLimit > 0 {
		ws.SetReadLimit(h.readLimit)
	}
	conn := newWSConn(ws, h.pingPeriod)

	if reason := h.admit(roomID, pid, token, conn); reason != "" {
		log.Warn().Str("module", "server.relay").
			Str("room", string(roomID)).Str("participant", string(pid)).
			Str("reason", reason).Msg("channel join refused")
		h.sendJSON(conn, envelope{Type: "error", Error: reason})
		conn.close()
		return
	}

	h.sendJSON(conn, envelope{Type: "joined"})
	log.Info().Str("module", "server.relay").
		Str("room", string(roomID)).Str("participant", string(pid)).Msg("channel joined")

	h.readLoop(roomID, pid, conn)
}

func (h *Hub) admit(roomID domain.RoomID, pid domain.ParticipantID, token string, conn *wsConn) string {
	if roomID == "" || pid == "" {
		return "missing roomId or userId"
	}
	if _, ok := h.store.Get(roomID); !ok {
		return "room not found"
	}
	if !h.store.ValidToken(token, pid) {
		return "invalid token"
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	members, ok := h.rooms[roomID]
	if !ok {
		members = make(map[domain.ParticipantID]*wsConn)
		h.rooms[roomID] = members
	}
	if old, ok := members[pid]; ok {
		// Same participant rejoining replaces its dead connection.
		old.close()
	} else if len(members) >= roomCapacity {
		return "room full"
	}
	members[pid] = conn
	return ""
}

func (h *Hub) remove(roomID domain.RoomID, pid domain.ParticipantID, conn *wsConn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if members, ok := h.rooms[roomID]; ok && members[pid] == conn {
		delete(members, pid)
		if len(members) == 0 {
			delete(h.rooms, roomID)
		}
	}
}

func (h *Hub) readLoop(roomID domain.RoomID, pid domain.ParticipantID, conn *wsConn) {
	defer func() {
		h.remove(roomID, pid, conn)
		conn.close()
		log.Info().Str("module", "server.relay").
			Str("room", string(roomID)).Str("participant", string(pid)).Msg("channel left")
	}()

	for {
		_, data, err := conn.ws.ReadMessage()
		if err != nil {
			return
		}
		var env envelope
		if err := json.Unmarshal(data, &env); err != nil {
			log.Warn().Err(err).Str("module", "server.relay").Msg("bad channel payload")
			continue
		}
		if env.Type != "message" {
			continue
		}
		h.fanout(roomID, pid, envelope{Type: "message", From: string(pid), Text: env.Text})
	}
}

// fanout delivers to every member except the sender. A member that cannot
// keep up is evicted rather than allowed to stall the room.
func (h *Hub) fanout(roomID domain.RoomID, from domain.ParticipantID, env envelope) {
	data, err := json.Marshal(env)
	if err != nil {
		log.Error().Err(err).Str("module", "server.relay").Msg("fanout marshal")
		return
	}

	h.mu.RLock()
	slow := make([]domain.ParticipantID, 0, roomCapacity)
	for pid, conn := range h.rooms[roomID] {
		if pid == from {
			continue
		}
		if err := conn.trySend(data); err != nil {
			slow = append(slow, pid)
		}
	}
	h.mu.RUnlock()

	for _, pid := range slow {
		log.Warn().Str("module", "server.relay").
			Str("room", string(roomID)).Str("participant", string(pid)).Msg("evicting slow member")
		h.mu.Lock()
		if conn, ok := h.rooms[roomID][pid]; ok {
			delete(h.rooms[roomID], pid)
			conn.close()
		}
		h.mu.Unlock()
	}
}

func (h *Hub) sendJSON(conn *wsConn, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "server.relay").Msg("sendJSON marshal")
		return
	}
	_ = conn.trySend(data)
}
