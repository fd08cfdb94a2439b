package domain

type RoomID string

// RoomStatus is the directory's view of a room. Clients only ever observe
// waiting rooms through match responses; the remaining states exist for the
// directory's own bookkeeping.
type RoomStatus string

const (
	RoomOpen    RoomStatus = "open"
	RoomWaiting RoomStatus = "waiting"
	RoomActive  RoomStatus = "active"
	RoomClosed  RoomStatus = "closed"
)

// Room is the matching unit binding exactly two participants for one session.
type Room struct {
	ID     RoomID     `json:"_id"`
	Status RoomStatus `json:"status"`
}

// Credentials are short-lived, per-request authorization values issued by the
// directory alongside a match. Consumed exactly once per join and never stored
// beyond it.
type Credentials struct {
	MediaToken   string
	ChannelToken string
}
