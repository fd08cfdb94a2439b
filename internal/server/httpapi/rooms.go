package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/randomio/pair/internal/domain"
	"github.com/randomio/pair/internal/server/store"
)

type roomHandlers struct {
	store *store.Store
}

type roomJSON struct {
	ID     domain.RoomID     `json:"_id"`
	Status domain.RoomStatus `json:"status"`
}

func toJSON(r domain.Room) roomJSON {
	return roomJSON{ID: r.ID, Status: r.Status}
}

// create registers a fresh waiting room for the caller and issues join
// credentials for it.
func (h *roomHandlers) create(c *gin.Context) {
	pid := domain.ParticipantID(c.Query("userId"))
	if pid == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing userId"})
		return
	}

	room := h.store.CreateRoom(pid)
	creds := h.store.IssueCredentials(pid)
	c.JSON(http.StatusOK, gin.H{
		"room":     toJSON(room),
		"rtcToken": creds.MediaToken,
		"rtmToken": creds.ChannelToken,
	})
}

// find returns at most one random waiting room (never the caller's own) plus
// join credentials. An empty list tells the caller to become the creator.
func (h *roomHandlers) find(c *gin.Context) {
	pid := domain.ParticipantID(c.Query("userId"))
	if pid == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing userId"})
		return
	}

	rooms := []roomJSON{}
	if room, ok := h.store.RandomWaiting(pid); ok {
		rooms = append(rooms, toJSON(room))
	}
	creds := h.store.IssueCredentials(pid)
	c.JSON(http.StatusOK, gin.H{
		"rooms":    rooms,
		"rtcToken": creds.MediaToken,
		"rtmToken": creds.ChannelToken,
	})
}

// release marks a room the caller vacated as waiting again.
func (h *roomHandlers) release(c *gin.Context) {
	id := domain.RoomID(c.Param("id"))
	room, ok := h.store.SetWaiting(id)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "room not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"room": toJSON(room)})
}
