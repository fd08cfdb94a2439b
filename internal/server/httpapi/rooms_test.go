package httpapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randomio/pair/internal/config"
	"github.com/randomio/pair/internal/server/relay"
	"github.com/randomio/pair/internal/server/store"
)

type roomBody struct {
	ID     string `json:"_id"`
	Status string `json:"status"`
}

type apiResponse struct {
	Room     *roomBody  `json:"room"`
	Rooms    []roomBody `json:"rooms"`
	RTCToken string     `json:"rtcToken"`
	RTMToken string     `json:"rtmToken"`
	Error    string     `json:"error"`
}

func newTestRouter(t *testing.T) (*gin.Engine, *store.Store) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	st := store.New(time.Minute)
	cfg := &config.ServerConfig{Mode: "test"}
	r := SetupRouter(cfg, st, relay.NewHub(st, 32768, 30*time.Second), relay.NewMediaRelay(st, 30*time.Second))
	return r, st
}

func doRequest(t *testing.T, r *gin.Engine, method, target string) (int, apiResponse) {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var resp apiResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return w.Code, resp
}

func TestCreateRoomEndpoint(t *testing.T) {
	r, st := newTestRouter(t)

	code, resp := doRequest(t, r, http.MethodPost, "/api/rooms?userId=alice")
	require.Equal(t, http.StatusOK, code)
	require.NotNil(t, resp.Room)
	assert.NotEmpty(t, resp.Room.ID)
	assert.Equal(t, "waiting", resp.Room.Status)
	assert.True(t, st.ValidToken(resp.RTCToken, "alice"))
	assert.True(t, st.ValidToken(resp.RTMToken, "alice"))
}

func TestCreateRoomRequiresUserID(t *testing.T) {
	r, _ := newTestRouter(t)
	code, resp := doRequest(t, r, http.MethodPost, "/api/rooms")
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "missing userId", resp.Error)
}

func TestFindRoomsEmpty(t *testing.T) {
	r, _ := newTestRouter(t)

	code, resp := doRequest(t, r, http.MethodGet, "/api/rooms?userId=bob")
	require.Equal(t, http.StatusOK, code)
	assert.Empty(t, resp.Rooms)
	assert.NotEmpty(t, resp.RTCToken)
	assert.NotEmpty(t, resp.RTMToken)
}

func TestFindRoomsReturnsWaitingRoomOnce(t *testing.T) {
	r, st := newTestRouter(t)
	created := st.CreateRoom("alice")

	code, resp := doRequest(t, r, http.MethodGet, "/api/rooms?userId=bob")
	require.Equal(t, http.StatusOK, code)
	require.Len(t, resp.Rooms, 1)
	assert.Equal(t, string(created.ID), resp.Rooms[0].ID)
	assert.Equal(t, "active", resp.Rooms[0].Status)

	// The match flipped the room to active, so a third client gets nothing.
	code, resp = doRequest(t, r, http.MethodGet, "/api/rooms?userId=carol")
	require.Equal(t, http.StatusOK, code)
	assert.Empty(t, resp.Rooms)
}

func TestFindRoomsNeverReturnsOwnRoom(t *testing.T) {
	r, st := newTestRouter(t)
	st.CreateRoom("alice")

	code, resp := doRequest(t, r, http.MethodGet, "/api/rooms?userId=alice")
	require.Equal(t, http.StatusOK, code)
	assert.Empty(t, resp.Rooms)
}

func TestFindRoomsRequiresUserID(t *testing.T) {
	r, _ := newTestRouter(t)
	code, _ := doRequest(t, r, http.MethodGet, "/api/rooms")
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestReleaseRoomEndpoint(t *testing.T) {
	r, st := newTestRouter(t)
	created := st.CreateRoom("alice")
	_, ok := st.RandomWaiting("bob")
	require.True(t, ok)

	code, resp := doRequest(t, r, http.MethodPut, "/api/rooms/"+string(created.ID))
	require.Equal(t, http.StatusOK, code)
	require.NotNil(t, resp.Room)
	assert.Equal(t, "waiting", resp.Room.Status)
}

func TestReleaseUnknownRoom(t *testing.T) {
	r, _ := newTestRouter(t)
	code, resp := doRequest(t, r, http.MethodPut, "/api/rooms/ghost")
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "room not found", resp.Error)
}
