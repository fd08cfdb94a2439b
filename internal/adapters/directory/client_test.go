package directory

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randomio/pair/internal/core"
	"github.com/randomio/pair/internal/domain"
)

func TestCreateRoom(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/rooms", r.URL.Path)
		assert.Equal(t, "alice", r.URL.Query().Get("userId"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"room":{"_id":"r1","status":"waiting"},"rtcToken":"rtc-1","rtmToken":"rtm-1"}`))
	}))
	defer srv.Close()

	created, err := NewClient(srv.URL).CreateRoom(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, domain.RoomID("r1"), created.Room.ID)
	assert.Equal(t, domain.RoomWaiting, created.Room.Status)
	assert.Equal(t, "rtc-1", created.Creds.MediaToken)
	assert.Equal(t, "rtm-1", created.Creds.ChannelToken)
}

func TestFindMatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/api/rooms", r.URL.Path)
		assert.Equal(t, "bob", r.URL.Query().Get("userId"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"rooms":[{"_id":"r1","status":"waiting"},{"_id":"r2","status":"waiting"}],"rtcToken":"rtc-2","rtmToken":"rtm-2"}`))
	}))
	defer srv.Close()

	match, err := NewClient(srv.URL).FindMatch(context.Background(), "bob")
	require.NoError(t, err)
	require.Len(t, match.Rooms, 2)
	assert.Equal(t, domain.RoomID("r1"), match.Rooms[0].ID)
	assert.Equal(t, "rtc-2", match.Creds.MediaToken)
	assert.Equal(t, "rtm-2", match.Creds.ChannelToken)
}

func TestFindMatchEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"rooms":[],"rtcToken":"rtc","rtmToken":"rtm"}`))
	}))
	defer srv.Close()

	match, err := NewClient(srv.URL).FindMatch(context.Background(), "bob")
	require.NoError(t, err)
	assert.Empty(t, match.Rooms)
}

func TestReleaseRoom(t *testing.T) {
	var gotMethod, gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	require.NoError(t, NewClient(srv.URL).ReleaseRoom(context.Background(), "r1"))
	assert.Equal(t, http.MethodPut, gotMethod)
	assert.Equal(t, "/api/rooms/r1", gotPath)
}

func TestNon200IsDirectoryUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "room not found", http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL).FindMatch(context.Background(), "bob")
	require.ErrorIs(t, err, core.ErrDirectoryUnavailable)
	assert.Contains(t, err.Error(), "404")
}

func TestUnreachableServerIsDirectoryUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	_, err := NewClient(srv.URL).CreateRoom(context.Background(), "alice")
	require.ErrorIs(t, err, core.ErrDirectoryUnavailable)
}

func TestMalformedBodyIsDirectoryUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not json"))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL).FindMatch(context.Background(), "bob")
	require.ErrorIs(t, err, core.ErrDirectoryUnavailable)
}
