package app

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randomio/pair/internal/domain"
)

func TestViewMine(t *testing.T) {
	v := View{Self: "alice"}
	assert.True(t, v.Mine(domain.Message{From: "alice", Text: "hi"}))
	assert.False(t, v.Mine(domain.Message{From: "bob", Text: "hi"}))
	assert.False(t, v.Mine(domain.Message{From: "alice2", Text: "hi"}))
}

func TestViewPaired(t *testing.T) {
	assert.False(t, View{State: StateIdle}.Paired())
	assert.False(t, View{State: StateMatching}.Paired())
	assert.True(t, View{State: StatePaired}.Paired())
}

func TestSnapshotIsDetachedCopy(t *testing.T) {
	f := newFixture("alice")
	require.NoError(t, f.ctrl.Next(context.Background()))
	require.NoError(t, f.ctrl.Send(context.Background(), "hi"))

	v := f.ctrl.Snapshot()
	require.NotNil(t, v.Room)
	require.Len(t, v.Transcript, 1)

	// A later transition must not reach into an already taken snapshot.
	require.NoError(t, f.ctrl.Next(context.Background()))

	assert.Equal(t, domain.RoomID("created-1"), v.Room.ID)
	assert.Len(t, v.Transcript, 1)
	assert.Equal(t, "hi", v.Transcript[0].Text)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "idle", StateIdle.String())
	assert.Equal(t, "matching", StateMatching.String())
	assert.Equal(t, "paired", StatePaired.String())
	assert.Equal(t, "unknown", State(42).String())
}
