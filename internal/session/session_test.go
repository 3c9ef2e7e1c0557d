package session

import (
	"io"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lox/homegame/internal/state"
)

func newTestStore(t *testing.T) (*Store, *quartz.Mock) {
	t.Helper()
	mock := quartz.NewMock(t)
	return NewStore(state.NewMemoryKV(), mock, 60*time.Second, log.New(io.Discard)), mock
}

func TestReconnectWithinGrace(t *testing.T) {
	store, mock := newTestStore(t)

	saved := store.Save("u1", "alice", "t1", 3)
	assert.Equal(t, mock.Now().Add(60*time.Second), saved.Deadline)

	mock.Advance(30 * time.Second)

	tomb, ok := store.TryReconnect("u1")
	require.True(t, ok)
	assert.Equal(t, "t1", tomb.TableID)
	assert.Equal(t, 3, tomb.Seat)
	assert.Equal(t, "alice", tomb.Username)

	// A tombstone is single-use.
	_, ok = store.TryReconnect("u1")
	assert.False(t, ok)
}

func TestReconnectAfterGraceFails(t *testing.T) {
	store, mock := newTestStore(t)

	store.Save("u1", "alice", "t1", 3)
	mock.Advance(61 * time.Second)

	_, ok := store.TryReconnect("u1")
	assert.False(t, ok)
}

func TestSweepReturnsOnlyExpired(t *testing.T) {
	store, mock := newTestStore(t)

	store.Save("u1", "alice", "t1", 0)
	mock.Advance(40 * time.Second)
	store.Save("u2", "bob", "t1", 1)
	mock.Advance(25 * time.Second)

	// u1 is 65s gone, u2 only 25s.
	expired := store.Sweep()
	require.Len(t, expired, 1)
	assert.Equal(t, "u1", expired[0].UserID)

	// u2 can still come back.
	_, ok := store.TryReconnect("u2")
	assert.True(t, ok)
}

func TestSweptTombstoneCannotReconnect(t *testing.T) {
	store, mock := newTestStore(t)

	store.Save("u1", "alice", "t1", 0)
	mock.Advance(61 * time.Second)
	require.Len(t, store.Sweep(), 1)

	_, ok := store.TryReconnect("u1")
	assert.False(t, ok)
}

func TestDrop(t *testing.T) {
	store, _ := newTestStore(t)

	store.Save("u1", "alice", "t1", 0)
	store.Drop("u1")

	_, ok := store.TryReconnect("u1")
	assert.False(t, ok)
}

func TestSeatBindings(t *testing.T) {
	store, _ := newTestStore(t)

	_, ok := store.SeatBinding("u1")
	assert.False(t, ok)

	store.BindSeat("u1", "t1")
	tableID, ok := store.SeatBinding("u1")
	require.True(t, ok)
	assert.Equal(t, "t1", tableID)

	store.Unbind("u1")
	_, ok = store.SeatBinding("u1")
	assert.False(t, ok)
}
