package state

import (
	"errors"
	"io"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lox/homegame/internal/game"
)

type fakeBackup struct {
	states  map[string][]byte
	saveErr error
}

func newFakeBackup() *fakeBackup {
	return &fakeBackup{states: make(map[string][]byte)}
}

func (f *fakeBackup) SaveTableState(tableID string, data []byte) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	f.states[tableID] = append([]byte(nil), data...)
	return nil
}

func (f *fakeBackup) LoadTableState(tableID string) ([]byte, error) {
	return f.states[tableID], nil
}

func (f *fakeBackup) DeleteTableState(tableID string) error {
	delete(f.states, tableID)
	return nil
}

func (f *fakeBackup) ListTableStates() (map[string][]byte, error) {
	out := make(map[string][]byte, len(f.states))
	for k, v := range f.states {
		out[k] = v
	}
	return out, nil
}

func testSnapshot(id string) *game.Snapshot {
	return &game.Snapshot{
		Config: game.Config{ID: id, Name: "test", SmallBlind: 1, BigBlind: 2, MaxPlayers: 6},
		Stage:  game.StageWaiting,
	}
}

func TestMemoryKV(t *testing.T) {
	kv := NewMemoryKV()

	kv.Set("table:a", []byte("1"))
	kv.Set("table:b", []byte("2"))
	kv.Set("session:x", []byte("3"))

	v, ok := kv.Get("table:a")
	require.True(t, ok)
	assert.Equal(t, []byte("1"), v)

	assert.Equal(t, []string{"table:a", "table:b"}, kv.Keys("table:"))

	kv.Delete("table:a")
	_, ok = kv.Get("table:a")
	assert.False(t, ok)
}

func TestGameStoreSaveLoad(t *testing.T) {
	backup := newFakeBackup()
	store := NewGameStore(NewMemoryKV(), backup, log.New(io.Discard))

	require.NoError(t, store.SaveTable(testSnapshot("t1")))

	snap, err := store.LoadTable("t1")
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Equal(t, "t1", snap.Config.ID)

	assert.Contains(t, backup.states, "t1")
	assert.Equal(t, []string{"t1"}, store.TableIDs())

	missing, err := store.LoadTable("nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestGameStoreBackupFailureDoesNotFailSave(t *testing.T) {
	backup := newFakeBackup()
	backup.saveErr = errors.New("disk full")
	store := NewGameStore(NewMemoryKV(), backup, log.New(io.Discard))

	require.NoError(t, store.SaveTable(testSnapshot("t1")))

	snap, err := store.LoadTable("t1")
	require.NoError(t, err)
	assert.NotNil(t, snap)
}

func TestGameStoreReadThrough(t *testing.T) {
	backup := newFakeBackup()
	seed := NewGameStore(NewMemoryKV(), backup, log.New(io.Discard))
	require.NoError(t, seed.SaveTable(testSnapshot("t1")))

	// Fresh KV, same backup: the read falls through and re-primes the KV.
	store := NewGameStore(NewMemoryKV(), backup, log.New(io.Discard))
	snap, err := store.LoadTable("t1")
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Equal(t, []string{"t1"}, store.TableIDs())
}

func TestGameStoreRestoreAll(t *testing.T) {
	backup := newFakeBackup()
	seed := NewGameStore(NewMemoryKV(), backup, log.New(io.Discard))
	require.NoError(t, seed.SaveTable(testSnapshot("t1")))
	require.NoError(t, seed.SaveTable(testSnapshot("t2")))
	backup.states["bad"] = []byte("{not json")

	store := NewGameStore(NewMemoryKV(), backup, log.New(io.Discard))
	snaps, err := store.RestoreAll()
	require.NoError(t, err)
	assert.Len(t, snaps, 2)
	assert.ElementsMatch(t, []string{"t1", "t2"}, store.TableIDs())
}

func TestGameStoreDelete(t *testing.T) {
	backup := newFakeBackup()
	store := NewGameStore(NewMemoryKV(), backup, log.New(io.Discard))
	require.NoError(t, store.SaveTable(testSnapshot("t1")))

	store.DeleteTable("t1")

	snap, err := store.LoadTable("t1")
	require.NoError(t, err)
	assert.Nil(t, snap)
	assert.NotContains(t, backup.states, "t1")
}
