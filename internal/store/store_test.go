package store

import (
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"), log.New(io.Discard))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestCreateAndFetchUser(t *testing.T) {
	s := newTestStore(t)

	u, err := s.CreateUser("u1", "alice", "hash1", "admin")
	require.NoError(t, err)
	assert.Equal(t, "alice", u.Username)
	assert.True(t, u.IsAdmin())
	assert.False(t, u.CreatedAt.IsZero())

	byName, err := s.GetUserByUsername("alice")
	require.NoError(t, err)
	assert.Equal(t, u.ID, byName.ID)

	_, err = s.GetUser("nope")
	assert.ErrorIs(t, err, ErrUserNotFound)

	_, err = s.CreateUser("u2", "alice", "hash2", "player")
	assert.ErrorIs(t, err, ErrUsernameTaken)
}

func TestSessionLifecycle(t *testing.T) {
	s := newTestStore(t)

	_, err := s.ActiveSession()
	assert.ErrorIs(t, err, ErrNoActiveSession)

	sess, err := s.StartSession("friday night")
	require.NoError(t, err)
	assert.Equal(t, "friday night", sess.Name)

	_, err = s.StartSession("second")
	assert.ErrorIs(t, err, ErrSessionActive)

	active, err := s.ActiveSession()
	require.NoError(t, err)
	assert.Equal(t, sess.ID, active.ID)

	require.NoError(t, s.SettleSession(sess.ID, nil, "admin"))
	_, err = s.ActiveSession()
	assert.ErrorIs(t, err, ErrNoActiveSession)

	// Settling an already-ended session fails.
	assert.ErrorIs(t, s.SettleSession(sess.ID, nil, "admin"), ErrNoActiveSession)
}

func TestLedgerAndStandings(t *testing.T) {
	s := newTestStore(t)

	_, err := s.CreateUser("u1", "alice", "h", "player")
	require.NoError(t, err)
	_, err = s.CreateUser("u2", "bob", "h", "player")
	require.NoError(t, err)
	_, err = s.CreateUser("admin", "host", "h", "admin")
	require.NoError(t, err)

	sess, err := s.StartSession("night")
	require.NoError(t, err)

	_, err = s.RecordTransaction(sess.ID, "u1", TxBuyIn, 100, "admin", "")
	require.NoError(t, err)
	_, err = s.RecordTransaction(sess.ID, "u1", TxBuyIn, 50, "admin", "rebuy")
	require.NoError(t, err)
	_, err = s.RecordTransaction(sess.ID, "u2", TxBuyIn, 100, "admin", "")
	require.NoError(t, err)
	_, err = s.RecordTransaction(sess.ID, "u2", TxAdjustment, 10, "admin", "misdeal comp")
	require.NoError(t, err)

	require.NoError(t, s.SettleSession(sess.ID, []CashOut{
		{UserID: "u1", Amount: 250},
		{UserID: "u2", Amount: 0},
	}, "admin"))

	standings, err := s.Standings(sess.ID)
	require.NoError(t, err)
	require.Len(t, standings, 2)

	// Sorted by username: alice then bob.
	alice, bob := standings[0], standings[1]
	assert.Equal(t, 150, alice.BuyIns)
	assert.Equal(t, 250, alice.CashOuts)
	assert.Equal(t, 100, alice.Net)
	assert.Equal(t, 100, bob.BuyIns)
	assert.Equal(t, 0, bob.CashOuts)
	assert.Equal(t, -90, bob.Net)

	txs, err := s.SessionTransactions(sess.ID)
	require.NoError(t, err)
	assert.Len(t, txs, 6)
	assert.Equal(t, "rebuy", txs[1].Note)
}

func TestExportSettlement(t *testing.T) {
	s := newTestStore(t)

	_, err := s.CreateUser("u1", "alice", "h", "player")
	require.NoError(t, err)
	sess, err := s.StartSession("night")
	require.NoError(t, err)
	_, err = s.RecordTransaction(sess.ID, "u1", TxBuyIn, 100, "", "")
	require.NoError(t, err)
	require.NoError(t, s.SettleSession(sess.ID, []CashOut{{UserID: "u1", Amount: 120}}, ""))

	path := filepath.Join(t.TempDir(), "settlement.json")
	require.NoError(t, s.ExportSettlement(path, sess.ID))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var report SettlementReport
	require.NoError(t, json.Unmarshal(data, &report))
	assert.Equal(t, sess.ID, report.Session.ID)
	assert.NotNil(t, report.Session.EndedAt)
	require.Len(t, report.Standings, 1)
	assert.Equal(t, 20, report.Standings[0].Net)
}

func TestHandHistory(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.SaveHand("t1", 1, 30, `["As","Kd","7c","2h","9s"]`, `[{"user_id":"u1","amount":30}]`))
	require.NoError(t, s.SaveHand("t1", 2, 50, `[]`, `[{"user_id":"u2","amount":50}]`))

	hands, err := s.TableHands("t1", 10)
	require.NoError(t, err)
	require.Len(t, hands, 2)
	assert.Equal(t, 2, hands[0].HandNumber)
	assert.Equal(t, 1, hands[1].HandNumber)
}

func TestTableStateBackupRoundTrip(t *testing.T) {
	s := newTestStore(t)

	missing, err := s.LoadTableState("t1")
	require.NoError(t, err)
	assert.Nil(t, missing)

	require.NoError(t, s.SaveTableState("t1", []byte(`{"v":1}`)))
	require.NoError(t, s.SaveTableState("t1", []byte(`{"v":2}`)))
	require.NoError(t, s.SaveTableState("t2", []byte(`{"v":3}`)))

	data, err := s.LoadTableState("t1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"v":2}`, string(data))

	states, err := s.ListTableStates()
	require.NoError(t, err)
	assert.Len(t, states, 2)

	require.NoError(t, s.DeleteTableState("t1"))
	data, err = s.LoadTableState("t1")
	require.NoError(t, err)
	assert.Nil(t, data)
}
