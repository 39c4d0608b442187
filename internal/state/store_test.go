package state

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/liveagent/internal/position"
)

func trade(symbol string, size, entry string) position.TradeState {
	return position.TradeState{
		Symbol:     symbol,
		Side:       position.SideLong,
		Size:       decimal.RequireFromString(size),
		EntryPrice: decimal.RequireFromString(entry),
		Timestamp:  1700000000,
	}
}

func newTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "state.json")
	s, err := NewStore(path, filepath.Join(dir, "backups"))
	require.NoError(t, err)
	return s, path
}

func TestRecordAndLoadRoundTrip(t *testing.T) {
	s, path := newTestStore(t)

	require.NoError(t, s.Record(trade("BTC/USDT", "0.5", "50000")))
	require.NoError(t, s.Record(trade("ETH/USDT", "2", "3000")))

	// A fresh store over the same file sees the same mapping.
	s2, err := NewStore(path, filepath.Join(filepath.Dir(path), "backups"))
	require.NoError(t, err)

	active := s2.Active()
	require.Len(t, active, 2)
	assert.True(t, active["BTC/USDT"].Size.Equal(decimal.RequireFromString("0.5")))
	assert.True(t, active["ETH/USDT"].EntryPrice.Equal(decimal.RequireFromString("3000")))
}

func TestRecordOverwritesSameSymbol(t *testing.T) {
	s, _ := newTestStore(t)

	require.NoError(t, s.Record(trade("BTC/USDT", "0.5", "50000")))
	require.NoError(t, s.Record(trade("BTC/USDT", "0.7", "51000")))

	// At most one entry per symbol.
	require.Equal(t, 1, s.Len())
	got, ok := s.Get("BTC/USDT")
	require.True(t, ok)
	assert.True(t, got.Size.Equal(decimal.RequireFromString("0.7")))
}

func TestRemove(t *testing.T) {
	s, _ := newTestStore(t)

	require.NoError(t, s.Record(trade("BTC/USDT", "0.5", "50000")))
	require.NoError(t, s.Remove("BTC/USDT"))
	assert.Equal(t, 0, s.Len())

	// Removing an unknown symbol is a no-op.
	require.NoError(t, s.Remove("DOGE/USDT"))
}

func TestRecordRejectsInvalidTrade(t *testing.T) {
	s, _ := newTestStore(t)

	bad := trade("BTC/USDT", "0.5", "50000")
	bad.Size = decimal.Zero
	assert.Error(t, s.Record(bad))
	assert.Equal(t, 0, s.Len())
}

func TestCorruptedFileQuarantined(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "state.json")
	backupDir := filepath.Join(dir, "backups")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0644))

	s, err := NewStore(path, backupDir)
	require.NoError(t, err, "corrupted state must not prevent startup")
	assert.Equal(t, 0, s.Len())

	// Original file moved aside, not deleted.
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))

	backups, err := filepath.Glob(filepath.Join(backupDir, "state_backup_*.json"))
	require.NoError(t, err)
	require.Len(t, backups, 1)
	data, err := os.ReadFile(backups[0])
	require.NoError(t, err)
	assert.Equal(t, "{not json", string(data))
}

func TestInterruptedSaveLeavesPreviousStateReadable(t *testing.T) {
	s, path := newTestStore(t)
	require.NoError(t, s.Record(trade("BTC/USDT", "0.5", "50000")))

	// Simulate a crash after the temp-file write but before the rename:
	// a stale partial temp file next to an intact real file.
	require.NoError(t, os.WriteFile(path+".tmp", []byte(`{"truncat`), 0644))

	s2, err := NewStore(path, filepath.Join(filepath.Dir(path), "backups"))
	require.NoError(t, err)
	require.Equal(t, 1, s2.Len())
	got, ok := s2.Get("BTC/USDT")
	require.True(t, ok)
	assert.True(t, got.EntryPrice.Equal(decimal.RequireFromString("50000")))
}

func TestSaveFailureSurfaced(t *testing.T) {
	dir := t.TempDir()
	s, err := NewStore(filepath.Join(dir, "no-such-dir", "state.json"), filepath.Join(dir, "backups"))
	require.NoError(t, err)

	// Writing the temp file fails because the parent directory is gone;
	// the error reaches the caller instead of being retried.
	err = s.Record(trade("BTC/USDT", "0.5", "50000"))
	assert.Error(t, err)
}
