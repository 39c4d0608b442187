// Package state persists the agent's belief about its open positions. The
// on-disk file is the sole durable record of open trades; every write goes
// through an atomic temp-file + rename so a reader never observes a partially
// written file.
package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sawpanic/liveagent/internal/position"
)

// Store maps symbol → TradeState and mirrors every mutation to disk.
// Mutating operations are safe for concurrent callers; the trading loop is
// the only expected writer.
type Store struct {
	mu        sync.Mutex
	path      string
	backupDir string
	trades    map[string]position.TradeState
	now       func() time.Time
}

// NewStore creates a store backed by the state file at path. The backup
// directory is created eagerly so quarantining a corrupted file cannot fail
// on a missing directory. Existing state is loaded immediately; a corrupted
// state file is quarantined rather than failing startup.
func NewStore(path, backupDir string) (*Store, error) {
	if err := os.MkdirAll(backupDir, 0755); err != nil {
		return nil, fmt.Errorf("create backup dir %s: %w", backupDir, err)
	}
	s := &Store{
		path:      path,
		backupDir: backupDir,
		now:       time.Now,
	}
	s.trades = s.Load()
	return s, nil
}

// Load reads the persisted file if present. On parse failure the corrupted
// file is moved to a timestamped backup path and an empty mapping is
// returned; a corrupted state file must never prevent startup.
func (s *Store) Load() map[string]position.TradeState {
	trades := make(map[string]position.TradeState)

	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return trades
	}
	if err != nil {
		log.Error().Err(err).Str("path", s.path).Msg("Failed to read state file")
		s.quarantine()
		return trades
	}

	if err := json.Unmarshal(data, &trades); err != nil {
		log.Error().Err(err).Str("path", s.path).Msg("Failed to parse state file")
		s.quarantine()
		return make(map[string]position.TradeState)
	}

	log.Info().Int("trades", len(trades)).Msg("Loaded active trades from state")
	return trades
}

// Save serializes the full mapping to <path>.tmp in the same directory, then
// renames it over the real path. Any process reading the real path observes
// either the fully-previous or fully-new content, never a mixture.
//
// A failed Save is surfaced to the caller and not retried: retrying a partial
// write risks masking a disk-full or permission condition.
func (s *Store) Save(trades map[string]position.TradeState) error {
	data, err := json.MarshalIndent(trades, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}

	tmpPath := s.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("write state temp file: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("rename state file: %w", err)
	}
	return nil
}

// Record inserts or overwrites the entry for the trade's symbol and persists
// the full mapping.
func (s *Store) Record(trade position.TradeState) error {
	if err := trade.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.trades[trade.Symbol] = trade
	if err := s.Save(s.trades); err != nil {
		log.Error().Err(err).Str("symbol", trade.Symbol).Msg("Failed to save state")
		return err
	}
	return nil
}

// Remove deletes the entry for symbol if present and persists the mapping.
// Removing an unknown symbol is a no-op.
func (s *Store) Remove(symbol string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.trades[symbol]; !ok {
		return nil
	}
	delete(s.trades, symbol)
	if err := s.Save(s.trades); err != nil {
		log.Error().Err(err).Str("symbol", symbol).Msg("Failed to save state")
		return err
	}
	return nil
}

// Active returns a snapshot copy of the current mapping.
func (s *Store) Active() map[string]position.TradeState {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]position.TradeState, len(s.trades))
	for sym, t := range s.trades {
		out[sym] = t
	}
	return out
}

// Get returns the trade state for symbol, if tracked.
func (s *Store) Get(symbol string) (position.TradeState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.trades[symbol]
	return t, ok
}

// Len reports the number of tracked open positions.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.trades)
}

// quarantine moves an unreadable state file to
// <backup_dir>/state_backup_<unix>.json instead of deleting it, so an
// operator can inspect what was lost.
func (s *Store) quarantine() {
	if _, err := os.Stat(s.path); err != nil {
		return
	}
	backupPath := filepath.Join(s.backupDir, fmt.Sprintf("state_backup_%d.json", s.now().Unix()))
	if err := os.Rename(s.path, backupPath); err != nil {
		log.Error().Err(err).Str("path", s.path).Msg("Failed to back up corrupted state")
		return
	}
	log.Info().Str("backup", backupPath).Msg("Backed up corrupted state file")
}
