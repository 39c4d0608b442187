package risk

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// ledgerSnapshot is the persisted capital ledger. Money fields are decimal
// strings, matching the trade state wire format.
type ledgerSnapshot struct {
	InitialCapital decimal.Decimal `json:"initial_capital"`
	CurrentCapital decimal.Decimal `json:"current_capital"`
	Day            string          `json:"day"`
	DayPnL         decimal.Decimal `json:"day_pnl"`
}

// loadLedger restores capital from a snapshot if one exists. The snapshot's
// initial capital must match the configured one: a changed capital base is a
// deliberate fresh start and the operator must remove the old snapshot
// first.
func (m *Manager) loadLedger() error {
	if m.ledgerPath == "" {
		return nil
	}

	data, err := os.ReadFile(m.ledgerPath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read ledger snapshot: %w", err)
	}

	var snap ledgerSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("parse ledger snapshot %s: %w", m.ledgerPath, err)
	}

	if !snap.InitialCapital.Equal(m.initialCapital) {
		return fmt.Errorf("ledger snapshot initial capital %s does not match configured %s; remove %s to start fresh",
			snap.InitialCapital, m.initialCapital, m.ledgerPath)
	}

	m.currentCapital = snap.CurrentCapital
	if snap.Day == m.day {
		m.dayPnL = snap.DayPnL
	}

	log.Info().
		Str("current_capital", m.currentCapital.String()).
		Str("day_pnl", m.dayPnL.String()).
		Msg("Restored capital ledger from snapshot")
	return nil
}

// saveLedgerLocked persists the ledger with the same atomic temp+rename
// protocol as the trade state file. Failures are logged and counted, never
// fatal: the ledger is an accounting aid, not the trade record.
func (m *Manager) saveLedgerLocked() {
	if m.ledgerPath == "" {
		return
	}

	snap := ledgerSnapshot{
		InitialCapital: m.initialCapital,
		CurrentCapital: m.currentCapital,
		Day:            m.day,
		DayPnL:         m.dayPnL,
	}
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		log.Error().Err(err).Msg("Failed to marshal ledger snapshot")
		m.metrics.RecordError("persistence")
		return
	}

	tmpPath := m.ledgerPath + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		log.Error().Err(err).Msg("Failed to write ledger snapshot")
		m.metrics.RecordError("persistence")
		return
	}
	if err := os.Rename(tmpPath, m.ledgerPath); err != nil {
		log.Error().Err(err).Msg("Failed to rename ledger snapshot")
		m.metrics.RecordError("persistence")
	}
}
