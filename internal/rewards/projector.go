package rewards

import (
	"time"

	"github.com/aimerfeng/minerewards/internal/ledger"
	"github.com/shopspring/decimal"
)

// MiningSnapshot is the last synced mining state a client displays from
type MiningSnapshot struct {
	Active       bool            `json:"active"`
	SessionStart *time.Time      `json:"session_start"`
	Balance      decimal.Decimal `json:"balance"`
}

// SnapshotOf captures the mining state of a ledger
func SnapshotOf(m *ledger.Mining) MiningSnapshot {
	snap := MiningSnapshot{Balance: m.Balance}
	if start, ok := m.SessionStart(); ok {
		snap.Active = true
		snap.SessionStart = &start
	}
	return snap
}

// LiveBalance projects the displayed balance at now: the synced balance plus
// what the running session would pay if claimed. It is display only and
// never authoritative.
func LiveBalance(snap MiningSnapshot, now time.Time) decimal.Decimal {
	if !snap.Active || snap.SessionStart == nil {
		return snap.Balance
	}
	return snap.Balance.Add(MiningReward(*snap.SessionStart, now))
}
