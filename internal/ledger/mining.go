package ledger

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// MiningState is either Idle or Running
type MiningState interface {
	miningState()
}

// Idle means no session is open
type Idle struct{}

// Running means a session opened at SessionStart is accruing
type Running struct {
	SessionStart time.Time
}

func (Idle) miningState()    {}
func (Running) miningState() {}

// Mining is the accrual state machine. The state only changes through
// Start, Stop and Claim.
//
// Stop closes the session without banking: accrual that was not claimed
// before stopping is forfeited.
type Mining struct {
	state         MiningState
	LastClaimedAt *time.Time
	Balance       decimal.Decimal
}

// State returns the current state, Idle for a zero value
func (m *Mining) State() MiningState {
	if m.state == nil {
		return Idle{}
	}
	return m.state
}

// Active reports whether a session is running
func (m *Mining) Active() bool {
	_, ok := m.State().(Running)
	return ok
}

// SessionStart returns the start of the running session
func (m *Mining) SessionStart() (time.Time, bool) {
	r, ok := m.State().(Running)
	if !ok {
		return time.Time{}, false
	}
	return r.SessionStart, true
}

// Start opens a session at now. It returns false and keeps the existing
// session when one is already running.
func (m *Mining) Start(now time.Time) bool {
	if m.Active() {
		return false
	}
	m.state = Running{SessionStart: now}
	return true
}

// Stop closes the running session without crediting it
func (m *Mining) Stop() bool {
	if !m.Active() {
		return false
	}
	m.state = Idle{}
	return true
}

// Claim banks reward for the running session and closes it
func (m *Mining) Claim(now time.Time, reward decimal.Decimal) bool {
	if !m.Active() {
		return false
	}
	m.Balance = m.Balance.Add(reward)
	m.LastClaimedAt = timePtr(now)
	m.state = Idle{}
	return true
}

// Credit adds a bonus grant to the mining balance
func (m *Mining) Credit(amount decimal.Decimal) {
	m.Balance = m.Balance.Add(amount)
}

const (
	miningStateIdle    = "idle"
	miningStateRunning = "running"
)

// miningDoc is the persisted shape of Mining. It also reads the field
// names written by older clients (miningActive, lastStart, lastClaim, active).
type miningDoc struct {
	State         string          `json:"state,omitempty"`
	Active        *bool           `json:"active,omitempty"`
	SessionStart  *time.Time      `json:"sessionStart"`
	LastClaimedAt *time.Time      `json:"lastClaimedAt"`
	Balance       decimal.Decimal `json:"balance"`

	LegacyActive    *bool      `json:"miningActive,omitempty"`
	LegacyLastStart *time.Time `json:"lastStart,omitempty"`
	LegacyLastClaim *time.Time `json:"lastClaim,omitempty"`
}

// MarshalJSON writes the tagged state together with the derived active flag
func (m Mining) MarshalJSON() ([]byte, error) {
	active := m.Active()
	doc := miningDoc{
		State:         miningStateIdle,
		Active:        &active,
		LastClaimedAt: m.LastClaimedAt,
		Balance:       m.Balance,
	}
	if start, ok := m.SessionStart(); ok {
		doc.State = miningStateRunning
		doc.SessionStart = &start
	}
	return json.Marshal(doc)
}

// UnmarshalJSON resolves the tagged state from current or legacy fields
func (m *Mining) UnmarshalJSON(data []byte) error {
	var doc miningDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}

	start := doc.SessionStart
	if start == nil {
		start = doc.LegacyLastStart
	}
	lastClaimed := doc.LastClaimedAt
	if lastClaimed == nil {
		lastClaimed = doc.LegacyLastClaim
	}

	var running bool
	switch doc.State {
	case miningStateRunning:
		running = true
	case miningStateIdle:
		running = false
	case "":
		running = (doc.Active != nil && *doc.Active) || (doc.LegacyActive != nil && *doc.LegacyActive)
	default:
		return invalid("mining.state is unknown: " + doc.State)
	}

	// A running flag without a session start cannot accrue anything.
	if running && start != nil {
		m.state = Running{SessionStart: start.UTC()}
	} else {
		m.state = Idle{}
	}
	m.LastClaimedAt = lastClaimed
	m.Balance = doc.Balance
	return nil
}
