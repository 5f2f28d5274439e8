package store

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"polyfolio/internal/domain/model"
)

// State is everything the UI reads: balance, reconciled positions and the
// derived portfolio, plus per-input revision counters so consumers can tell
// which input actually moved.
type State struct {
	Balance   decimal.Decimal
	Positions []model.PositionRecord
	Portfolio model.PortfolioSnapshot

	Version      uint64
	BalanceRev   uint64
	PositionsRev uint64
	QuotesRev    uint64
	PortfolioRev uint64
}

// Tx mutates state inside one Update call. All writes in one Tx land under
// a single version bump and a single subscriber notification.
type Tx struct {
	st      *State
	changed bool
}

// SetBalance replaces the cash balance. A write of the same value is a no-op.
func (t *Tx) SetBalance(b decimal.Decimal) {
	if t.st.Balance.Equal(b) {
		return
	}
	t.st.Balance = b
	t.st.BalanceRev++
	t.changed = true
}

// SetPositions replaces the position collection wholesale. An equivalent
// collection is a no-op so steady-state polls do not churn subscribers.
func (t *Tx) SetPositions(positions []model.PositionRecord) {
	if positionsEquivalent(t.st.Positions, positions) {
		return
	}
	t.st.Positions = positions
	t.st.PositionsRev++
	t.changed = true
}

// BumpQuotes records that the quote cache changed in a way that can affect
// open-position values.
func (t *Tx) BumpQuotes() {
	t.st.QuotesRev++
	t.changed = true
}

// SetPortfolio replaces the derived portfolio snapshot.
func (t *Tx) SetPortfolio(p model.PortfolioSnapshot) {
	t.st.Portfolio = p
	t.st.PortfolioRev++
	t.changed = true
}

// Store is the process-wide application state. Reads see a consistent copy;
// writes go through Update and notify subscribers once per transaction.
type Store struct {
	mu    sync.Mutex
	state State
	subs  map[chan struct{}]struct{}
}

func New() *Store {
	return &Store{subs: make(map[chan struct{}]struct{})}
}

// Hydrate seeds the store from a persisted snapshot. Meant for startup,
// before any poller runs.
func (s *Store) Hydrate(snap model.StateSnapshot) {
	s.Update(func(tx *Tx) {
		tx.SetBalance(snap.Balance)
		tx.SetPositions(snap.Positions)
		tx.SetPortfolio(snap.Portfolio)
	})
}

// Snapshot returns a copy of the current state. The positions slice is
// copied so callers cannot mutate shared data.
func (s *Store) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.copyLocked()
}

func (s *Store) copyLocked() State {
	out := s.state
	out.Positions = make([]model.PositionRecord, len(s.state.Positions))
	copy(out.Positions, s.state.Positions)
	return out
}

// Update runs fn as one transaction. If fn changed anything the version is
// bumped once and every subscriber is signaled once.
func (s *Store) Update(fn func(*Tx)) {
	s.mu.Lock()
	tx := &Tx{st: &s.state}
	fn(tx)
	if !tx.changed {
		s.mu.Unlock()
		return
	}
	s.state.Version++
	subs := make([]chan struct{}, 0, len(s.subs))
	for ch := range s.subs {
		subs = append(subs, ch)
	}
	s.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- struct{}{}:
		default: // subscriber already has a pending signal
		}
	}
}

// Subscribe returns a signal channel that receives after each committed
// transaction, and a cancel func. The channel carries no data; subscribers
// read the latest state via Snapshot.
func (s *Store) Subscribe() (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)
	s.mu.Lock()
	s.subs[ch] = struct{}{}
	s.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, ch)
			s.mu.Unlock()
		})
	}
	return ch, cancel
}

// Reset restores defaults, e.g. on logout. Subscribers are notified.
func (s *Store) Reset() {
	s.Update(func(tx *Tx) {
		tx.SetBalance(decimal.Zero)
		tx.SetPositions(nil)
		tx.SetPortfolio(model.PortfolioSnapshot{})
	})
}

// Persistable returns the serializable subset of the state.
func (s *Store) Persistable(now time.Time) model.StateSnapshot {
	snap := s.Snapshot()
	return model.StateSnapshot{
		Balance:   snap.Balance,
		Positions: snap.Positions,
		Portfolio: snap.Portfolio,
		SavedAt:   now,
	}
}

func positionsEquivalent(a, b []model.PositionRecord) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !a[i].Equivalent(b[i]) {
			return false
		}
	}
	return true
}
