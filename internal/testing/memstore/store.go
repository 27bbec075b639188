// Package memstore is an in-memory implementation of the accounting stores
// used by service tests. Every transaction runs under one global mutex on a
// copy of the state; the copy replaces the state only when fn succeeds.
package memstore

import (
	"fmt"
	"maps"
	"sync"
	"time"

	"github.com/atlas-travel/atlas-ledger/internal/accounting/accounts"
	"github.com/atlas-travel/atlas-ledger/internal/accounting/journals"
	"github.com/atlas-travel/atlas-ledger/internal/agentledger"
	"github.com/atlas-travel/atlas-ledger/internal/audit"
	"github.com/atlas-travel/atlas-ledger/internal/balance"
	"github.com/atlas-travel/atlas-ledger/internal/rollups"
	"github.com/atlas-travel/atlas-ledger/internal/transactions"
)

type dailyKey struct {
	agentID int64
	date    string
}

type monthlyKey struct {
	agentID     int64
	year, month int
}

type state struct {
	nextTxn, nextEntry, nextLedger, nextAudit, nextRollup int64

	txns     map[int64]transactions.Transaction
	accounts map[string]accounts.Account
	agents   map[int64]balance.Agent
	sources  map[string]journals.SourceLink
	entries  []journals.Entry
	ledger   []agentledger.Entry
	audits   []audit.Entry
	daily    map[dailyKey]rollups.DailySummary
	monthly  map[monthlyKey]rollups.MonthlyReport
}

func (s state) clone() state {
	c := s
	c.txns = maps.Clone(s.txns)
	c.accounts = maps.Clone(s.accounts)
	c.agents = maps.Clone(s.agents)
	c.sources = maps.Clone(s.sources)
	c.entries = append([]journals.Entry(nil), s.entries...)
	c.ledger = append([]agentledger.Entry(nil), s.ledger...)
	c.audits = append([]audit.Entry(nil), s.audits...)
	c.daily = maps.Clone(s.daily)
	c.monthly = maps.Clone(s.monthly)
	return c
}

// Store holds every table.
type Store struct {
	mu     sync.Mutex
	st     state
	now    func() time.Time
	faults map[string]error
}

// New returns a store seeded with the default chart of accounts.
func New() *Store {
	s := &Store{
		now:    time.Now,
		faults: map[string]error{},
		st: state{
			txns:     map[int64]transactions.Transaction{},
			accounts: map[string]accounts.Account{},
			agents:   map[int64]balance.Agent{},
			sources:  map[string]journals.SourceLink{},
			daily:    map[dailyKey]rollups.DailySummary{},
			monthly:  map[monthlyKey]rollups.MonthlyReport{},
		},
	}
	for _, a := range accounts.DefaultChart() {
		s.st.accounts[a.Code] = a
	}
	return s
}

// WithNow fixes the clock used for created_at columns.
func (s *Store) WithNow(now func() time.Time) *Store {
	s.now = now
	return s
}

// FailOn makes the named operation return err until cleared with a nil err.
func (s *Store) FailOn(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.faults, op)
		return
	}
	s.faults[op] = err
}

func (s *Store) fault(op string) error {
	return s.faults[op]
}

// atomically runs fn on a copy of the state. Callers must not hold mu.
func (s *Store) atomically(fn func(st *state) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	work := s.st.clone()
	if err := fn(&work); err != nil {
		return err
	}
	s.st = work
	return nil
}

func (s *Store) read(fn func(st *state)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.st)
}

// PutAgent registers an agent.
func (s *Store) PutAgent(a balance.Agent) {
	s.read(func(st *state) { st.agents[a.ID] = a })
}

// SetAccountActive toggles an account of the chart.
func (s *Store) SetAccountActive(code string, active bool) {
	s.read(func(st *state) {
		a := st.accounts[code]
		a.IsActive = active
		st.accounts[code] = a
	})
}

// Transaction returns one stored row.
func (s *Store) Transaction(id int64) (transactions.Transaction, bool) {
	var (
		t  transactions.Transaction
		ok bool
	)
	s.read(func(st *state) { t, ok = st.txns[id] })
	return t, ok
}

// JournalEntries returns every journal leg.
func (s *Store) JournalEntries() []journals.Entry {
	var out []journals.Entry
	s.read(func(st *state) { out = append(out, st.entries...) })
	return out
}

// LedgerRows returns the agent's ledger in append order.
func (s *Store) LedgerRows(agentID int64) []agentledger.Entry {
	var out []agentledger.Entry
	s.read(func(st *state) {
		for _, e := range st.ledger {
			if e.AgentID == agentID {
				out = append(out, e)
			}
		}
	})
	return out
}

// AuditTrail returns the audit rows of one transaction.
func (s *Store) AuditTrail(transactionID int64) []audit.Entry {
	var out []audit.Entry
	s.read(func(st *state) {
		for _, e := range st.audits {
			if e.TransactionID == transactionID {
				out = append(out, e)
			}
		}
	})
	return out
}

// SourceLinks returns the number of claimed sources.
func (s *Store) SourceLinks() int {
	var n int
	s.read(func(st *state) { n = len(st.sources) })
	return n
}

// DailySummaries returns every stored daily row of an agent.
func (s *Store) DailySummaries(agentID int64) []rollups.DailySummary {
	var out []rollups.DailySummary
	s.read(func(st *state) {
		for k, v := range st.daily {
			if k.agentID == agentID {
				out = append(out, v)
			}
		}
	})
	return out
}

func (st *state) appendAudit(entry audit.Entry) {
	st.nextAudit++
	entry.ID = st.nextAudit
	st.audits = append(st.audits, entry)
}

func (st *state) lastBalance(agentID int64) (agentledger.Entry, bool) {
	for i := len(st.ledger) - 1; i >= 0; i-- {
		if st.ledger[i].AgentID == agentID {
			return st.ledger[i], true
		}
	}
	return agentledger.Entry{}, false
}

func sourceKey(t, key string) string {
	return fmt.Sprintf("%s|%s", t, key)
}
