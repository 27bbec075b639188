package memstore

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/atlas-travel/atlas-ledger/internal/accounting/journals"
	"github.com/atlas-travel/atlas-ledger/internal/accounting/shared"
	"github.com/atlas-travel/atlas-ledger/internal/agentledger"
	"github.com/atlas-travel/atlas-ledger/internal/balance"
	common "github.com/atlas-travel/atlas-ledger/internal/shared"
)

// Ledger returns the agent ledger reader.
func (s *Store) Ledger() agentledger.Repository {
	return &ledgerRepo{s: s}
}

// Journals returns the journal reader.
func (s *Store) Journals() journals.Repository {
	return &journalRepo{s: s}
}

// Agents returns the agent directory.
func (s *Store) Agents() balance.AgentDirectory {
	return &agentDirectory{s: s}
}

type ledgerRepo struct{ s *Store }

func (r *ledgerRepo) Latest(_ context.Context, agentID int64) (agentledger.Entry, bool, error) {
	var (
		e  agentledger.Entry
		ok bool
	)
	r.s.read(func(st *state) { e, ok = st.lastBalance(agentID) })
	return e, ok, nil
}

func (r *ledgerRepo) List(_ context.Context, agentID int64, from, to time.Time) ([]agentledger.Entry, error) {
	var out []agentledger.Entry
	r.s.read(func(st *state) {
		for _, e := range st.ledger {
			if e.AgentID != agentID {
				continue
			}
			if !from.IsZero() && e.EntryDate.Before(from) {
				continue
			}
			if !to.IsZero() && !e.EntryDate.Before(to) {
				continue
			}
			out = append(out, e)
		}
	})
	return out, nil
}

func (r *ledgerRepo) ForTransactions(_ context.Context, ids []int64) (map[int64]agentledger.Entry, error) {
	var out map[int64]agentledger.Entry
	r.s.read(func(st *state) {
		out, _ = (&rollupTx{st: st}).LedgerEntries(context.Background(), ids)
	})
	return out, nil
}

type journalRepo struct{ s *Store }

func (r *journalRepo) ByReference(_ context.Context, reference string) ([]journals.Entry, error) {
	var out []journals.Entry
	r.s.read(func(st *state) {
		for _, e := range st.entries {
			if e.ReferenceNumber == reference {
				out = append(out, e)
			}
		}
	})
	if len(out) == 0 {
		return nil, shared.ErrJournalNotFound
	}
	return out, nil
}

func (r *journalRepo) ByTransaction(_ context.Context, transactionID int64) ([]journals.Entry, error) {
	var out []journals.Entry
	r.s.read(func(st *state) {
		for _, e := range st.entries {
			if e.TransactionID == transactionID {
				out = append(out, e)
			}
		}
	})
	return out, nil
}

func (r *journalRepo) ReferencesBetween(_ context.Context, from, to time.Time) ([]string, error) {
	seen := map[string]bool{}
	var out []string
	r.s.read(func(st *state) {
		for _, e := range st.entries {
			if e.CreatedAt.Before(from) || !e.CreatedAt.Before(to) || seen[e.ReferenceNumber] {
				continue
			}
			seen[e.ReferenceNumber] = true
			out = append(out, e.ReferenceNumber)
		}
	})
	sort.Strings(out)
	return out, nil
}

type agentDirectory struct{ s *Store }

func (d *agentDirectory) Agent(_ context.Context, id int64) (balance.Agent, error) {
	var (
		a  balance.Agent
		ok bool
	)
	d.s.read(func(st *state) { a, ok = st.agents[id] })
	if !ok {
		return balance.Agent{}, fmt.Errorf("%w: %d", common.ErrAgentNotFound, id)
	}
	return a, nil
}
