// Package casestore holds the reconciled cases in memory and applies
// validated create, update and delete operations to them.
package casestore

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/senpa-rd/casewatch/internal/model"
	"github.com/senpa-rd/casewatch/internal/reconcile"
)

// Mode selects how Load treats cases already in the store.
type Mode string

const (
	// ModeRebuild discards local state and reconciles from source tables.
	ModeRebuild Mode = "rebuild"
	// ModeReuse keeps a populated store as is and reconciles only when empty.
	ModeReuse Mode = "reuse"
)

// ParseMode accepts "rebuild" and "reuse" (empty means rebuild).
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeRebuild:
		return ModeRebuild, nil
	case ModeReuse:
		return ModeReuse, nil
	default:
		return "", fmt.Errorf("unknown refresh mode %q (want rebuild or reuse)", s)
	}
}

// Store is the in-memory case map. It is safe for concurrent use; callers
// always receive copies.
type Store struct {
	mu         sync.RWMutex
	cases      map[string]*model.Case
	reconciler *reconcile.Reconciler
}

// NewStore returns an empty store that reconciles with r (reconcile.New defaults when nil).
func NewStore(r *reconcile.Reconciler) *Store {
	if r == nil {
		r = reconcile.New(nil, nil)
	}
	return &Store{cases: make(map[string]*model.Case), reconciler: r}
}

// Reconciler returns the reconciler used by Rebuild.
func (s *Store) Reconciler() *reconcile.Reconciler {
	return s.reconciler
}

// Rebuild replaces the store contents with cases reconciled from tables and
// returns the new case count.
func (s *Store) Rebuild(tables []model.Table) int {
	fresh := s.reconciler.Reconcile(tables)
	s.mu.Lock()
	s.cases = fresh
	s.mu.Unlock()
	return len(fresh)
}

// ReuseExisting reconciles tables only when the store is empty. It reports
// whether the existing contents were kept.
func (s *Store) ReuseExisting(tables []model.Table) bool {
	s.mu.RLock()
	populated := len(s.cases) > 0
	s.mu.RUnlock()
	if populated {
		return true
	}
	s.Rebuild(tables)
	return false
}

// Load dispatches to Rebuild or ReuseExisting. It reports whether existing
// contents were kept.
func (s *Store) Load(tables []model.Table, mode Mode) bool {
	if mode == ModeReuse {
		return s.ReuseExisting(tables)
	}
	s.Rebuild(tables)
	return false
}

// Clear removes every case.
func (s *Store) Clear() {
	s.mu.Lock()
	s.cases = make(map[string]*model.Case)
	s.mu.Unlock()
}

// Len returns the number of cases.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.cases)
}

// Get returns a copy of the case with number.
func (s *Store) Get(number string) (*model.Case, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.cases[number]
	if !ok {
		return nil, false
	}
	return c.Clone(), true
}

// Has reports whether a case with number exists.
func (s *Store) Has(number string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.cases[number]
	return ok
}

// List returns copies of all cases ordered by case number.
func (s *Store) List() []*model.Case {
	s.mu.RLock()
	out := make([]*model.Case, 0, len(s.cases))
	for _, c := range s.cases {
		out = append(out, c.Clone())
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].CaseNumber < out[j].CaseNumber })
	return out
}

// Put stores a copy of c, replacing any case with the same number.
func (s *Store) Put(c *model.Case) {
	if c == nil || c.CaseNumber == "" {
		return
	}
	s.mu.Lock()
	s.cases[c.CaseNumber] = c.Clone()
	s.mu.Unlock()
}

// Remove deletes the case with number and reports whether it existed.
func (s *Store) Remove(number string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.cases[number]; !ok {
		return false
	}
	delete(s.cases, number)
	return true
}
