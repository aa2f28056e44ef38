// Package memory is an in-process implementation of models.Repository.
// Transactions work on a copy of the data that replaces the original on commit,
// and only one transaction runs at a time.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/stockvn/paygate/internal/models"
	"github.com/stockvn/paygate/internal/xerrors"
)

type Store struct {
	mu  *sync.Mutex
	st  *state
	tx  bool
	now func() time.Time
}

func New() *Store {
	return &Store{mu: &sync.Mutex{}, st: newState(), now: func() time.Time { return time.Now().UTC() }}
}

var _ models.Repository = (*Store)(nil)

func (s *Store) Transaction(ctx context.Context, fn func(tx models.Repository) error) error {
	if s.tx {
		return fn(s)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	work := s.st.clone()
	if err := fn(&Store{mu: s.mu, st: work, tx: true, now: s.now}); err != nil {
		return err
	}
	s.st = work
	return nil
}

// view runs fn with exclusive access to the current state.
func (s *Store) view(fn func(st *state) error) error {
	if s.tx {
		return fn(s.st)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.st)
}

// write runs fn as a single-statement transaction.
func (s *Store) write(fn func(st *state) error) error {
	if s.tx {
		return fn(s.st)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	work := s.st.clone()
	if err := fn(work); err != nil {
		return err
	}
	s.st = work
	return nil
}

func (s *Store) stamp(created, updated *time.Time) {
	now := s.now()
	if created != nil && created.IsZero() {
		*created = now
	}
	if updated != nil {
		*updated = now
	}
}

func notFound(what string) error {
	return fmt.Errorf("failed to get %s: %w", what, xerrors.ErrNotFound)
}

func duplicate(what string) error {
	return fmt.Errorf("failed to create %s: %w", what, xerrors.ErrDuplicate)
}
