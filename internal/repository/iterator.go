package repository

import (
	"context"
	"iter"
	"log/slog"

	"github.com/roach88/rowmap/internal/dbal"
	"github.com/roach88/rowmap/internal/decode"
	"github.com/roach88/rowmap/internal/errs"
)

type iterState int

const (
	stateUnopened iterState = iota
	stateOpen
)

// Iterator pulls decoded rows one at a time through a database handle.
//
// States: Unopened and Open. Rewind (re)opens the handle and pulls the
// first row, Next pulls the following one, Clear releases the handle.
// Once a fetch returns no row Valid reports false, but the iterator stays
// Open until cleared. Rewind may be called from any state; every pass runs
// the query again.
//
// An Iterator is not safe for concurrent use.
type Iterator[T any] struct {
	db        dbal.Database
	logger    *slog.Logger
	query     dbal.Query
	compileEr error
	decode    func(*dbal.Row) (T, error)

	state   iterState
	h       dbal.Handle
	current T
	valid   bool
	key     int
	err     error
}

// MultiIterator iterates multi-entity records.
type MultiIterator = Iterator[decode.Record]

// Rewind clears any open handle, opens a new one and pulls the first row.
func (it *Iterator[T]) Rewind(ctx context.Context) error {
	if err := it.Clear(); err != nil {
		return err
	}
	if it.compileEr != nil {
		return it.compileEr
	}
	h, err := it.db.Select(ctx, it.query)
	if err != nil {
		it.logger.Warn("backend call failed", "op", "iterate", "error", err)
		return errs.Backend(err)
	}
	it.logger.Debug("opened handle", "handle", h.ID())
	it.h = h
	it.state = stateOpen
	it.key = -1
	return it.Next(ctx)
}

// Next pulls the next row. It fails unless the iterator is open.
func (it *Iterator[T]) Next(ctx context.Context) error {
	if it.state != stateOpen {
		return errs.New(errs.CodeInvalidShape, "iterator is not open; call Rewind first")
	}
	var zero T
	row, err := it.db.Fetch(ctx, it.h)
	if err != nil {
		it.current, it.valid = zero, false
		it.logger.Warn("backend call failed", "op", "fetch", "handle", it.h.ID(), "error", err)
		return errs.Backend(err)
	}
	if row == nil {
		it.current, it.valid = zero, false
		return nil
	}
	v, err := it.decode(row)
	if err != nil {
		it.current, it.valid = zero, false
		return err
	}
	it.current, it.valid = v, true
	it.key++
	return nil
}

// Valid reports whether Current holds a row.
func (it *Iterator[T]) Valid() bool { return it.valid }

// Current returns the current row, or the zero value when not Valid.
func (it *Iterator[T]) Current() T { return it.current }

// Key returns the zero-based position of the current row, or -1.
func (it *Iterator[T]) Key() int {
	if !it.valid {
		return -1
	}
	return it.key
}

// Open reports whether the iterator holds a handle.
func (it *Iterator[T]) Open() bool { return it.state == stateOpen }

// Clear releases the handle. Clearing an unopened iterator is a no-op.
func (it *Iterator[T]) Clear() error {
	var zero T
	it.current, it.valid = zero, false
	if it.state != stateOpen {
		return nil
	}
	h := it.h
	it.h, it.state = nil, stateUnopened
	if err := it.db.Clear(h); err != nil {
		return errs.Backend(err)
	}
	return nil
}

// All runs a full pass as a range-over-func sequence of (key, row). The
// handle is cleared when the loop ends, including on break. Errors stop
// the sequence and are reported by Err.
func (it *Iterator[T]) All(ctx context.Context) iter.Seq2[int, T] {
	return func(yield func(int, T) bool) {
		it.err = nil
		if err := it.Rewind(ctx); err != nil {
			it.err = err
			return
		}
		defer func() {
			if err := it.Clear(); err != nil && it.err == nil {
				it.err = err
			}
		}()
		for it.Valid() {
			if !yield(it.Key(), it.Current()) {
				return
			}
			if err := it.Next(ctx); err != nil {
				it.err = err
				return
			}
		}
	}
}

// Err returns the error that ended the last All pass.
func (it *Iterator[T]) Err() error { return it.err }
