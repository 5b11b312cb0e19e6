package repository

import (
	"context"
	"log/slog"

	"github.com/roach88/rowmap/internal/dbal"
	"github.com/roach88/rowmap/internal/errs"
	"github.com/roach88/rowmap/internal/meta"
)

// Option configures a Base or a Multi.
type Option func(*config)

type config struct {
	logger   *slog.Logger
	readOnly bool
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *config) {
		if l != nil {
			c.logger = l
		}
	}
}

// ReadOnly rejects every write through the repository with
// errs.CodeReadOnly.
func ReadOnly() Option {
	return func(c *config) {
		c.readOnly = true
	}
}

func newConfig(opts []Option) config {
	c := config{logger: slog.Default()}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// Handle is anything backed by a Base: *Base itself and every
// *Repository[T]. Multi reaches the database and metadata of a handle
// through it.
//
// This is a sealed interface; only types in this package implement it.
type Handle interface {
	handle() *Base
}

// Base binds entity metadata to a database.
type Base struct {
	db       dbal.Database
	entity   *meta.Entity
	logger   *slog.Logger
	readOnly bool
}

// NewBase creates a Base.
func NewBase(db dbal.Database, e *meta.Entity, opts ...Option) *Base {
	c := newConfig(opts)
	return &Base{
		db:       db,
		entity:   e,
		logger:   c.logger.With("entity", e.Name()),
		readOnly: c.readOnly,
	}
}

func (b *Base) handle() *Base { return b }

// Entity returns the metadata.
func (b *Base) Entity() *meta.Entity { return b.entity }

// Writable reports whether writes are allowed.
func (b *Base) Writable() bool { return !b.readOnly }

func (b *Base) checkWritable(op string) error {
	if b.readOnly {
		return errs.New(errs.CodeReadOnly, "%s through read-only repository", op).WithEntity(b.entity.Name())
	}
	return nil
}

// backend logs and wraps a database error.
func (b *Base) backend(op string, err error) error {
	if err == nil {
		return nil
	}
	b.logger.Warn("backend call failed", "op", op, "error", err)
	return errs.Backend(err)
}

// Transaction runs fn inside a transaction of the underlying database.
func (b *Base) Transaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return b.db.Transaction(ctx, fn)
}
