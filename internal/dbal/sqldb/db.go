package sqldb

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/roach88/rowmap/internal/dbal"
)

// Option configures a DB.
type Option func(*DB)

// WithDialect sets the dialect. Default: SQLite.
func WithDialect(d Dialect) Option {
	return func(db *DB) {
		db.dialect = d
	}
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(db *DB) {
		if l != nil {
			db.logger = l
		}
	}
}

// WithStats records every statement in s.
func WithStats(s *Stats) Option {
	return func(db *DB) {
		db.stats = s
	}
}

// WithSlowQueryLog logs statements slower than threshold at Warn.
func WithSlowQueryLog(threshold time.Duration) Option {
	return func(db *DB) {
		db.slow = threshold
	}
}

// DB implements dbal.Database over database/sql.
//
// Thread-safety: DB is safe for concurrent use. Individual handles are not.
type DB struct {
	db      *sql.DB
	dialect Dialect
	logger  *slog.Logger
	stats   *Stats
	slow    time.Duration

	mu      sync.Mutex
	handles map[string]*sql.Rows
}

var _ dbal.Database = (*DB)(nil)

// New wraps an open *sql.DB.
func New(db *sql.DB, opts ...Option) *DB {
	d := &DB{
		db:      db,
		dialect: SQLite,
		logger:  slog.Default(),
		handles: make(map[string]*sql.Rows),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Open opens a database with a registered driver and picks the dialect
// matching the driver name. WithDialect still overrides it.
func Open(driver, dsn string, opts ...Option) (*DB, error) {
	d, err := DialectFor(driver)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return New(db, append([]Option{WithDialect(d)}, opts...)...), nil
}

// OpenSQLite opens a SQLite file with the mattn driver.
//
// The database is configured with:
//   - WAL mode for concurrent reads during writes
//   - NORMAL synchronous mode
//   - 5-second busy timeout for lock contention
//   - Foreign key enforcement
//
// A single connection is kept so writes never race for the lock.
func OpenSQLite(path string, opts ...Option) (*DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}
	return New(db, append([]Option{WithDialect(SQLite)}, opts...)...), nil
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}
	return nil
}

// Close releases open handles and closes the database.
func (d *DB) Close() error {
	d.mu.Lock()
	for id, rows := range d.handles {
		rows.Close()
		delete(d.handles, id)
	}
	d.mu.Unlock()
	return d.db.Close()
}

// SQL returns the underlying *sql.DB.
func (d *DB) SQL() *sql.DB { return d.db }

// Dialect returns the dialect in use.
func (d *DB) Dialect() Dialect { return d.dialect }

// QuoteIdentifier implements dbal.Quoter.
func (d *DB) QuoteIdentifier(name string) string { return d.dialect.QuoteIdentifier(name) }

// QuoteAlias implements dbal.Quoter.
func (d *DB) QuoteAlias(name string) string { return d.dialect.QuoteAlias(name) }

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type txKey struct{}

// conn returns the transaction bound to ctx, or the database.
func (d *DB) conn(ctx context.Context) querier {
	if tx, ok := ctx.Value(txKey{}).(*sql.Tx); ok {
		return tx
	}
	return d.db
}

// observe records a finished statement.
func (d *DB) observe(ctx context.Context, query bool, sqlText string, args []any, start time.Time, err error) {
	elapsed := time.Since(start)
	slow := d.slow > 0 && elapsed > d.slow
	if d.stats != nil {
		d.stats.record(query, elapsed, err, slow)
	}
	if slow {
		d.logger.WarnContext(ctx, "slow query detected", "duration", elapsed, "sql", sqlText, "args", len(args))
	}
	d.logger.DebugContext(ctx, "statement executed", "sql", sqlText, "args", len(args), "duration", elapsed, "error", err)
}

func (d *DB) query(ctx context.Context, sqlText string, args []any) (*sql.Rows, error) {
	start := time.Now()
	rows, err := d.conn(ctx).QueryContext(ctx, sqlText, args...)
	d.observe(ctx, true, sqlText, args, start, err)
	return rows, err
}

func (d *DB) exec(ctx context.Context, sqlText string, args []any) (sql.Result, error) {
	start := time.Now()
	res, err := d.conn(ctx).ExecContext(ctx, sqlText, args...)
	d.observe(ctx, false, sqlText, args, start, err)
	return res, err
}

type handle struct {
	id string
}

func (h handle) ID() string { return h.id }

// Select opens a handle over the rows of q.
func (d *DB) Select(ctx context.Context, q dbal.Query) (dbal.Handle, error) {
	sqlText, args, err := d.dialect.RenderQuery(q)
	if err != nil {
		return nil, err
	}
	rows, err := d.query(ctx, sqlText, args)
	if err != nil {
		return nil, err
	}
	h := handle{id: uuid.Must(uuid.NewV7()).String()}
	d.mu.Lock()
	d.handles[h.id] = rows
	d.mu.Unlock()
	d.logger.DebugContext(ctx, "opened handle", "handle", h.id)
	return h, nil
}

// Fetch returns the next row of h, or nil once exhausted.
func (d *DB) Fetch(_ context.Context, h dbal.Handle) (*dbal.Row, error) {
	d.mu.Lock()
	rows, ok := d.handles[h.ID()]
	d.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("handle %s is not open", h.ID())
	}
	if !rows.Next() {
		return nil, rows.Err()
	}
	return scanRow(rows)
}

// Clear closes h. Clearing an unknown handle is a no-op.
func (d *DB) Clear(h dbal.Handle) error {
	d.mu.Lock()
	rows, ok := d.handles[h.ID()]
	delete(d.handles, h.ID())
	d.mu.Unlock()
	if !ok {
		return nil
	}
	return rows.Close()
}

// FetchAll returns every row of q.
func (d *DB) FetchAll(ctx context.Context, q dbal.Query) ([]*dbal.Row, error) {
	sqlText, args, err := d.dialect.RenderQuery(q)
	if err != nil {
		return nil, err
	}
	rows, err := d.query(ctx, sqlText, args)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*dbal.Row
	for rows.Next() {
		row, err := scanRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// FetchOne returns the first row of q, or nil.
func (d *DB) FetchOne(ctx context.Context, q dbal.Query) (*dbal.Row, error) {
	sqlText, args, err := d.dialect.RenderQuery(q)
	if err != nil {
		return nil, err
	}
	rows, err := d.query(ctx, sqlText, args)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}
	return scanRow(rows)
}

func scanRow(rows *sql.Rows) (*dbal.Row, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to read columns: %w", err)
	}
	values := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range values {
		ptrs[i] = &values[i]
	}
	if err := rows.Scan(ptrs...); err != nil {
		return nil, fmt.Errorf("failed to scan row: %w", err)
	}
	return &dbal.Row{Columns: cols, Values: values}, nil
}

// Change runs a freeform statement with ? placeholders.
func (d *DB) Change(ctx context.Context, sqlText string, args []any) (int64, error) {
	return d.affected(ctx, d.dialect.Rebind(sqlText), args)
}

// Update runs u and returns the affected row count.
func (d *DB) Update(ctx context.Context, u dbal.Update) (int64, error) {
	sqlText, args := d.dialect.RenderUpdate(u)
	return d.affected(ctx, sqlText, args)
}

// Delete runs del and returns the affected row count.
func (d *DB) Delete(ctx context.Context, del dbal.Delete) (int64, error) {
	sqlText, args := d.dialect.RenderDelete(del)
	return d.affected(ctx, sqlText, args)
}

func (d *DB) affected(ctx context.Context, sqlText string, args []any) (int64, error) {
	res, err := d.exec(ctx, sqlText, args)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return n, nil
}

// Insert adds a row. With an autoincrement column the generated id is
// returned in decimal form.
func (d *DB) Insert(ctx context.Context, ins dbal.Insert, autoincrement string) (string, error) {
	sqlText, args := d.dialect.RenderInsert(ins, autoincrement)

	if autoincrement != "" && d.dialect.returning {
		start := time.Now()
		var id any
		err := d.conn(ctx).QueryRowContext(ctx, sqlText, args...).Scan(&id)
		d.observe(ctx, true, sqlText, args, start, err)
		if err != nil {
			return "", classify(err)
		}
		return idString(id), nil
	}

	res, err := d.exec(ctx, sqlText, args)
	if err != nil {
		return "", classify(err)
	}
	if autoincrement == "" {
		return "", nil
	}
	id, err := res.LastInsertId()
	if err != nil {
		return "", fmt.Errorf("failed to read insert id: %w", err)
	}
	return strconv.FormatInt(id, 10), nil
}

func idString(v any) string {
	switch x := v.(type) {
	case []byte:
		return string(x)
	case string:
		return x
	}
	return fmt.Sprint(v)
}

// Upsert runs u.
func (d *DB) Upsert(ctx context.Context, u dbal.Upsert) error {
	sqlText, args := d.dialect.RenderUpsert(u)
	_, err := d.exec(ctx, sqlText, args)
	return classify(err)
}

// Transaction runs fn in a transaction bound to the ctx passed to fn. A
// nested call joins the outer transaction.
func (d *DB) Transaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(*sql.Tx); ok {
		return fn(ctx)
	}
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		if rerr := tx.Rollback(); rerr != nil {
			d.logger.WarnContext(ctx, "rollback failed", "error", rerr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
