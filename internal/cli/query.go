package cli

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/rowmap/internal/catalog"
	"github.com/roach88/rowmap/internal/dbal/sqldb"
	"github.com/roach88/rowmap/internal/decode"
	"github.com/roach88/rowmap/internal/errs"
	"github.com/roach88/rowmap/internal/repository"
)

// QueryOptions holds flags for the query command.
type QueryOptions struct {
	*RootOptions
	Driver string
	DSN    string
	Write  bool
	Slow   time.Duration
}

// NewQueryCommand creates the query command.
func NewQueryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &QueryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "query <catalog-dir> <options.yaml>",
		Short: "Run an options file against a database",
		Long: `Compile a YAML options file against the entity catalog, run it and
print every decoded record as one JSON line.

Repositories are read-only unless --write is given; update and delete
print the affected row count.`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(cmd.Context(), opts, args[0], args[1], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Driver, "driver", "sqlite3", "database/sql driver (sqlite3|sqlite|postgres|mysql)")
	cmd.Flags().StringVar(&opts.DSN, "dsn", "", "data source name (required)")
	cmd.Flags().BoolVar(&opts.Write, "write", false, "allow update and delete")
	cmd.Flags().DurationVar(&opts.Slow, "slow", 200*time.Millisecond, "slow query warning threshold")
	_ = cmd.MarkFlagRequired("dsn")

	return cmd
}

func runQuery(ctx context.Context, opts *QueryOptions, dir, path string, cmd *cobra.Command) error {
	if ctx == nil {
		ctx = context.Background()
	}
	formatter := opts.formatter(cmd)
	logger := opts.logger(cmd)

	c, err := loadCatalog(formatter, dir)
	if err != nil {
		return err
	}
	req, err := loadRequest(formatter, path)
	if err != nil {
		return err
	}

	stats := &sqldb.Stats{}
	db, err := openDatabase(opts, logger, stats)
	if err != nil {
		return formatter.fail(ExitCommandError, ErrCodeBackend, err.Error(), nil)
	}
	defer db.Close()

	if err := execute(ctx, formatter, db, c, req, opts.repositoryOptions(logger)); err != nil {
		return err
	}
	formatter.VerboseLog("%s", stats)
	return nil
}

// openDatabase opens the configured driver. sqlite3 files get the
// SQLite pragmas applied.
func openDatabase(opts *QueryOptions, logger *slog.Logger, stats *sqldb.Stats) (*sqldb.DB, error) {
	dbOpts := []sqldb.Option{
		sqldb.WithLogger(logger),
		sqldb.WithStats(stats),
		sqldb.WithSlowQueryLog(opts.Slow),
	}
	if opts.Driver == "sqlite3" {
		return sqldb.OpenSQLite(opts.DSN, dbOpts...)
	}
	return sqldb.Open(opts.Driver, opts.DSN, dbOpts...)
}

func (o *QueryOptions) repositoryOptions(logger *slog.Logger) []repository.Option {
	ropts := []repository.Option{repository.WithLogger(logger)}
	if !o.Write {
		ropts = append(ropts, repository.ReadOnly())
	}
	return ropts
}

// execute runs req and writes its results as JSON lines.
func execute(ctx context.Context, f *OutputFormatter, db *sqldb.DB, c *catalog.Catalog, req *Request, ropts []repository.Option) error {
	if req.Multi() {
		return executeMulti(ctx, f, db, c, req, ropts)
	}
	e, err := req.resolveEntity(c)
	if err != nil {
		return compileFailure(f, err)
	}
	repo := repository.NewRecords(db, e, ropts...)

	switch req.Op {
	case OpSelect:
		return writeRecords(ctx, f, repo.Iterate(req.Options))
	case OpSelectOne:
		rec, ok, err := repo.SelectOne(ctx, req.Options)
		if err != nil {
			return queryFailure(f, err)
		}
		if ok {
			return f.Line(rec)
		}
		return nil
	case OpFlattened:
		vals, err := repo.SelectFlattenedFields(ctx, req.Options)
		if err != nil {
			return queryFailure(f, err)
		}
		return writeValues(f, vals)
	case OpCount:
		n, err := repo.Count(ctx, req.Options)
		if err != nil {
			return queryFailure(f, err)
		}
		return f.Line(map[string]int64{"count": n})
	case OpUpdate:
		n, err := repo.Update(ctx, req.Options)
		if err != nil {
			return queryFailure(f, err)
		}
		return f.Line(map[string]int64{"affected": n})
	case OpDelete:
		n, err := repo.Delete(ctx, req.Options)
		if err != nil {
			return queryFailure(f, err)
		}
		return f.Line(map[string]int64{"affected": n})
	}
	return compileFailure(f, fmt.Errorf("unknown op %q", req.Op))
}

func executeMulti(ctx context.Context, f *OutputFormatter, db *sqldb.DB, c *catalog.Catalog, req *Request, ropts []repository.Option) error {
	resolved, err := req.resolveSources(c)
	if err != nil {
		return compileFailure(f, err)
	}
	sources := make([]repository.Source, len(resolved))
	for i, s := range resolved {
		sources[i] = repository.Source{Alias: s.Alias, Handle: repository.NewBase(db, s.Entity, ropts...)}
	}
	m := repository.NewMulti(ropts...)

	switch req.Op {
	case OpSelect:
		return writeRecords(ctx, f, m.Iterate(sources, req.Options))
	case OpSelectOne:
		rec, ok, err := m.SelectOne(ctx, sources, req.Options)
		if err != nil {
			return queryFailure(f, err)
		}
		if ok {
			return f.Line(rec)
		}
		return nil
	case OpFlattened:
		vals, err := m.SelectFlattenedFields(ctx, sources, req.Options)
		if err != nil {
			return queryFailure(f, err)
		}
		return writeValues(f, vals)
	case OpCount:
		n, err := m.Count(ctx, sources, req.Options)
		if err != nil {
			return queryFailure(f, err)
		}
		return f.Line(map[string]int64{"count": n})
	case OpUpdate:
		n, err := m.Update(ctx, sources, req.Options)
		if err != nil {
			return queryFailure(f, err)
		}
		return f.Line(map[string]int64{"affected": n})
	}
	return compileFailure(f, fmt.Errorf("op %q does not support sources", req.Op))
}

func writeRecords(ctx context.Context, f *OutputFormatter, it *repository.Iterator[decode.Record]) error {
	for _, rec := range it.All(ctx) {
		if err := f.Line(rec); err != nil {
			return err
		}
	}
	if err := it.Err(); err != nil {
		return queryFailure(f, err)
	}
	return nil
}

func writeValues(f *OutputFormatter, vals []any) error {
	for _, v := range vals {
		if err := f.Line(v); err != nil {
			return err
		}
	}
	return nil
}

// queryFailure reports a failed query: backend failures are command
// errors, mapping errors are rejected options.
func queryFailure(f *OutputFormatter, err error) error {
	if isBackendFailure(err) {
		return f.fail(ExitCommandError, ErrCodeBackend, err.Error(), nil)
	}
	return compileFailure(f, err)
}

func isBackendFailure(err error) bool {
	return errs.HasCode(err, errs.CodeBackendFailure)
}
