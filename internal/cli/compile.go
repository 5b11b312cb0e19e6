package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/rowmap/internal/catalog"
	"github.com/roach88/rowmap/internal/dbal"
	"github.com/roach88/rowmap/internal/dbal/sqldb"
	"github.com/roach88/rowmap/internal/errs"
	"github.com/roach88/rowmap/internal/query"
)

// CompileOptions holds flags for the compile command.
type CompileOptions struct {
	*RootOptions
	Dialect string
}

// Statement is a compiled options file.
type Statement struct {
	Op   string          `json:"op"`
	SQL  string          `json:"sql"`
	Args []any           `json:"args"`
	Plan *query.CastPlan `json:"plan,omitempty"`
}

// NewCompileCommand creates the compile command.
func NewCompileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CompileOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "compile <catalog-dir> <options.yaml>",
		Short: "Compile an options file to SQL",
		Long: `Compile a YAML options file against the entity catalog and print the
SQL statement, its bound arguments and the cast plan of its rows.

Nothing is executed.`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(opts, args[0], args[1], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Dialect, "dialect", "d", "sqlite", "SQL dialect (sqlite|postgres|mysql)")

	return cmd
}

func runCompile(opts *CompileOptions, dir, path string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	dialect, err := sqldb.DialectFor(opts.Dialect)
	if err != nil {
		return formatter.fail(ExitCommandError, ErrCodeUsage, err.Error(), nil)
	}
	c, err := loadCatalog(formatter, dir)
	if err != nil {
		return err
	}
	req, err := loadRequest(formatter, path)
	if err != nil {
		return err
	}

	stmt, err := CompileRequest(c, req, dialect)
	if err != nil {
		return compileFailure(formatter, err)
	}
	formatter.VerboseLog("Compiled %s for %s", stmt.Op, dialect.Name)

	if formatter.JSON() {
		return formatter.Success(stmt)
	}
	writeStatement(formatter.Writer, stmt)
	return nil
}

// CompileRequest compiles req against c and renders it for d.
func CompileRequest(c *catalog.Catalog, req *Request, d sqldb.Dialect) (*Statement, error) {
	var (
		compiled query.Compiled
		q        dbal.Query
		err      error
	)
	if req.Multi() {
		sources, rerr := req.resolveSources(c)
		if rerr != nil {
			return nil, rerr
		}
		switch req.Op {
		case OpSelect, OpFlattened:
			compiled, err = query.CompileMultiSelect(sources, d, req.Options)
		case OpSelectOne:
			compiled, err = query.CompileMultiSelectOne(sources, d, req.Options)
		case OpCount:
			compiled, err = query.CompileMultiCount(sources, d, req.Options)
		case OpUpdate:
			q, err = query.CompileMultiUpdate(sources, d, req.Options)
		default:
			return nil, fmt.Errorf("op %q does not support sources", req.Op)
		}
	} else {
		e, rerr := req.resolveEntity(c)
		if rerr != nil {
			return nil, rerr
		}
		switch req.Op {
		case OpSelect, OpFlattened:
			compiled, err = query.CompileSelect(e, d, req.Options)
		case OpSelectOne:
			compiled, err = query.CompileSelectOne(e, d, req.Options)
		case OpCount:
			compiled, err = query.CompileCount(e, d, req.Options)
		case OpUpdate:
			var u dbal.Update
			if u, err = query.CompileUpdate(e, d, req.Options); err == nil {
				sqlText, args := d.RenderUpdate(u)
				return newStatement(req.Op, sqlText, args, nil), nil
			}
		case OpDelete:
			var del dbal.Delete
			if del, err = query.CompileDelete(e, d, req.Options); err == nil {
				sqlText, args := d.RenderDelete(del)
				return newStatement(req.Op, sqlText, args, nil), nil
			}
		}
	}
	if err != nil {
		return nil, err
	}
	if q == nil {
		q = compiled.Query
	}
	sqlText, args, err := d.RenderQuery(q)
	if err != nil {
		return nil, err
	}
	return newStatement(req.Op, sqlText, args, compiled.Plan), nil
}

func newStatement(op, sqlText string, args []any, plan *query.CastPlan) *Statement {
	if args == nil {
		args = []any{}
	}
	return &Statement{Op: op, SQL: sqlText, Args: args, Plan: plan}
}

func writeStatement(w io.Writer, stmt *Statement) {
	fmt.Fprintln(w, stmt.SQL)
	fmt.Fprintf(w, "args: %v\n", stmt.Args)
	if stmt.Plan == nil || stmt.Plan.Len() == 0 {
		return
	}
	fmt.Fprintln(w, "plan:")
	for _, p := range stmt.Plan.Entries() {
		suffix := ""
		if p.Nullable {
			suffix = " (nullable)"
		}
		fmt.Fprintf(w, "  %s: %s%s\n", p.Key, p.Type, suffix)
	}
}

// compileFailure reports a rejected options file. Mapping errors carry
// their code and the offending option as details.
func compileFailure(formatter *OutputFormatter, err error) error {
	var oe *errs.Error
	if errors.As(err, &oe) {
		details := map[string]string{"code": string(oe.Code)}
		if oe.Option != "" {
			details["option"] = oe.Option
		}
		if oe.Entity != "" {
			details["entity"] = oe.Entity
		}
		return formatter.fail(ExitFailure, ErrCodeCompile, oe.Error(), details)
	}
	return formatter.fail(ExitFailure, ErrCodeCompile, err.Error(), nil)
}
