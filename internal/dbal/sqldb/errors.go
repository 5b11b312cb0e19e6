package sqldb

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
	msqlite "modernc.org/sqlite"
)

// ErrDuplicate marks an insert rejected by a unique or primary key index.
var ErrDuplicate = errors.New("duplicate key")

// Constraint codes reported by the drivers.
const (
	pgUniqueViolation = "23505"

	mysqlDuplicateEntry = 1062

	sqliteConstraintPrimaryKey = 1555
	sqliteConstraintUnique     = 2067
)

// IsUniqueViolation reports whether err is a unique or primary key
// violation from one of the supported drivers.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var pe *pq.Error
	if errors.As(err, &pe) {
		return pe.Code == pgUniqueViolation
	}
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		return me.Number == mysqlDuplicateEntry
	}
	var se sqlite3.Error
	if errors.As(err, &se) && (se.ExtendedCode == sqlite3.ErrConstraintUnique || se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey) {
		return true
	}
	var ne *msqlite.Error
	if errors.As(err, &ne) && (ne.Code() == sqliteConstraintUnique || ne.Code() == sqliteConstraintPrimaryKey) {
		return true
	}
	// SQLite builds without extended result codes only carry the message.
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// classify marks unique violations with ErrDuplicate. The driver error stays
// reachable through errors.As.
func classify(err error) error {
	if IsUniqueViolation(err) {
		return fmt.Errorf("%w: %w", ErrDuplicate, err)
	}
	return err
}
