// Package sqldb implements dbal.Database over database/sql.
//
// Descriptors are rendered per Dialect: identifier quoting, placeholder
// style, FOR UPDATE support, upsert syntax and insert id retrieval differ
// between SQLite, PostgreSQL and MySQL. Open picks the dialect from the
// driver name; OpenSQLite opens a file with the mattn driver and the
// pragmas used throughout this module (WAL, NORMAL sync, busy timeout,
// foreign keys).
//
// Result streams opened by Select are tracked by UUIDv7 handle id until
// Clear. Transactions are bound to the context passed to the callback of
// Transaction; every call made with that context joins it.
package sqldb
