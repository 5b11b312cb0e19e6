// Package dbal defines the contract between the mapping layer and a SQL
// backend.
//
// Descriptors in this package use column vocabulary exclusively: no object
// field name ever crosses this boundary. A backend renders descriptors into
// dialect-specific SQL, binds their arguments and returns raw rows.
//
// Column names may be qualified ("alias.column" or "schema.table"); the
// backend quotes every dot-separated part. Expr strings are already-rendered
// SQL fragments whose identifiers were quoted through the same backend's
// QuoteIdentifier, and whose bind placeholders are written as "?".
//
// Package sqldb provides the database/sql implementation.
package dbal
