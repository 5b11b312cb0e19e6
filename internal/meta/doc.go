// Package meta provides the immutable per-entity metadata of the mapping layer.
//
// An Entity records how a table-backed object type maps between table
// columns and object fields, the semantic type and nullability of every
// field, and the autoincrement column if there is one.
//
// This package contains definitions only. Every other internal package
// imports meta; meta imports nothing internal. Entities are constructed once
// (by the catalog loader or by hand in tests) and are safe to share between
// goroutines because nothing mutates them after New returns.
//
// Key invariants enforced by New:
//   - field <-> column mapping is bijective
//   - at most one field is marked autoincrement
//   - names are non-empty, NFC normalized and free of ':'
package meta
