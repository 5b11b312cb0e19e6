// Package repository exposes the mapping layer operations over a
// dbal.Database.
//
// A Repository[T] serves one entity and hydrates its rows into T. Multi
// runs queries across several repositories, identified by alias, after
// checking that they all live on the same database.
//
// Every operation follows the same path: compile the options (package
// query), execute the descriptor through dbal.Database, decode the rows
// (package decode). A compile failure means nothing is executed; a backend
// failure means nothing is decoded. Both surface as *errs.Error.
//
// Repositories are safe for concurrent use. Iterators are not: each one
// owns at most one open handle.
package repository
