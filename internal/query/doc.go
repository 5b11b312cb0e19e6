// Package query compiles query options written in object-field vocabulary
// into backend descriptors written in column vocabulary.
//
// Every compiler is a pure function of entity metadata, a dbal.Quoter and
// the caller's Options. Compilers never touch the database and hold no
// state between calls.
//
// Collection entries are classified once into a Clause:
//
//	P("lastName", "Baumann")           Named: lastName = 'Baumann'
//	P(":lastName: LIKE ?", "B%")       Expression: "last_name" LIKE ?
//	B(":balance: IS NULL")             Bare: "balance" IS NULL
//
// Symbolic tokens name fields (:field: for one entity, :alias.field: and
// :alias: across several). Substitution must be total: any ':' left in a
// rendered fragment fails with errs.CodeUnresolvedToken.
//
// Select compilers return a Compiled carrying the descriptor and a
// CastPlan describing how to decode each output key. For multi-entity
// selects the plan of computed fields is inferred, see inferType.
package query
