// Package query provides the index predicate IR used to look records up
// through a table's declared indexes.
//
// Predicate is a sealed interface: only the types in this package implement
// it, so backends can switch over it exhaustively.
//
//	Predicate    Meaning
//	---------    -------
//	Equals       scalar attribute (or id) equals a value
//	AnyOf        scalar attribute (or id) equals one of a set of values
//	NoneOf       scalar attribute is present and not among a set of values
//	Between      low <= attribute <= high, both bounds inclusive
//	Contains     value is an element of a multi-valued attribute
//	StartsWith   multi-valued attribute begins with a prefix sequence
//	Or           union of predicates, one result per record
//	And          intersection of predicates
//
// Predicates only ever name declared indexes. Filtering on anything else is
// done in-process by the caller after the indexed lookup, which keeps the
// indexing strategy swappable behind this IR.
//
// Validate checks a predicate against a table before execution and reports
// problems as *errs.QueryError.
package query
