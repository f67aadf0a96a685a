// Package queryparse turns a client's query string into the
// internal/query AST the coordinator executes.
//
// spec.md section 1 explicitly keeps a full SQL-like parser out of
// scope: nimbusdb specifies the Query variant types an external
// collaborator must produce, not a production CQL grammar with error
// recovery, comments, or bind variables. Something still has to bridge
// a client's raw query string to that AST so the system runs
// end-to-end, so this package implements the minimal, naive statement
// forms exercised by the examples in spec.md and original_source's
// query-creator (tokens, then a direct per-keyword parse — no
// recursive grammar, no operator precedence beyond WHERE's flat
// AND-joined equality/comparison list). It is grounded on
// other_examples' tsqlparser token package for the lexical token set
// shape and on original_source/query-creator/src/clauses/where_cql.rs
// for WHERE's token order (column, operator, value; AND-joined).
package queryparse
